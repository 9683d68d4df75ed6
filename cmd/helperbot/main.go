// Package main provides the helperbot CLI: corpus collection, index
// builds, and ad-hoc questions against a built index.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "helperbot",
	Short: "Documentation assistant pipeline",
	Long: `helperbot collects documentation into a corpus, builds a searchable
vector index over it, and answers questions grounded in the indexed text.

Typical flow:
  helperbot crawl --url https://docs.example.com   # or: helperbot fetch
  helperbot build
  helperbot ask "how do I rotate the API key?"`,
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
