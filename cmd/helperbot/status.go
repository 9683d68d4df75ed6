package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gmehra/helperbot/internal/indexer"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the built index contains",
	Long: `Reads the manifest of the index directory and prints what was built,
from which corpus size, and with which parameters.`,
	RunE: runStatus,
}

var statusFlags struct {
	indexDir string
}

func init() {
	statusCmd.Flags().StringVar(&statusFlags.indexDir, "index-dir", "data/index", "directory holding the index artifacts")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	m, err := indexer.ReadManifest(statusFlags.indexDir)
	if err != nil {
		return err
	}

	fmt.Printf("Build ID:   %s\n", m.BuildID)
	fmt.Printf("Created:    %s\n", m.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Model:      %s\n", m.Model)
	fmt.Printf("Documents:  %d\n", m.Documents)
	fmt.Printf("Chunks:     %d\n", m.Chunks)
	fmt.Printf("Dimension:  %d\n", m.Dimension)

	fmt.Printf("Chunking:   %d sentences, overlap %d", m.ChunkSize, m.Overlap)
	if m.Concatenated {
		fmt.Print(" (concatenated)")
	}
	fmt.Println()

	fmt.Printf("Index kind: %s", m.IndexKind)
	if m.IndexKind == "ivf" {
		fmt.Printf(" (nlist %d, nprobe %d)", m.NList, m.NProbe)
	}
	fmt.Println()
	return nil
}
