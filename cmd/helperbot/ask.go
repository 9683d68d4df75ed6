package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gmehra/helperbot/internal/chunkstore"
	"github.com/gmehra/helperbot/internal/embedding"
	"github.com/gmehra/helperbot/internal/generation"
	"github.com/gmehra/helperbot/internal/indexer"
	"github.com/gmehra/helperbot/internal/prompt"
	"github.com/gmehra/helperbot/internal/retriever"
	"github.com/gmehra/helperbot/internal/vecindex/qdrant"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the built index",
	Long: `Embeds the question, retrieves the nearest chunks from the index, and
asks the generation service for an answer grounded in them. The answer is
printed with the source URLs of the chunks it was grounded on.

Queries are embedded with the model recorded in the index manifest, so
retrieval matches how the chunks were embedded.

Environment variables:
  OPENAI_API_KEY       OpenAI API key for query embedding (required)
  OPENAI_BASE_URL      alternative OpenAI-compatible endpoint (optional)
  OPENROUTER_API_KEY   OpenRouter API key for generation (required unless --retrieve-only)
  OPENROUTER_BASE_URL  alternative completions endpoint (optional)
  GENERATION_MODEL     generation model id (default: ` + generation.DefaultModel + `)
  QDRANT_HOST          Qdrant hostname for server-backed indexes
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    collection name (default: helperbot_chunks)`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var askFlags struct {
	indexDir     string
	k            int
	retrieveOnly bool
}

func init() {
	askCmd.Flags().StringVar(&askFlags.indexDir, "index-dir", "data/index", "directory holding the index artifacts")
	askCmd.Flags().IntVar(&askFlags.k, "k", 5, "number of chunks retrieved as context")
	askCmd.Flags().BoolVar(&askFlags.retrieveOnly, "retrieve-only", false, "print the retrieved chunks instead of generating an answer")

	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	question := strings.Join(args, " ")

	snap, err := openSnapshot(ctx, askFlags.indexDir)
	if err != nil {
		return err
	}
	if closer, ok := snap.Index.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	client, err := embedding.NewClient(snap.Manifest.Model, getEnv("OPENAI_BASE_URL", ""))
	if err != nil {
		return err
	}
	retr := retriever.New(embedding.NewOpenAI(client, 0), snap.Index, snap.Store, nil)

	results, err := retr.Retrieve(ctx, question, askFlags.k)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}

	if askFlags.retrieveOnly {
		printChunks(results)
		return nil
	}

	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY environment variable not set (use --retrieve-only to skip generation)")
	}
	gen := generation.NewClient(generation.Config{
		BaseURL: getEnv("OPENROUTER_BASE_URL", ""),
		APIKey:  apiKey,
		Model:   getEnv("GENERATION_MODEL", ""),
	})

	answer, err := gen.Generate(ctx, prompt.Default().Assemble(question, results))
	if err != nil {
		return fmt.Errorf("generate answer: %w", err)
	}

	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Println(boldCyan("Answer:"))
	fmt.Println(answer)

	var sources []string
	seen := make(map[string]bool)
	for _, r := range results {
		if r.SourceURL == "" || seen[r.SourceURL] {
			continue
		}
		seen[r.SourceURL] = true
		sources = append(sources, r.SourceURL)
	}
	if len(sources) > 0 {
		fmt.Println()
		fmt.Println(boldCyan("Sources:"))
		for _, url := range sources {
			fmt.Printf("  - %s\n", url)
		}
	}
	return nil
}

func printChunks(results []retriever.Result) {
	if len(results) == 0 {
		fmt.Println("No matching chunks.")
		return
	}
	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	for i, r := range results {
		header := fmt.Sprintf("[%d] distance %.4f", i+1, r.Distance)
		if r.Title != "" {
			header += " " + r.Title
		}
		fmt.Println(boldGreen(header))
		if r.SourceURL != "" {
			fmt.Printf("    %s\n", r.SourceURL)
		}
		fmt.Println(r.Text)
		fmt.Println()
	}
}

// openSnapshot loads the artifacts in dir, reconnecting to the Qdrant
// collection when the manifest says the vectors are server-backed.
func openSnapshot(ctx context.Context, dir string) (*indexer.Snapshot, error) {
	snap, err := indexer.LoadArtifacts(dir)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, indexer.ErrServerBacked) {
		return nil, err
	}

	manifest, err := indexer.ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	store, err := chunkstore.Load(filepath.Join(dir, indexer.MappingFile), filepath.Join(dir, indexer.TableFile))
	if err != nil {
		return nil, err
	}
	idx, err := qdrant.Open(ctx, qdrant.Config{
		Host:       getEnv("QDRANT_HOST", qdrant.DefaultHost),
		Port:       getEnvInt("QDRANT_PORT", qdrant.DefaultPort),
		Collection: getEnv("QDRANT_COLLECTION", qdrant.DefaultCollection),
		Dimension:  manifest.Dimension,
	})
	if err != nil {
		return nil, err
	}
	if idx.Size() != store.Len() {
		idx.Close()
		return nil, fmt.Errorf("%w: collection holds %d points, store has %d entries", indexer.ErrArtifactMismatch, idx.Size(), store.Len())
	}
	return &indexer.Snapshot{Index: idx, Store: store, Manifest: manifest}, nil
}
