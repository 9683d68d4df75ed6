package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/gmehra/helperbot/internal/corpus"
	"github.com/gmehra/helperbot/internal/embedding"
	"github.com/gmehra/helperbot/internal/indexer"
	"github.com/gmehra/helperbot/internal/vecindex"
	"github.com/gmehra/helperbot/internal/vecindex/qdrant"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the vector index from a corpus file",
	Long: `Chunks every corpus document into sentence windows, embeds the chunks,
and writes the index artifacts (index file, chunk store, manifest) to the
index directory. Artifacts are staged and renamed into place, so a failed
build leaves a previous index untouched.

Index kinds:
  flat    exact nearest-neighbor search (default)
  ivf     inverted-file approximate search; --nlist 0 picks sqrt(chunks)
  qdrant  server-backed collection; vectors live in Qdrant

Environment variables:
  OPENAI_API_KEY     OpenAI API key for embeddings (required)
  OPENAI_BASE_URL    alternative OpenAI-compatible endpoint (optional)
  QDRANT_HOST        Qdrant hostname for --index qdrant (default: localhost)
  QDRANT_PORT        Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION  collection name (default: helperbot_chunks)`,
	RunE: runBuild,
}

var buildFlags struct {
	corpusPath string
	indexDir   string
	chunkSize  int
	overlap    int
	concat     bool
	kind       string
	nlist      int
	nprobe     int
	model      string
	batchSize  int
}

func init() {
	buildCmd.Flags().StringVar(&buildFlags.corpusPath, "corpus", "data/corpus.json", "corpus file to index")
	buildCmd.Flags().StringVar(&buildFlags.indexDir, "index-dir", "data/index", "directory for index artifacts")
	buildCmd.Flags().IntVar(&buildFlags.chunkSize, "chunk-size", 3, "sentences per chunk")
	buildCmd.Flags().IntVar(&buildFlags.overlap, "overlap", 1, "sentences shared between consecutive chunks")
	buildCmd.Flags().BoolVar(&buildFlags.concat, "concat", false, "chunk the corpus as one stream instead of per document")
	buildCmd.Flags().StringVar(&buildFlags.kind, "index", "flat", "index kind: flat, ivf or qdrant")
	buildCmd.Flags().IntVar(&buildFlags.nlist, "nlist", 0, "ivf cells (0 = sqrt of chunk count)")
	buildCmd.Flags().IntVar(&buildFlags.nprobe, "nprobe", 1, "ivf cells scanned per search")
	buildCmd.Flags().StringVar(&buildFlags.model, "model", "", "embedding model (default: "+embedding.DefaultModel+")")
	buildCmd.Flags().IntVar(&buildFlags.batchSize, "batch-size", 0, "texts per embedding request (0 = default)")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()

	// 1. Load and validate the corpus
	docs, err := corpus.Read(buildFlags.corpusPath)
	if err != nil {
		return err
	}
	if err := corpus.Validate(docs); err != nil {
		return fmt.Errorf("corpus %s: %w", buildFlags.corpusPath, err)
	}
	fmt.Printf("Loaded %d documents from %s\n", len(docs), buildFlags.corpusPath)

	// 2. Initialize the embedding client and verify the backend is up
	client, err := embedding.NewClient(buildFlags.model, getEnv("OPENAI_BASE_URL", ""))
	if err != nil {
		return err
	}
	embedder := embedding.NewOpenAI(client, buildFlags.batchSize)

	fmt.Printf("Checking embedding backend (model %s)...\n", client.Model())
	if err := retryStartup(ctx, func() error {
		err := embedder.Ping(ctx)
		if err != nil && !errors.Is(err, embedding.ErrBackendUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}); err != nil {
		return fmt.Errorf("embedding backend: %w", err)
	}

	// 3. Pick the index strategy
	newIndex, err := indexFactory(ctx)
	if err != nil {
		return err
	}

	// 4. Build
	fmt.Println()
	fmt.Println("Building index...")
	builder := indexer.NewBuilder(embedder, newIndex, nil)
	result, err := builder.Build(ctx, docs, indexer.Config{
		ChunkSize:   buildFlags.chunkSize,
		Overlap:     buildFlags.overlap,
		Concatenate: buildFlags.concat,
		Model:       client.Model(),
	})
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	if closer, ok := result.Index.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// 5. Commit artifacts
	if err := indexer.WriteArtifacts(buildFlags.indexDir, result); err != nil {
		return fmt.Errorf("write artifacts: %w", err)
	}

	// 6. Summary
	fmt.Println()
	fmt.Println("Build complete!")
	fmt.Printf("  Build ID:  %s\n", result.Manifest.BuildID)
	fmt.Printf("  Documents: %d\n", result.Manifest.Documents)
	fmt.Printf("  Chunks:    %d\n", result.Manifest.Chunks)
	fmt.Printf("  Dimension: %d\n", result.Manifest.Dimension)
	fmt.Printf("  Index:     %s\n", result.Manifest.IndexKind)
	fmt.Printf("  Artifacts: %s\n", buildFlags.indexDir)
	fmt.Printf("  Duration:  %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// indexFactory maps the --index flag to a strategy constructor. The
// qdrant case verifies the server is reachable before the corpus is
// embedded, so a down server fails fast instead of after the API spend.
func indexFactory(ctx context.Context) (indexer.IndexFactory, error) {
	switch buildFlags.kind {
	case "flat":
		return func(dim, _ int) (vecindex.Index, error) {
			return vecindex.NewFlat(dim)
		}, nil

	case "ivf":
		return func(dim, count int) (vecindex.Index, error) {
			nlist := buildFlags.nlist
			if nlist <= 0 {
				nlist = autoNList(count)
			}
			return vecindex.NewIVF(dim, nlist, buildFlags.nprobe)
		}, nil

	case "qdrant":
		host := getEnv("QDRANT_HOST", qdrant.DefaultHost)
		port := getEnvInt("QDRANT_PORT", qdrant.DefaultPort)
		collection := getEnv("QDRANT_COLLECTION", qdrant.DefaultCollection)

		fmt.Printf("Checking Qdrant at %s:%d...\n", host, port)
		if err := retryStartup(ctx, func() error {
			return qdrant.Probe(ctx, host, port)
		}); err != nil {
			return nil, fmt.Errorf("qdrant: %w", err)
		}

		return func(dim, _ int) (vecindex.Index, error) {
			idx, err := qdrant.Open(ctx, qdrant.Config{
				Host:       host,
				Port:       port,
				Collection: collection,
				Dimension:  dim,
			})
			if err != nil {
				return nil, err
			}
			if err := idx.Recreate(ctx); err != nil {
				idx.Close()
				return nil, err
			}
			return idx, nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown index kind %q (expected flat, ivf or qdrant)", buildFlags.kind)
	}
}

// autoNList follows the usual sqrt(N) sizing rule for IVF cell counts.
func autoNList(count int) int {
	n := int(math.Sqrt(float64(count)))
	if n < 1 {
		n = 1
	}
	return n
}

// retryStartup runs op under the startup backoff policy: initial interval
// 500ms, max interval 10s, give up after 30s.
func retryStartup(ctx context.Context, op backoff.Operation) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
