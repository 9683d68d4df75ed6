// Package main runs the MCP server exposing a built documentation index:
// semantic search, grounded answers, status and reload.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"

	"github.com/gmehra/helperbot/internal/chunkstore"
	"github.com/gmehra/helperbot/internal/embedding"
	"github.com/gmehra/helperbot/internal/generation"
	"github.com/gmehra/helperbot/internal/indexer"
	mcpserver "github.com/gmehra/helperbot/internal/mcp"
	"github.com/gmehra/helperbot/internal/prompt"
	"github.com/gmehra/helperbot/internal/retriever"
	"github.com/gmehra/helperbot/internal/vecindex/qdrant"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Configuration from environment
	indexDir := getEnv("INDEX_DIR", "data/index")
	port := getEnv("PORT", "8080")

	loader := makeLoader(indexDir)

	// Initial load with startup backoff: a vector backend that is still
	// coming up is retried, anything else fails immediately.
	var state *mcpserver.State
	err := retryStartup(ctx, func() error {
		var err error
		state, err = loader(ctx)
		if err != nil && !errors.Is(err, qdrant.ErrUnreachable) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		log.Fatalf("failed to load index from %s: %v", indexDir, err)
	}
	log.Printf("Serving build %s: %d chunks, %s index",
		state.Manifest.BuildID, state.Manifest.Chunks, state.Manifest.IndexKind)

	handle := retriever.NewHandle(state)

	// Generation is optional; without a key the ask_docs tool is absent
	// and clients still get search_docs.
	var generator mcpserver.Generator
	if apiKey := os.Getenv("OPENROUTER_API_KEY"); apiKey != "" {
		generator = generation.NewClient(generation.Config{
			BaseURL: getEnv("OPENROUTER_BASE_URL", ""),
			APIKey:  apiKey,
			Model:   getEnv("GENERATION_MODEL", ""),
		})
	} else {
		log.Println("OPENROUTER_API_KEY not set, ask_docs tool disabled")
	}

	// Create MCP server
	server := mcpserver.NewServer(&mcpserver.Config{
		Handle:    handle,
		Generator: generator,
		Template:  prompt.Default(),
		Loader:    loader,
	})

	// The health endpoint probes Qdrant only when the index lives there;
	// file-backed indexes are healthy whenever the process responds.
	var checker mcpserver.HealthChecker
	if state.Manifest.IndexKind == "qdrant" {
		host := getEnv("QDRANT_HOST", qdrant.DefaultHost)
		grpcPort := getEnvInt("QDRANT_PORT", qdrant.DefaultPort)
		checker = healthFunc(func(ctx context.Context) error {
			return qdrant.Probe(ctx, host, grpcPort)
		})
	}

	// Create HTTP server with multiple endpoints
	mux := http.NewServeMux()
	mux.HandleFunc("/", mcpserver.NewLandingHandler())
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(checker))
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))

	// Check if running in server mode (HTTP) or stdio mode (local development)
	serverMode := getEnv("SERVER_MODE", "false") == "true"

	if serverMode {
		// HTTP mode: serve MCP over HTTP for remote clients
		addr := "0.0.0.0:" + port
		log.Printf("Starting HTTP server on %s (MCP at /mcp, health at /health)", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	} else {
		// Stdio mode: run MCP server over stdin/stdout for local clients
		// Also start HTTP health endpoint in background for local testing
		go func() {
			addr := "0.0.0.0:" + port
			log.Printf("Starting health server on %s", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Printf("Health server error: %v", err)
			}
		}()

		log.Println("Starting documentation MCP server (stdio mode)...")
		if err := server.Run(ctx); err != nil {
			log.Printf("server error: %v", err)
			os.Exit(1)
		}
	}
}

// makeLoader returns the snapshot loader used at startup and by the
// reload_index tool. Each load builds a complete state before it is
// published, so a failed reload never disturbs the serving one.
func makeLoader(indexDir string) mcpserver.Loader {
	return func(ctx context.Context) (*mcpserver.State, error) {
		snap, err := openSnapshot(ctx, indexDir)
		if err != nil {
			return nil, err
		}

		// Queries must be embedded with the model the chunks were.
		client, err := embedding.NewClient(snap.Manifest.Model, getEnv("OPENAI_BASE_URL", ""))
		if err != nil {
			return nil, err
		}
		embedder := embedding.NewOpenAI(client, 0)

		return &mcpserver.State{
			Retriever: retriever.New(embedder, snap.Index, snap.Store, nil),
			Manifest:  snap.Manifest,
			LoadedAt:  time.Now().UTC(),
		}, nil
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
		return nil, fmt.Errorf("%w: collection holds %d points, store has %d entries",
			indexer.ErrArtifactMismatch, idx.Size(), store.Len())
	}
	return &indexer.Snapshot{Index: idx, Store: store, Manifest: manifest}, nil
}

// healthFunc adapts a function to the HealthChecker interface.
type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }

// retryStartup runs op under the startup backoff policy: initial interval
// 500ms, max interval 10s, give up after 30s.
func retryStartup(ctx context.Context, op backoff.Operation) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(op, backoff.WithContext(b, ctx))
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
