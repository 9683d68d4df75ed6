// Package indexer runs the offline build: chunk the corpus, embed every
// chunk, fill the vector index and chunk store, and persist the whole set
// of artifacts atomically.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gmehra/helperbot/internal/chunker"
	"github.com/gmehra/helperbot/internal/chunkstore"
	"github.com/gmehra/helperbot/internal/corpus"
	"github.com/gmehra/helperbot/internal/embedding"
	"github.com/gmehra/helperbot/internal/vecindex"
)

// Config controls one index build. ChunkSize and Overlap are validated by
// the chunker before any embedding happens.
type Config struct {
	ChunkSize   int
	Overlap     int
	Concatenate bool   // chunk the corpus as one stream instead of per document
	Model       string // embedding model id, recorded in the manifest
}

// IndexFactory creates the index strategy once the vector dimension and
// count are known. The builder trains the result if the strategy needs it.
type IndexFactory func(dim, count int) (vecindex.Index, error)

// Builder orchestrates the build pipeline over an embedder and an index
// strategy.
type Builder struct {
	embedder embedding.Embedder
	newIndex IndexFactory
	logger   *slog.Logger
}

// NewBuilder creates a builder. A nil logger falls back to slog.Default.
func NewBuilder(embedder embedding.Embedder, newIndex IndexFactory, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		embedder: embedder,
		newIndex: newIndex,
		logger:   logger,
	}
}

// Result holds one completed build, ready to serve or to persist with
// WriteArtifacts.
type Result struct {
	Index    vecindex.Index
	Store    *chunkstore.Store
	Manifest Manifest
	Duration time.Duration
}

// Build runs the pipeline over the corpus. Any failure aborts the whole
// build; nothing is written to disk here, so a failed build cannot damage
// previously persisted artifacts.
func (b *Builder) Build(ctx context.Context, docs []corpus.Document, cfg Config) (*Result, error) {
	start := time.Now()

	// 1. Chunk the corpus
	var chunks []chunker.Chunk
	var err error
	if cfg.Concatenate {
		chunks, err = chunker.ChunkConcatenated(docs, cfg.ChunkSize, cfg.Overlap)
	} else {
		chunks, err = chunker.ChunkDocuments(docs, cfg.ChunkSize, cfg.Overlap)
	}
	if err != nil {
		return nil, fmt.Errorf("chunk corpus: %w", err)
	}
	b.logger.Info("Chunked corpus", "documents", len(docs), "chunks", len(chunks))

	// 2. Embed every chunk in one batched pass
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := b.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}

	// 3. Build the index, training first when the strategy requires it
	idx, err := b.newIndex(dim, len(vectors))
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	if trainable, ok := idx.(vecindex.Trainable); ok {
		if err := trainable.Train(vectors); err != nil {
			return nil, fmt.Errorf("train index: %w", err)
		}
	}
	if err := idx.Add(ctx, vectors); err != nil {
		return nil, fmt.Errorf("add vectors: %w", err)
	}

	// 4. Chunk store rows mirror index ids by position
	entries := make([]chunkstore.Entry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = chunkstore.Entry{
			Text:      chunk.Text,
			SourceURL: chunk.SourceURL,
			Title:     chunk.Title,
		}
	}
	store := chunkstore.New(entries)

	if idx.Size() != store.Len() {
		return nil, fmt.Errorf("index holds %d vectors but store has %d entries", idx.Size(), store.Len())
	}

	manifest := Manifest{
		BuildID:      uuid.New().String(),
		Model:        cfg.Model,
		Dimension:    dim,
		ChunkSize:    cfg.ChunkSize,
		Overlap:      cfg.Overlap,
		Concatenated: cfg.Concatenate,
		Documents:    len(docs),
		Chunks:       len(chunks),
		IndexKind:    idx.Kind(),
		CreatedAt:    time.Now().UTC(),
	}
	if ivf, ok := idx.(*vecindex.IVF); ok {
		manifest.NList = ivf.NList()
		manifest.NProbe = ivf.NProbe()
	}

	duration := time.Since(start)
	b.logger.Info("Build complete",
		"build_id", manifest.BuildID,
		"chunks", manifest.Chunks,
		"dimension", manifest.Dimension,
		"index_kind", manifest.IndexKind,
		"duration", duration,
	)

	return &Result{
		Index:    idx,
		Store:    store,
		Manifest: manifest,
		Duration: duration,
	}, nil
}
