// Package retriever answers queries against a built index: embed the
// query, search the index, resolve hit ids to stored chunks.
package retriever

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gmehra/helperbot/internal/chunkstore"
	"github.com/gmehra/helperbot/internal/embedding"
	"github.com/gmehra/helperbot/internal/vecindex"
)

// Searcher is the slice of the vector index retrieval needs.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]vecindex.Hit, error)
}

// Resolver maps chunk ids to their stored text and provenance.
type Resolver interface {
	Resolve(id int64) (chunkstore.Entry, error)
}

// Result is one retrieved chunk, nearest first.
type Result struct {
	Text      string
	SourceURL string
	Title     string
	Distance  float64
}

// Retriever wires an embedder, an index and a chunk store into the query
// path. It holds no mutable state and is safe for concurrent use.
type Retriever struct {
	embedder embedding.Embedder
	index    Searcher
	store    Resolver
	logger   *slog.Logger
}

// New creates a retriever. A nil logger falls back to slog.Default.
func New(embedder embedding.Embedder, index Searcher, store Resolver, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		store:    store,
		logger:   logger,
	}
}

// Retrieve returns up to k chunks nearest the query, best first. k <= 0
// and an empty index both yield an empty result, not an error. A hit
// whose id the store cannot resolve is logged and skipped; the rest of
// the results still come back.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}

	hits, err := r.index.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		entry, err := r.store.Resolve(hit.ID)
		if err != nil {
			// The index and the store disagree about this id. Keep
			// serving the resolvable hits, but leave a trace.
			r.logger.Warn("dropping hit with unresolvable chunk id", "id", hit.ID, "error", err)
			continue
		}
		results = append(results, Result{
			Text:      entry.Text,
			SourceURL: entry.SourceURL,
			Title:     entry.Title,
			Distance:  hit.Distance,
		})
	}
	return results, nil
}
