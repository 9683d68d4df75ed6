package vecindex

import (
	"context"
	"fmt"
	"sort"
)

// Flat is the exact strategy: every search scans every stored vector.
// Results are exact, cost grows linearly with the corpus.
//
// Vectors are packed row-major into one slice; id i occupies
// data[i*dim : (i+1)*dim].
type Flat struct {
	dim  int
	data []float32
}

// NewFlat creates an empty exact index. dim 0 defers the dimension to the
// first Add, which an empty build uses.
func NewFlat(dim int) (*Flat, error) {
	if dim < 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dim)
	}
	return &Flat{dim: dim}, nil
}

// Add appends vectors in order. The first vector added to a dimensionless
// index fixes the dimension.
func (f *Flat) Add(_ context.Context, vectors [][]float32) error {
	for i, v := range vectors {
		if f.dim == 0 && len(v) > 0 {
			f.dim = len(v)
		}
		if len(v) != f.dim {
			return fmt.Errorf("%w: vector %d has dimension %d, index has %d", ErrDimensionMismatch, i, len(v), f.dim)
		}
		f.data = append(f.data, v...)
	}
	return nil
}

// Search scans all vectors and returns the k nearest, ascending by
// distance with ties broken by lower id.
func (f *Flat) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrBadK, k)
	}
	n := f.Size()
	if n == 0 {
		return nil, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", ErrDimensionMismatch, len(query), f.dim)
	}

	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		hits[i] = Hit{ID: int64(i), Distance: cosineDistance(query, f.row(i))}
	}
	sortHits(hits)

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Size reports the number of stored vectors.
func (f *Flat) Size() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// Dimension reports the vector dimension, 0 while undetermined.
func (f *Flat) Dimension() int {
	return f.dim
}

// Kind identifies the strategy for the manifest.
func (f *Flat) Kind() string {
	return "flat"
}

func (f *Flat) row(i int) []float32 {
	return f.data[i*f.dim : (i+1)*f.dim]
}

// sortHits orders ascending by distance, then by id so equal distances
// resolve deterministically.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
}
