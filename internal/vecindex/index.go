// Package vecindex provides nearest-neighbor search over unit vectors by
// cosine distance. Two in-process strategies are included: Flat (exact
// brute force) and IVF (approximate inverted-file search). A server-backed
// strategy lives in the qdrant subpackage.
package vecindex

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrDimensionMismatch indicates a vector whose dimension differs from
	// the index's.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrBadK indicates a non-positive neighbor count.
	ErrBadK = errors.New("k must be positive")

	// ErrNotTrained indicates an Add or Search on an index whose training
	// step has not run.
	ErrNotTrained = errors.New("index is not trained")

	// ErrNoVectors indicates a training set with no vectors.
	ErrNoVectors = errors.New("no vectors to train on")
)

// Hit is one nearest-neighbor result. Distance is cosine distance
// (1 - inner product for unit vectors): 0 identical, 2 opposite.
type Hit struct {
	ID       int64
	Distance float64
}

// Index stores vectors under dense sequential ids and finds the nearest
// neighbors of a query. The i-th vector ever added gets id i, matching the
// chunk store's ids.
type Index interface {
	// Add appends vectors to the index, assigning ids in insertion order.
	Add(ctx context.Context, vectors [][]float32) error

	// Search returns up to k nearest hits, ascending by distance, ties
	// broken by lower id. An empty index yields no hits and no error.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)

	// Size reports the number of stored vectors.
	Size() int

	// Dimension reports the vector dimension, 0 while the index is empty.
	Dimension() int

	// Kind identifies the strategy ("flat", "ivf", "qdrant") for the
	// manifest.
	Kind() string
}

// Trainable is implemented by strategies that need a training pass over
// representative vectors before Add (IVF learns its centroids there).
type Trainable interface {
	Train(vectors [][]float32) error
}

// dot computes the inner product in float64 so accumulation error stays
// below tie-breaking thresholds.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// cosineDistance assumes unit vectors, where 1 - dot is the cosine
// distance.
func cosineDistance(a, b []float32) float64 {
	return 1 - dot(a, b)
}

// normalize rescales v to unit length in place. Zero vectors stay zero.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
