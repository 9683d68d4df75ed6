package vecindex

import (
	"context"
	"fmt"
	"math/rand"
)

const (
	// maxKMeansIters caps Lloyd iterations during training. Assignments
	// usually stabilize well before this on documentation-sized corpora.
	maxKMeansIters = 25

	// kmeansSeed fixes centroid initialization so identical training sets
	// produce identical indexes.
	kmeansSeed = 1
)

// IVF is the approximate strategy: training partitions the vector space
// into nlist cells around k-means centroids, and every stored vector joins
// the inverted list of its nearest centroid. A search ranks centroids
// against the query and scans only the nprobe nearest lists, trading
// recall for speed. Higher nprobe means better recall and slower search;
// nprobe equal to nlist degenerates to exact search.
type IVF struct {
	dim    int
	nlist  int
	nprobe int

	centroids []float32 // packed nlist x dim
	lists     [][]int64 // member ids per centroid
	data      []float32 // packed vectors by id, for exact in-list distances
	trained   bool
}

// NewIVF creates an untrained inverted-file index. Train must run before
// Add. nprobe below 1 is raised to 1.
func NewIVF(dim, nlist, nprobe int) (*IVF, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dim)
	}
	if nlist <= 0 {
		return nil, fmt.Errorf("ivf: nlist must be positive, got %d", nlist)
	}
	if nprobe < 1 {
		nprobe = 1
	}
	return &IVF{dim: dim, nlist: nlist, nprobe: nprobe}, nil
}

// NList reports the number of cells after training; before training it is
// the requested count, which Train may lower to the training set size.
func (x *IVF) NList() int { return x.nlist }

// NProbe reports how many cells a search scans.
func (x *IVF) NProbe() int { return x.nprobe }

// Train learns centroids from the given vectors with k-means. The training
// set is normally the full vector set being indexed. nlist is lowered to
// the training set size when it exceeds it.
func (x *IVF) Train(vectors [][]float32) error {
	if len(vectors) == 0 {
		return fmt.Errorf("ivf train: %w", ErrNoVectors)
	}
	for i, v := range vectors {
		if len(v) != x.dim {
			return fmt.Errorf("ivf train: %w: vector %d has dimension %d, index has %d", ErrDimensionMismatch, i, len(v), x.dim)
		}
	}

	if x.nlist > len(vectors) {
		x.nlist = len(vectors)
	}
	if x.nprobe > x.nlist {
		x.nprobe = x.nlist
	}

	x.centroids = kmeans(vectors, x.nlist, x.dim)
	x.lists = make([][]int64, x.nlist)
	x.trained = true
	return nil
}

// Add assigns each vector to its nearest cell. Ids continue from the
// current size in insertion order.
func (x *IVF) Add(_ context.Context, vectors [][]float32) error {
	if !x.trained {
		return fmt.Errorf("ivf add: %w", ErrNotTrained)
	}
	for i, v := range vectors {
		if len(v) != x.dim {
			return fmt.Errorf("ivf add: %w: vector %d has dimension %d, index has %d", ErrDimensionMismatch, i, len(v), x.dim)
		}
		id := int64(x.Size())
		x.data = append(x.data, v...)
		cell := x.nearestCell(v)
		x.lists[cell] = append(x.lists[cell], id)
	}
	return nil
}

// Search ranks cells by centroid distance, scans the nprobe nearest, and
// returns up to k hits ascending by exact distance, ties broken by lower
// id. Vectors outside the probed cells are never considered.
func (x *IVF) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrBadK, k)
	}
	if x.Size() == 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", ErrDimensionMismatch, len(query), x.dim)
	}

	cells := make([]Hit, x.nlist)
	for c := 0; c < x.nlist; c++ {
		cells[c] = Hit{ID: int64(c), Distance: cosineDistance(query, x.centroid(c))}
	}
	sortHits(cells)

	probe := min(x.nprobe, x.nlist)
	var hits []Hit
	for _, cell := range cells[:probe] {
		for _, id := range x.lists[cell.ID] {
			hits = append(hits, Hit{ID: id, Distance: cosineDistance(query, x.row(int(id)))})
		}
	}
	sortHits(hits)

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Size reports the number of stored vectors.
func (x *IVF) Size() int {
	return len(x.data) / x.dim
}

// Dimension reports the vector dimension.
func (x *IVF) Dimension() int {
	return x.dim
}

// Kind identifies the strategy for the manifest.
func (x *IVF) Kind() string {
	return "ivf"
}

func (x *IVF) row(i int) []float32 {
	return x.data[i*x.dim : (i+1)*x.dim]
}

func (x *IVF) centroid(c int) []float32 {
	return x.centroids[c*x.dim : (c+1)*x.dim]
}

func (x *IVF) nearestCell(v []float32) int {
	best, bestDist := 0, cosineDistance(v, x.centroid(0))
	for c := 1; c < x.nlist; c++ {
		if d := cosineDistance(v, x.centroid(c)); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// kmeans runs seeded k-means++ initialization followed by Lloyd
// iterations. Centroids are re-normalized after every update step, which
// for unit input vectors is spherical k-means. The fixed seed makes
// training deterministic.
func kmeans(vectors [][]float32, nlist, dim int) []float32 {
	n := len(vectors)
	rng := rand.New(rand.NewSource(kmeansSeed))

	centroids := seedCentroids(vectors, nlist, dim, rng)
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < maxKMeansIters; iter++ {
		changed := false
		for i, v := range vectors {
			best, bestDist := 0, cosineDistance(v, centroids[0:dim])
			for c := 1; c < nlist; c++ {
				if d := cosineDistance(v, centroids[c*dim:(c+1)*dim]); d < bestDist {
					best, bestDist = c, d
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([]float64, nlist*dim)
		counts := make([]int, nlist)
		for i, v := range vectors {
			c := assign[i]
			counts[c]++
			for j, val := range v {
				sums[c*dim+j] += float64(val)
			}
		}
		for c := 0; c < nlist; c++ {
			if counts[c] == 0 {
				// Re-seed a dead cell with a random point so every cell
				// keeps a centroid.
				copy(centroids[c*dim:(c+1)*dim], vectors[rng.Intn(n)])
				continue
			}
			cell := centroids[c*dim : (c+1)*dim]
			for j := 0; j < dim; j++ {
				cell[j] = float32(sums[c*dim+j] / float64(counts[c]))
			}
			normalize(cell)
		}
	}
	return centroids
}

// seedCentroids picks initial centroids k-means++ style: the first at
// random, each next weighted by distance to the nearest already chosen.
func seedCentroids(vectors [][]float32, nlist, dim int, rng *rand.Rand) []float32 {
	n := len(vectors)
	centroids := make([]float32, nlist*dim)

	copy(centroids[0:dim], vectors[rng.Intn(n)])

	dist := make([]float64, n)
	for c := 1; c < nlist; c++ {
		var total float64
		for i, v := range vectors {
			d := cosineDistance(v, centroids[(c-1)*dim:c*dim])
			if c == 1 || d < dist[i] {
				dist[i] = d
			}
			total += dist[i]
		}

		pick := 0
		if total > 0 {
			r := rng.Float64() * total
			var cum float64
			for i := range dist {
				cum += dist[i]
				if cum >= r {
					pick = i
					break
				}
			}
		} else {
			pick = rng.Intn(n)
		}
		copy(centroids[c*dim:(c+1)*dim], vectors[pick])
	}
	return centroids
}
