// Package qdrant backs the vector index contract with a Qdrant collection
// over gRPC. Unlike the in-process indexes, vectors live on the server:
// a rebuild recreates the collection and a load only reconnects.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sort"

	qd "github.com/qdrant/go-client/qdrant"

	"github.com/gmehra/helperbot/internal/vecindex"
)

// Connection defaults; 6334 is Qdrant's gRPC port.
const (
	DefaultHost       = "localhost"
	DefaultPort       = 6334
	DefaultCollection = "helperbot_chunks"

	upsertBatchSize = 100
)

// ErrUnreachable marks a Qdrant server that cannot be reached.
var ErrUnreachable = errors.New("qdrant unreachable")

// Config locates the collection serving as the index.
type Config struct {
	Host       string
	Port       int
	Collection string
	Dimension  int // vector width, required
}

// Index is a server-backed vector index. Point ids are the chunk ids, so
// search results resolve through the chunk store exactly like hits from
// the in-process indexes.
type Index struct {
	client     *qd.Client
	collection string
	dim        int
	size       int
}

var _ vecindex.Index = (*Index)(nil)

// Open connects to Qdrant and binds the configured collection. A missing
// collection is not an error: Recreate builds it during indexing, and
// searching it returns no hits.
func Open(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("qdrant: dimension required, got %d", cfg.Dimension)
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := qd.NewClient(&qd.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}

	idx := &Index{
		client:     client,
		collection: cfg.Collection,
		dim:        cfg.Dimension,
	}
	if err := idx.refreshSize(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return idx, nil
}

func (x *Index) refreshSize(ctx context.Context) error {
	exists, err := x.client.CollectionExists(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if !exists {
		x.size = 0
		return nil
	}
	info, err := x.client.GetCollection(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("collection %s: %w", x.collection, err)
	}
	x.size = int(info.GetPointsCount())
	return nil
}

// Recreate drops and rebuilds the collection for a fresh indexing run.
// Points already on the server are gone after this call.
func (x *Index) Recreate(ctx context.Context) error {
	exists, err := x.client.CollectionExists(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if exists {
		if err := x.client.DeleteCollection(ctx, x.collection); err != nil {
			return fmt.Errorf("delete collection %s: %w", x.collection, err)
		}
	}
	err = x.client.CreateCollection(ctx, &qd.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: qd.NewVectorsConfig(&qd.VectorParams{
			Size:     uint64(x.dim),
			Distance: qd.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", x.collection, err)
	}
	x.size = 0
	return nil
}

// Add uploads vectors as sequentially numbered points in batches of 100.
// Writes wait for server acknowledgement so Size is accurate right after
// indexing.
func (x *Index) Add(ctx context.Context, vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != x.dim {
			return fmt.Errorf("%w: got %d, index has %d", vecindex.ErrDimensionMismatch, len(v), x.dim)
		}
	}

	for start := 0; start < len(vectors); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(vectors))
		points := make([]*qd.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, &qd.PointStruct{
				Id:      qd.NewIDNum(uint64(x.size + i)),
				Vectors: qd.NewVectors(vectors[i]...),
			})
		}
		_, err := x.client.Upsert(ctx, &qd.UpsertPoints{
			CollectionName: x.collection,
			Points:         points,
			Wait:           qd.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("upsert points %d-%d: %w", x.size+start, x.size+end, err)
		}
	}
	x.size += len(vectors)
	return nil
}

// Search queries the collection and converts similarity scores to the
// ascending-distance ordering the in-process indexes produce.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]vecindex.Hit, error) {
	if k <= 0 {
		return nil, vecindex.ErrBadK
	}
	if x.size == 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", vecindex.ErrDimensionMismatch, len(query), x.dim)
	}

	points, err := x.client.Query(ctx, &qd.QueryPoints{
		CollectionName: x.collection,
		Query:          qd.NewQuery(query...),
		Limit:          qd.PtrOf(uint64(k)),
	})
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", x.collection, err)
	}

	hits := make([]vecindex.Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, vecindex.Hit{
			ID:       int64(p.Id.GetNum()),
			Distance: 1 - float64(p.GetScore()),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	return hits, nil
}

// Size returns the number of points at the last server sync.
func (x *Index) Size() int {
	return x.size
}

// Dimension returns the configured vector width.
func (x *Index) Dimension() int {
	return x.dim
}

// Kind identifies the index as server-backed in manifests.
func (x *Index) Kind() string {
	return "qdrant"
}

// Health performs one probe against the server. Callers own any retry
// policy.
func (x *Index) Health(ctx context.Context) error {
	return checkHealth(ctx, x.client)
}

// Probe dials the server, performs one health check and disconnects. It
// needs no collection or dimension, so callers can verify the server is
// up before a build knows its vector width.
func Probe(ctx context.Context, host string, port int) error {
	if host == "" {
		host = DefaultHost
	}
	if port <= 0 {
		port = DefaultPort
	}
	client, err := qd.NewClient(&qd.Config{Host: host, Port: port})
	if err != nil {
		return fmt.Errorf("qdrant client: %w", err)
	}
	defer client.Close()
	return checkHealth(ctx, client)
}

func checkHealth(ctx context.Context, client *qd.Client) error {
	reply, err := client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if reply == nil || reply.GetTitle() == "" {
		return fmt.Errorf("%w: empty health reply", ErrUnreachable)
	}
	return nil
}

// Close releases the gRPC connection.
func (x *Index) Close() error {
	return x.client.Close()
}
