package indexer

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gmehra/helperbot/internal/chunker"
	"github.com/gmehra/helperbot/internal/chunkstore"
	"github.com/gmehra/helperbot/internal/corpus"
	"github.com/gmehra/helperbot/internal/vecindex"
)

// stubEmbedder maps each text to a deterministic 2D unit vector, so builds
// are repeatable without a backend.
type stubEmbedder struct {
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New32a()
		h.Write([]byte(text))
		angle := float64(h.Sum32()%360) * math.Pi / 180
		vectors[i] = []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
	}
	return vectors, nil
}

func flatFactory(dim, _ int) (vecindex.Index, error) {
	return vecindex.NewFlat(dim)
}

func testCorpus() []corpus.Document {
	return []corpus.Document{
		{SourceURL: "https://docs.example.com/settings", Title: "Settings", Text: "Open settings. Pick a theme. Save your changes. Restart the app."},
		{SourceURL: "https://docs.example.com/logs", Title: "Logs", Text: "Logs live under the data directory. Rotate them weekly. Ship them to storage. Purge old files."},
	}
}

func testConfig() Config {
	return Config{ChunkSize: 3, Overlap: 1, Model: "test-embedding-model"}
}

func TestBuildIndexesEveryChunk(t *testing.T) {
	b := NewBuilder(&stubEmbedder{}, flatFactory, nil)

	res, err := b.Build(context.Background(), testCorpus(), testConfig())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	wantChunks, err := chunker.ChunkDocuments(testCorpus(), 3, 1)
	if err != nil {
		t.Fatal(err)
	}

	if res.Store.Len() != len(wantChunks) {
		t.Fatalf("store has %d entries, want %d", res.Store.Len(), len(wantChunks))
	}
	if res.Index.Size() != len(wantChunks) {
		t.Fatalf("index has %d vectors, want %d", res.Index.Size(), len(wantChunks))
	}

	// Entry i must be chunk i: ids join the index to the store.
	for i, want := range wantChunks {
		entry, err := res.Store.Resolve(int64(i))
		if err != nil {
			t.Fatalf("Resolve(%d) failed: %v", i, err)
		}
		if entry.Text != want.Text || entry.SourceURL != want.SourceURL || entry.Title != want.Title {
			t.Errorf("entry %d mismatch:\ngot  %+v\nwant %+v", i, entry, want)
		}
	}

	m := res.Manifest
	if m.BuildID == "" {
		t.Error("manifest missing build id")
	}
	if m.Model != "test-embedding-model" {
		t.Errorf("manifest model %q", m.Model)
	}
	if m.IndexKind != "flat" || m.Dimension != 2 || m.Chunks != len(wantChunks) || m.Documents != 2 {
		t.Errorf("manifest fields wrong: %+v", m)
	}
	if m.ChunkSize != 3 || m.Overlap != 1 {
		t.Errorf("manifest chunker params wrong: %+v", m)
	}
	if m.CreatedAt.IsZero() {
		t.Error("manifest missing created_at")
	}
}

func TestBuildRejectsConfigBeforeEmbedding(t *testing.T) {
	emb := &stubEmbedder{}
	b := NewBuilder(emb, flatFactory, nil)

	_, err := b.Build(context.Background(), testCorpus(), Config{ChunkSize: 5, Overlap: 5})
	if !errors.Is(err, chunker.ErrOverlap) {
		t.Fatalf("got %v, want ErrOverlap", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder was called %d times for an invalid config", emb.calls)
	}
}

func TestBuildEmbedderFailure(t *testing.T) {
	wantErr := errors.New("backend down")
	b := NewBuilder(&stubEmbedder{err: wantErr}, flatFactory, nil)

	_, err := b.Build(context.Background(), testCorpus(), testConfig())
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want wrapped backend error", err)
	}
}

func TestBuildEmptyCorpus(t *testing.T) {
	b := NewBuilder(&stubEmbedder{}, flatFactory, nil)

	res, err := b.Build(context.Background(), nil, testConfig())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if res.Store.Len() != 0 || res.Index.Size() != 0 {
		t.Errorf("expected empty build, got %d entries, %d vectors", res.Store.Len(), res.Index.Size())
	}
	if res.Manifest.Chunks != 0 || res.Manifest.Dimension != 0 {
		t.Errorf("manifest should record an empty build: %+v", res.Manifest)
	}
}

func TestBuildIVFRecordsParameters(t *testing.T) {
	factory := func(dim, count int) (vecindex.Index, error) {
		return vecindex.NewIVF(dim, 2, 2)
	}
	b := NewBuilder(&stubEmbedder{}, factory, nil)

	res, err := b.Build(context.Background(), testCorpus(), testConfig())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if res.Manifest.IndexKind != "ivf" {
		t.Errorf("manifest kind %q, want ivf", res.Manifest.IndexKind)
	}
	if res.Manifest.NList != 2 || res.Manifest.NProbe != 2 {
		t.Errorf("manifest ivf parameters wrong: nlist %d nprobe %d", res.Manifest.NList, res.Manifest.NProbe)
	}
}

func TestBuildDeterministic(t *testing.T) {
	b := NewBuilder(&stubEmbedder{}, flatFactory, nil)

	first, err := b.Build(context.Background(), testCorpus(), testConfig())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, err := b.Build(context.Background(), testCorpus(), testConfig())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	query := []float32{1, 0}
	hitsA, err := first.Index.Search(context.Background(), query, 4)
	if err != nil {
		t.Fatal(err)
	}
	hitsB, err := second.Index.Search(context.Background(), query, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(hitsA) != len(hitsB) {
		t.Fatalf("hit counts differ: %d vs %d", len(hitsA), len(hitsB))
	}
	for i := range hitsA {
		if hitsA[i] != hitsB[i] {
			t.Errorf("rank %d differs between identical builds: %+v vs %+v", i, hitsA[i], hitsB[i])
		}
	}
}

func TestWriteLoadArtifactsRoundTrip(t *testing.T) {
	b := NewBuilder(&stubEmbedder{}, flatFactory, nil)
	res, err := b.Build(context.Background(), testCorpus(), testConfig())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	dir := t.TempDir()
	if err := WriteArtifacts(dir, res); err != nil {
		t.Fatalf("WriteArtifacts failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make(map[string]bool)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".staging-") {
			t.Errorf("staging directory left behind: %s", e.Name())
		}
		names[e.Name()] = true
	}
	for _, want := range []string{IndexFile, MappingFile, TableFile, ManifestFile} {
		if !names[want] {
			t.Errorf("missing artifact %s", want)
		}
	}

	snap, err := LoadArtifacts(dir)
	if err != nil {
		t.Fatalf("LoadArtifacts failed: %v", err)
	}
	if snap.Manifest.BuildID != res.Manifest.BuildID {
		t.Errorf("manifest build id changed: %q vs %q", snap.Manifest.BuildID, res.Manifest.BuildID)
	}

	query := []float32{0, 1}
	want, err := res.Index.Search(context.Background(), query, 3)
	if err != nil {
		t.Fatal(err)
	}
	got, err := snap.Index.Search(context.Background(), query, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hit %d differs after reload: %+v vs %+v", i, got[i], want[i])
		}
		entry, err := snap.Store.Resolve(got[i].ID)
		if err != nil {
			t.Errorf("loaded store cannot resolve hit id %d: %v", got[i].ID, err)
		} else if entry.Text == "" {
			t.Errorf("hit id %d resolved to empty text", got[i].ID)
		}
	}
}

func TestWriteArtifactsReplacesPreviousBuild(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(&stubEmbedder{}, flatFactory, nil)

	first, err := b.Build(context.Background(), testCorpus(), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteArtifacts(dir, first); err != nil {
		t.Fatal(err)
	}

	bigger := append(testCorpus(), corpus.Document{SourceURL: "https://docs.example.com/api", Title: "API", Text: "Call the endpoint. Check the response. Handle errors."})
	second, err := b.Build(context.Background(), bigger, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteArtifacts(dir, second); err != nil {
		t.Fatal(err)
	}

	snap, err := LoadArtifacts(dir)
	if err != nil {
		t.Fatalf("LoadArtifacts failed: %v", err)
	}
	if snap.Manifest.BuildID != second.Manifest.BuildID {
		t.Errorf("directory still serves the old build")
	}
	if snap.Store.Len() != second.Store.Len() {
		t.Errorf("store has %d entries, want %d", snap.Store.Len(), second.Store.Len())
	}
}

func TestFailedRebuildKeepsPreviousArtifacts(t *testing.T) {
	dir := t.TempDir()
	good := NewBuilder(&stubEmbedder{}, flatFactory, nil)

	first, err := good.Build(context.Background(), testCorpus(), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteArtifacts(dir, first); err != nil {
		t.Fatal(err)
	}

	broken := NewBuilder(&stubEmbedder{err: errors.New("backend down")}, flatFactory, nil)
	if _, err := broken.Build(context.Background(), testCorpus(), testConfig()); err == nil {
		t.Fatal("expected the rebuild to fail")
	}

	snap, err := LoadArtifacts(dir)
	if err != nil {
		t.Fatalf("previous artifacts no longer load: %v", err)
	}
	if snap.Manifest.BuildID != first.Manifest.BuildID {
		t.Errorf("failed rebuild disturbed the deployed build")
	}
}

func TestLoadArtifactsDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(&stubEmbedder{}, flatFactory, nil)
	res, err := b.Build(context.Background(), testCorpus(), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteArtifacts(dir, res); err != nil {
		t.Fatal(err)
	}

	// A manifest from a different build must not pass the cross checks.
	bad := res.Manifest
	bad.Chunks++
	if err := writeManifest(filepath.Join(dir, ManifestFile), bad); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadArtifacts(dir); !errors.Is(err, ErrArtifactMismatch) {
		t.Errorf("got %v, want ErrArtifactMismatch", err)
	}
}

// qdrantStub stands in for the server-backed strategy in artifact tests.
type qdrantStub struct{}

func (qdrantStub) Add(context.Context, [][]float32) error { return nil }
func (qdrantStub) Search(context.Context, []float32, int) ([]vecindex.Hit, error) {
	return nil, nil
}
func (qdrantStub) Size() int      { return 0 }
func (qdrantStub) Dimension() int { return 2 }
func (qdrantStub) Kind() string   { return "qdrant" }

func TestArtifactsServerBacked(t *testing.T) {
	dir := t.TempDir()
	res := &Result{
		Index:    qdrantStub{},
		Store:    chunkstore.New(nil),
		Manifest: Manifest{BuildID: "b1", IndexKind: "qdrant"},
	}
	if err := WriteArtifacts(dir, res); err != nil {
		t.Fatalf("WriteArtifacts failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, IndexFile)); !os.IsNotExist(err) {
		t.Errorf("server-backed build must not write %s", IndexFile)
	}
	if _, err := LoadArtifacts(dir); !errors.Is(err, ErrServerBacked) {
		t.Errorf("got %v, want ErrServerBacked", err)
	}
	if _, err := ReadManifest(dir); err != nil {
		t.Errorf("manifest should still be readable: %v", err)
	}
}
