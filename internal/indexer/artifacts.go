package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gmehra/helperbot/internal/chunkstore"
	"github.com/gmehra/helperbot/internal/vecindex"
)

// Artifact file names within an index directory.
const (
	IndexFile    = "index.bin"
	MappingFile  = "chunks.json"
	TableFile    = "chunks.csv"
	ManifestFile = "manifest.json"
)

var (
	// ErrServerBacked marks artifacts whose vectors live in qdrant rather
	// than in an index file. Callers open the collection instead.
	ErrServerBacked = errors.New("index vectors are server-backed")

	// ErrArtifactMismatch marks artifact files that disagree with each
	// other, usually a half-replaced index directory.
	ErrArtifactMismatch = errors.New("artifact files disagree")
)

// Manifest records what one build produced and with which parameters, so
// serving can verify it embeds queries the same way the chunks were
// embedded.
type Manifest struct {
	BuildID      string    `json:"build_id"`
	Model        string    `json:"model"`
	Dimension    int       `json:"dimension"`
	ChunkSize    int       `json:"chunk_size"`
	Overlap      int       `json:"overlap"`
	Concatenated bool      `json:"concatenated,omitempty"`
	Documents    int       `json:"documents"`
	Chunks       int       `json:"chunks"`
	IndexKind    string    `json:"index_kind"`
	NList        int       `json:"nlist,omitempty"`
	NProbe       int       `json:"nprobe,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Snapshot is a loaded artifact set ready for retrieval.
type Snapshot struct {
	Index    vecindex.Index
	Store    *chunkstore.Store
	Manifest Manifest
}

// WriteArtifacts persists a build result into dir. Every file is staged in
// a temp directory first and renamed into place only after all of them are
// complete, the manifest last. A failed write leaves whatever dir held
// before untouched; LoadArtifacts catches a crash between renames through
// its cross checks.
func WriteArtifacts(dir string, res *Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	staging, err := os.MkdirTemp(dir, ".staging-")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	files := []string{MappingFile, TableFile, ManifestFile}

	switch err := vecindex.Save(filepath.Join(staging, IndexFile), res.Index); {
	case errors.Is(err, vecindex.ErrNotFileBacked):
		// Vectors live server-side; the manifest records the kind.
	case err != nil:
		return fmt.Errorf("write index: %w", err)
	default:
		files = append([]string{IndexFile}, files...)
	}

	if err := res.Store.SaveJSON(filepath.Join(staging, MappingFile)); err != nil {
		return err
	}
	if err := res.Store.SaveCSV(filepath.Join(staging, TableFile)); err != nil {
		return err
	}
	if err := writeManifest(filepath.Join(staging, ManifestFile), res.Manifest); err != nil {
		return err
	}

	for _, name := range files {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("commit %s: %w", name, err)
		}
	}
	return nil
}

// LoadArtifacts opens a file-backed snapshot for serving and verifies the
// files belong together: the index, the store views, and the manifest must
// agree on counts and dimension.
func LoadArtifacts(dir string) (*Snapshot, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if manifest.IndexKind == "qdrant" {
		return nil, fmt.Errorf("%w: build %s", ErrServerBacked, manifest.BuildID)
	}

	store, err := chunkstore.Load(filepath.Join(dir, MappingFile), filepath.Join(dir, TableFile))
	if err != nil {
		return nil, err
	}
	idx, err := vecindex.Open(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, err
	}

	if idx.Size() != store.Len() {
		return nil, fmt.Errorf("%w: index holds %d vectors, store has %d entries", ErrArtifactMismatch, idx.Size(), store.Len())
	}
	if manifest.Chunks != store.Len() {
		return nil, fmt.Errorf("%w: manifest says %d chunks, store has %d", ErrArtifactMismatch, manifest.Chunks, store.Len())
	}
	if store.Len() > 0 && manifest.Dimension != idx.Dimension() {
		return nil, fmt.Errorf("%w: manifest says dimension %d, index has %d", ErrArtifactMismatch, manifest.Dimension, idx.Dimension())
	}

	return &Snapshot{Index: idx, Store: store, Manifest: manifest}, nil
}

// ReadManifest reads just the manifest of an index directory.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

func writeManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
