package vecindex

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// fileVersion guards the on-disk layout. Bump it when filePayload changes
// shape; Open rejects files written by other versions.
const fileVersion = 1

var (
	// ErrNotFileBacked marks an attempt to Save a strategy whose vectors
	// live elsewhere (qdrant persists server-side).
	ErrNotFileBacked = errors.New("index kind is not file-backed")

	// ErrBadFile marks a corrupt or incompatible index file.
	ErrBadFile = errors.New("index file is corrupt or incompatible")
)

// filePayload is the gob form shared by both in-process strategies. Flat
// leaves the IVF fields zero.
type filePayload struct {
	Version int
	Kind    string
	Dim     int
	Count   int
	Data    []float32

	NList     int
	NProbe    int
	Centroids []float32
	Lists     [][]int64
}

// Save writes the index to path, staging and renaming so a crash never
// leaves a torn file behind.
func Save(path string, idx Index) error {
	var p filePayload
	switch v := idx.(type) {
	case *Flat:
		p = filePayload{
			Version: fileVersion,
			Kind:    v.Kind(),
			Dim:     v.dim,
			Count:   v.Size(),
			Data:    v.data,
		}
	case *IVF:
		p = filePayload{
			Version:   fileVersion,
			Kind:      v.Kind(),
			Dim:       v.dim,
			Count:     v.Size(),
			Data:      v.data,
			NList:     v.nlist,
			NProbe:    v.nprobe,
			Centroids: v.centroids,
			Lists:     v.lists,
		}
	default:
		return fmt.Errorf("%w: %s", ErrNotFileBacked, idx.Kind())
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.bin")
	if err != nil {
		return fmt.Errorf("stage index file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := gob.NewEncoder(tmp).Encode(p); err != nil {
		tmp.Close()
		return fmt.Errorf("encode index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("commit index file: %w", err)
	}
	return nil
}

// Open loads an index written by Save. Searches over the loaded index
// return exactly what the saved one returned.
func Open(path string) (Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var p filePayload
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFile, err)
	}
	if p.Version != fileVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrBadFile, p.Version, fileVersion)
	}
	if len(p.Data) != p.Dim*p.Count {
		return nil, fmt.Errorf("%w: %d floats for %d vectors of dimension %d", ErrBadFile, len(p.Data), p.Count, p.Dim)
	}

	switch p.Kind {
	case "flat":
		return &Flat{dim: p.Dim, data: p.Data}, nil
	case "ivf":
		if len(p.Centroids) != p.NList*p.Dim {
			return nil, fmt.Errorf("%w: %d centroid floats for %d cells of dimension %d", ErrBadFile, len(p.Centroids), p.NList, p.Dim)
		}
		members := 0
		for _, list := range p.Lists {
			members += len(list)
		}
		if len(p.Lists) != p.NList || members != p.Count {
			return nil, fmt.Errorf("%w: inverted lists hold %d of %d vectors", ErrBadFile, members, p.Count)
		}
		return &IVF{
			dim:       p.Dim,
			nlist:     p.NList,
			nprobe:    p.NProbe,
			centroids: p.Centroids,
			lists:     p.Lists,
			data:      p.Data,
			trained:   true,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrBadFile, p.Kind)
	}
}
