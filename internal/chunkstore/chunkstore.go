// Package chunkstore maps dense chunk ids to their text and provenance.
// The store persists as two redundant views written by every build: a JSON
// id-to-entry mapping and a CSV table whose row order is id order. Loads
// verify the views agree before serving anything.
package chunkstore

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

var (
	// ErrNotFound indicates an id outside the store.
	ErrNotFound = errors.New("chunk id not found")

	// ErrInconsistent indicates persisted views that disagree with each
	// other or with the dense id contract.
	ErrInconsistent = errors.New("chunk store views disagree")
)

// Entry is the stored text and provenance for one chunk id.
type Entry struct {
	Text      string `json:"text"`
	SourceURL string `json:"source_url,omitempty"`
	Title     string `json:"title,omitempty"`
}

// Store holds entries for ids 0..N-1, id i at position i.
type Store struct {
	entries []Entry
}

// New builds a store over entries in id order.
func New(entries []Entry) *Store {
	return &Store{entries: entries}
}

// Len reports the number of entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// Resolve returns the entry for id. Ids outside [0, Len) resolve to
// ErrNotFound.
func (s *Store) Resolve(id int64) (Entry, error) {
	if id < 0 || id >= int64(len(s.entries)) {
		return Entry{}, fmt.Errorf("%w: id %d outside [0, %d)", ErrNotFound, id, len(s.entries))
	}
	return s.entries[id], nil
}

// SaveJSON writes the id-to-entry mapping with string keys ("0", "1", ...).
func (s *Store) SaveJSON(path string) error {
	mapping := make(map[string]Entry, len(s.entries))
	for i, e := range s.entries {
		mapping[strconv.Itoa(i)] = e
	}

	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return fmt.Errorf("encode chunk mapping: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write chunk mapping: %w", err)
	}
	return nil
}

// SaveCSV writes the tabular view, one row per id in id order. The csv
// encoder quotes embedded newlines and commas, so entries survive the
// round trip byte for byte.
func (s *Store) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chunk table: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "title", "source_url", "text"}); err != nil {
		f.Close()
		return fmt.Errorf("write chunk table header: %w", err)
	}
	for i, e := range s.entries {
		if err := w.Write([]string{strconv.Itoa(i), e.Title, e.SourceURL, e.Text}); err != nil {
			f.Close()
			return fmt.Errorf("write chunk table row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush chunk table: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close chunk table: %w", err)
	}
	return nil
}

// LoadJSON reads the mapping view, requiring keys to be exactly the
// decimal ids 0..N-1.
func LoadJSON(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chunk mapping: %w", err)
	}

	var mapping map[string]Entry
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("parse chunk mapping: %w", err)
	}

	entries := make([]Entry, len(mapping))
	seen := make([]bool, len(mapping))
	for key, entry := range mapping {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: non-integer id key %q", ErrInconsistent, key)
		}
		if id < 0 || id >= len(mapping) {
			return nil, fmt.Errorf("%w: id %d outside dense range [0, %d)", ErrInconsistent, id, len(mapping))
		}
		entries[id] = entry
		seen[id] = true
	}
	for id, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: missing id %d", ErrInconsistent, id)
		}
	}
	return New(entries), nil
}

// loadCSV reads the tabular view, requiring the id column to count 0..N-1
// in order.
func loadCSV(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chunk table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse chunk table: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: chunk table has no header", ErrInconsistent)
	}

	entries := make([]Entry, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != 4 {
			return nil, fmt.Errorf("%w: row %d has %d columns", ErrInconsistent, i, len(rec))
		}
		id, err := strconv.Atoi(rec[0])
		if err != nil || id != i {
			return nil, fmt.Errorf("%w: row %d has id %q, want %d", ErrInconsistent, i, rec[0], i)
		}
		entries = append(entries, Entry{Title: rec[1], SourceURL: rec[2], Text: rec[3]})
	}
	return New(entries), nil
}

// Load reads both views and verifies they agree entry by entry, so a
// build that half-wrote its artifacts is caught at load instead of
// serving wrong chunks.
func Load(jsonPath, csvPath string) (*Store, error) {
	fromJSON, err := LoadJSON(jsonPath)
	if err != nil {
		return nil, err
	}
	fromCSV, err := loadCSV(csvPath)
	if err != nil {
		return nil, err
	}

	if fromJSON.Len() != fromCSV.Len() {
		return nil, fmt.Errorf("%w: mapping has %d entries, table has %d", ErrInconsistent, fromJSON.Len(), fromCSV.Len())
	}
	for i := range fromJSON.entries {
		if fromJSON.entries[i] != fromCSV.entries[i] {
			return nil, fmt.Errorf("%w: entry %d differs between mapping and table", ErrInconsistent, i)
		}
	}
	return fromJSON, nil
}
