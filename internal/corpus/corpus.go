// Package corpus defines the document collection consumed by the index
// builder and the readers and writers for its on-disk JSON form.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrEmpty indicates a corpus file with no documents.
	ErrEmpty = errors.New("corpus contains no documents")
	// ErrMissingText indicates a document without the required text field.
	ErrMissingText = errors.New("document has no text")
)

// Document is one unit of source material: a scraped page, a markdown
// section, or any other block of prose. SourceURL and Title are optional
// provenance carried through to retrieval results.
type Document struct {
	SourceURL string `json:"source_url,omitempty"`
	Title     string `json:"title,omitempty"`
	Text      string `json:"text"`
}

// Read loads a corpus file: a JSON array of documents.
func Read(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", path, err)
	}
	return docs, nil
}

// Write stores documents as a JSON array. The file is staged next to the
// destination and renamed into place so readers never observe a partial
// corpus.
func Write(path string, docs []Document) error {
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create corpus directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".corpus-*.json")
	if err != nil {
		return fmt.Errorf("stage corpus: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write corpus: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write corpus: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("commit corpus: %w", err)
	}
	return nil
}

// Validate checks that a corpus is usable for indexing: at least one
// document, and every document carries text.
func Validate(docs []Document) error {
	if len(docs) == 0 {
		return ErrEmpty
	}
	for i, doc := range docs {
		if doc.Text == "" {
			return fmt.Errorf("%w: document %d (%s)", ErrMissingText, i, doc.SourceURL)
		}
	}
	return nil
}
