package chunkstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleEntries() []Entry {
	return []Entry{
		{Text: "Plain chunk about settings.", SourceURL: "https://docs.example.com/settings", Title: "Settings"},
		{Text: "Text with, commas and \"quotes\".", SourceURL: "https://docs.example.com/a", Title: "A, B"},
		{Text: "Multi\nline\nchunk.", Title: "Lines"},
		{Text: "Unicode: 日本語 and emoji ✓."},
	}
}

func TestResolve(t *testing.T) {
	s := New(sampleEntries())

	entry, err := s.Resolve(1)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if entry.SourceURL != "https://docs.example.com/a" {
		t.Errorf("wrong entry: %+v", entry)
	}

	for _, id := range []int64{-1, 4, 100} {
		if _, err := s.Resolve(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("id %d: got %v, want ErrNotFound", id, err)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "chunks.json")
	csvPath := filepath.Join(dir, "chunks.csv")

	s := New(sampleEntries())
	if err := s.SaveJSON(jsonPath); err != nil {
		t.Fatalf("SaveJSON failed: %v", err)
	}
	if err := s.SaveCSV(csvPath); err != nil {
		t.Fatalf("SaveCSV failed: %v", err)
	}

	loaded, err := Load(jsonPath, csvPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Len() != s.Len() {
		t.Fatalf("expected %d entries, got %d", s.Len(), loaded.Len())
	}
	for id := int64(0); id < int64(s.Len()); id++ {
		want, _ := s.Resolve(id)
		got, err := loaded.Resolve(id)
		if err != nil {
			t.Fatalf("Resolve(%d) failed: %v", id, err)
		}
		if got != want {
			t.Errorf("entry %d changed across round trip:\nsaved  %+v\nloaded %+v", id, want, got)
		}
	}
}

func TestJSONKeysAreDenseStrings(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "chunks.json")

	s := New(sampleEntries())
	if err := s.SaveJSON(jsonPath); err != nil {
		t.Fatalf("SaveJSON failed: %v", err)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"0"`, `"1"`, `"2"`, `"3"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("mapping file missing key %s", key)
		}
	}
}

func TestLoadJSONRejectsGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	content := `{"0": {"text": "a"}, "2": {"text": "c"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadJSON(path); !errors.Is(err, ErrInconsistent) {
		t.Errorf("got %v, want ErrInconsistent", err)
	}
}

func TestLoadJSONRejectsNonIntegerKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	content := `{"0": {"text": "a"}, "chunk-1": {"text": "b"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadJSON(path); !errors.Is(err, ErrInconsistent) {
		t.Errorf("got %v, want ErrInconsistent", err)
	}
}

func TestLoadDetectsViewDisagreement(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "chunks.json")
	csvPath := filepath.Join(dir, "chunks.csv")

	if err := New(sampleEntries()).SaveJSON(jsonPath); err != nil {
		t.Fatalf("SaveJSON failed: %v", err)
	}
	tampered := sampleEntries()
	tampered[2].Text = "replaced text"
	if err := New(tampered).SaveCSV(csvPath); err != nil {
		t.Fatalf("SaveCSV failed: %v", err)
	}

	if _, err := Load(jsonPath, csvPath); !errors.Is(err, ErrInconsistent) {
		t.Errorf("got %v, want ErrInconsistent", err)
	}
}

func TestLoadDetectsLengthMismatch(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "chunks.json")
	csvPath := filepath.Join(dir, "chunks.csv")

	if err := New(sampleEntries()).SaveJSON(jsonPath); err != nil {
		t.Fatalf("SaveJSON failed: %v", err)
	}
	if err := New(sampleEntries()[:2]).SaveCSV(csvPath); err != nil {
		t.Fatalf("SaveCSV failed: %v", err)
	}

	if _, err := Load(jsonPath, csvPath); !errors.Is(err, ErrInconsistent) {
		t.Errorf("got %v, want ErrInconsistent", err)
	}
}

func TestEmptyStore(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "chunks.json")
	csvPath := filepath.Join(dir, "chunks.csv")

	s := New(nil)
	if err := s.SaveJSON(jsonPath); err != nil {
		t.Fatalf("SaveJSON failed: %v", err)
	}
	if err := s.SaveCSV(csvPath); err != nil {
		t.Fatalf("SaveCSV failed: %v", err)
	}

	loaded, err := Load(jsonPath, csvPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Len() != 0 {
		t.Errorf("expected empty store, got %d entries", loaded.Len())
	}
	if _, err := loaded.Resolve(0); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
