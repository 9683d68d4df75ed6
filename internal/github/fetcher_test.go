package github

import (
	"strings"
	"testing"
)

func testFetcher(t *testing.T) *Fetcher {
	t.Helper()
	f, err := NewFetcher(nil, "acme", "widgets", "docs", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestConvertSectionsSplitsByHeader(t *testing.T) {
	f := testFetcher(t)
	doc := &FetchedDoc{
		Path: "guide/setup.md",
		URL:  "https://github.com/acme/widgets/blob/main/docs/guide/setup.md",
		Content: `# Setup Guide

Install the tool first.

## Configuration

Edit the config file. Restart after changes.
`,
	}

	docs := f.convertSections(doc)
	if len(docs) != 2 {
		t.Fatalf("expected 2 section documents, got %d", len(docs))
	}

	if docs[0].Title != "Setup Guide" {
		t.Errorf("docs[0].Title = %q", docs[0].Title)
	}
	if !strings.Contains(docs[0].Text, "Install the tool first.") {
		t.Errorf("docs[0].Text = %q", docs[0].Text)
	}
	if docs[0].SourceURL != doc.URL+"#setup-guide" {
		t.Errorf("docs[0].SourceURL = %q", docs[0].SourceURL)
	}

	if docs[1].Title != "Configuration" {
		t.Errorf("docs[1].Title = %q", docs[1].Title)
	}
	if docs[1].SourceURL != doc.URL+"#configuration" {
		t.Errorf("docs[1].SourceURL = %q", docs[1].SourceURL)
	}
	if strings.Contains(docs[1].Text, "Install the tool") {
		t.Error("section texts overlap")
	}
}

func TestConvertSectionsPreambleTitle(t *testing.T) {
	f := testFetcher(t)
	doc := &FetchedDoc{
		Path:    "overview.md",
		URL:     "https://github.com/acme/widgets/blob/main/docs/overview.md",
		Content: "Plain introduction with no headers at all.\n",
	}

	docs := f.convertSections(doc)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Title != "overview" {
		t.Errorf("untitled section should take the file name, got %q", docs[0].Title)
	}
	if docs[0].SourceURL != doc.URL {
		t.Errorf("no anchor expected, got %q", docs[0].SourceURL)
	}
}

func TestConvertSectionsDropsEmpty(t *testing.T) {
	f := testFetcher(t)
	doc := &FetchedDoc{
		Path: "stub.md",
		URL:  "https://github.com/acme/widgets/blob/main/docs/stub.md",
		Content: `<!-- draft marker -->

# Real Content

Something to index.
`,
	}

	// The preamble renders to nothing and must not become a document.
	docs := f.convertSections(doc)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Title != "Real Content" {
		t.Errorf("docs[0].Title = %q", docs[0].Title)
	}
}

func TestNewFetcherValidation(t *testing.T) {
	if _, err := NewFetcher(nil, "", "repo", "docs", "", nil); err == nil {
		t.Error("missing owner should fail")
	}
	if _, err := NewFetcher(nil, "owner", "", "docs", "", nil); err == nil {
		t.Error("missing repo should fail")
	}

	f, err := NewFetcher(nil, "owner", "repo", "", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.ref != DefaultRef {
		t.Errorf("ref = %q, want %q", f.ref, DefaultRef)
	}
}
