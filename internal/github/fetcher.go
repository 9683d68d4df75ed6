package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"

	"github.com/gmehra/helperbot/internal/corpus"
	"github.com/gmehra/helperbot/internal/markdown"
)

// DefaultRef is the branch blob URLs point at when none is configured.
const DefaultRef = "main"

// ErrNoRepo is returned when the fetcher is built without a repository.
var ErrNoRepo = errors.New("github: owner and repo required")

// FetchedDoc is one markdown file pulled from the repository.
type FetchedDoc struct {
	Path    string // relative path under the docs directory
	Content string // full markdown source
	SHA     string // git blob SHA
	URL     string // blob URL of the file on github.com
}

// Fetcher walks a docs directory inside a GitHub repository.
type Fetcher struct {
	client    *Client
	owner     string
	repo      string
	basePath  string
	ref       string
	sectioner *markdown.Sectioner
	logger    *slog.Logger
}

// NewFetcher builds a fetcher for owner/repo, reading markdown under
// basePath on ref. An empty basePath means the repository root; an empty
// ref means DefaultRef. The logger may be nil.
func NewFetcher(client *Client, owner, repo, basePath, ref string, logger *slog.Logger) (*Fetcher, error) {
	if owner == "" || repo == "" {
		return nil, ErrNoRepo
	}
	if ref == "" {
		ref = DefaultRef
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:    client,
		owner:     owner,
		repo:      repo,
		basePath:  basePath,
		ref:       ref,
		sectioner: markdown.NewSectioner(),
		logger:    logger,
	}, nil
}

// ListDocs returns the relative paths of every markdown file under the
// docs directory, walking subdirectories.
func (f *Fetcher) ListDocs(ctx context.Context) ([]string, error) {
	return f.listDocs(ctx, f.basePath, "")
}

func (f *Fetcher) listDocs(ctx context.Context, fullPath, relPath string) ([]string, error) {
	_, entries, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, f.getOptions())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", fullPath, err)
	}

	var docs []string
	for _, entry := range entries {
		if entry.Type == nil || entry.Name == nil {
			continue
		}
		entryRel := path.Join(relPath, *entry.Name)

		switch *entry.Type {
		case "file":
			if strings.HasSuffix(*entry.Name, ".md") {
				docs = append(docs, entryRel)
			}
		case "dir":
			sub, err := f.listDocs(ctx, path.Join(fullPath, *entry.Name), entryRel)
			if err != nil {
				return nil, err
			}
			docs = append(docs, sub...)
		}
	}
	return docs, nil
}

// FetchDoc downloads one markdown file by its relative path.
func (f *Fetcher) FetchDoc(ctx context.Context, relPath string) (*FetchedDoc, error) {
	fullPath := path.Join(f.basePath, relPath)

	file, _, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, f.getOptions())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", fullPath, err)
	}
	if file == nil {
		return nil, fmt.Errorf("fetch %s: path is a directory", fullPath)
	}

	raw, err := base64.StdEncoding.DecodeString(*file.Content)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fullPath, err)
	}

	return &FetchedDoc{
		Path:    relPath,
		Content: string(raw),
		SHA:     *file.SHA,
		URL:     fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", f.owner, f.repo, f.ref, fullPath),
	}, nil
}

// GetLatestCommitSHA returns the SHA of the newest commit touching the
// docs directory, which identifies the corpus revision.
func (f *Fetcher) GetLatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := f.client.Repositories.ListCommits(ctx, f.owner, f.repo, &github.CommitsListOptions{
		SHA:  f.ref,
		Path: f.basePath,
		ListOptions: github.ListOptions{
			PerPage: 1,
		},
	})
	if err != nil {
		return "", fmt.Errorf("latest commit: %w", err)
	}
	if len(commits) == 0 || commits[0].SHA == nil {
		return "", fmt.Errorf("no commits found for path %q", f.basePath)
	}
	return *commits[0].SHA, nil
}

// Documents fetches every markdown file and splits it into per-section
// corpus documents, each pointing back at its header anchor. Files that
// fail to fetch are logged and skipped; the returned SHA identifies the
// docs revision the corpus was built from.
func (f *Fetcher) Documents(ctx context.Context) ([]corpus.Document, string, error) {
	sha, err := f.GetLatestCommitSHA(ctx)
	if err != nil {
		return nil, "", err
	}

	paths, err := f.ListDocs(ctx)
	if err != nil {
		return nil, "", err
	}

	var docs []corpus.Document
	for _, relPath := range paths {
		fetched, err := f.FetchDoc(ctx, relPath)
		if err != nil {
			f.logger.Warn("Skipping document", "path", relPath, "error", err)
			continue
		}
		docs = append(docs, f.convertSections(fetched)...)
	}

	f.logger.Info("Fetched documentation", "files", len(paths), "documents", len(docs), "revision", sha)
	return docs, sha, nil
}

// convertSections renders each section of the file as plain text. The
// source URL carries the section's anchor so answers can link straight
// to the heading.
func (f *Fetcher) convertSections(doc *FetchedDoc) []corpus.Document {
	sections, err := f.sectioner.Split([]byte(doc.Content))
	if err != nil {
		f.logger.Warn("Skipping unparseable document", "path", doc.Path, "error", err)
		return nil
	}

	var docs []corpus.Document
	for _, sec := range sections {
		text := markdown.Text([]byte(sec.Content))
		if text == "" {
			continue
		}

		sourceURL := doc.URL
		if sec.AnchorID != "" {
			sourceURL += "#" + sec.AnchorID
		}
		title := sec.Title
		if title == "" {
			title = strings.TrimSuffix(path.Base(doc.Path), ".md")
		}

		docs = append(docs, corpus.Document{
			SourceURL: sourceURL,
			Title:     title,
			Text:      text,
		})
	}
	return docs
}

func (f *Fetcher) getOptions() *github.RepositoryContentGetOptions {
	if f.ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: f.ref}
}
