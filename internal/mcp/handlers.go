package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gmehra/helperbot/internal/prompt"
	"github.com/gmehra/helperbot/internal/retriever"
)

const (
	defaultK = 5
	maxK     = 20
)

func clampK(k int) int {
	switch {
	case k <= 0:
		return defaultK
	case k > maxK:
		return maxK
	default:
		return k
	}
}

// makeSearchHandler creates the search_docs tool handler. Each call reads
// the current snapshot, so a reload between calls is picked up without
// interrupting in-flight requests.
func makeSearchHandler(handle *retriever.Handle[State]) func(
	context.Context, *mcp.CallToolRequest, SearchDocsInput,
) (*mcp.CallToolResult, SearchDocsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchDocsInput) (
		*mcp.CallToolResult, SearchDocsOutput, error,
	) {
		state := handle.Load()
		results, err := state.Retriever.Retrieve(ctx, input.Query, clampK(input.K))
		if err != nil {
			return nil, SearchDocsOutput{}, fmt.Errorf("search failed: %w", err)
		}

		out := SearchDocsOutput{Results: make([]ChunkResult, 0, len(results))}
		for _, r := range results {
			out.Results = append(out.Results, ChunkResult{
				Text:      r.Text,
				SourceURL: r.SourceURL,
				Title:     r.Title,
				Distance:  r.Distance,
			})
		}
		if len(out.Results) == 0 {
			out.Message = "No matching chunks found. Try broader search terms."
		}
		return nil, out, nil
	}
}

// makeAskHandler creates the ask_docs tool handler: retrieve context,
// assemble the prompt, call the generation service once.
func makeAskHandler(handle *retriever.Handle[State], generator Generator, tpl prompt.Template) func(
	context.Context, *mcp.CallToolRequest, AskDocsInput,
) (*mcp.CallToolResult, AskDocsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskDocsInput) (
		*mcp.CallToolResult, AskDocsOutput, error,
	) {
		state := handle.Load()
		results, err := state.Retriever.Retrieve(ctx, input.Question, clampK(input.K))
		if err != nil {
			return nil, AskDocsOutput{}, fmt.Errorf("retrieval failed: %w", err)
		}

		answer, err := generator.Generate(ctx, tpl.Assemble(input.Question, results))
		if err != nil {
			return nil, AskDocsOutput{}, fmt.Errorf("generation failed: %w", err)
		}

		return nil, AskDocsOutput{
			Answer:  answer,
			Sources: sourceList(results),
		}, nil
	}
}

// makeStatusHandler creates the index_status tool handler, reporting the
// manifest of the loaded snapshot.
func makeStatusHandler(handle *retriever.Handle[State]) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		state := handle.Load()
		m := state.Manifest
		return nil, StatusOutput{
			BuildID:   m.BuildID,
			Model:     m.Model,
			IndexKind: m.IndexKind,
			Documents: m.Documents,
			Chunks:    m.Chunks,
			Dimension: m.Dimension,
			CreatedAt: m.CreatedAt,
			LoadedAt:  state.LoadedAt,
		}, nil
	}
}

// makeReloadHandler creates the reload_index tool handler. The loader
// builds a complete new snapshot; only on success is it published, so a
// failed reload leaves the serving index untouched.
func makeReloadHandler(handle *retriever.Handle[State], loader Loader) func(
	context.Context, *mcp.CallToolRequest, ReloadInput,
) (*mcp.CallToolResult, ReloadOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ReloadInput) (
		*mcp.CallToolResult, ReloadOutput, error,
	) {
		state, err := loader(ctx)
		if err != nil {
			return nil, ReloadOutput{}, fmt.Errorf("reload failed, previous index still serving: %w", err)
		}
		handle.Swap(state)

		return nil, ReloadOutput{
			BuildID:  state.Manifest.BuildID,
			Chunks:   state.Manifest.Chunks,
			LoadedAt: state.LoadedAt,
		}, nil
	}
}

// sourceList returns the distinct source URLs in retrieval order.
func sourceList(results []retriever.Result) []string {
	var sources []string
	seen := make(map[string]bool)
	for _, r := range results {
		if r.SourceURL == "" || seen[r.SourceURL] {
			continue
		}
		seen[r.SourceURL] = true
		sources = append(sources, r.SourceURL)
	}
	return sources
}
