// Package mcp exposes the loaded documentation index over the Model
// Context Protocol: semantic search, retrieval-grounded answers, index
// status and live index reload.
package mcp

import "time"

// SearchDocsInput defines the input parameters for the search_docs tool.
type SearchDocsInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"required,description=The semantic search query for finding relevant documentation chunks"`
	// K is the number of chunks to return.
	K int `json:"k,omitempty" jsonschema:"minimum=1,maximum=20,default=5,description=Number of chunks to return"`
}

// SearchDocsOutput contains the search results.
type SearchDocsOutput struct {
	// Results is the list of matching chunks, nearest first.
	Results []ChunkResult `json:"results"`
	// Message provides informational context (e.g. nothing matched).
	Message string `json:"message,omitempty"`
}

// ChunkResult is one retrieved chunk with its provenance.
type ChunkResult struct {
	// Text is the chunk content.
	Text string `json:"text"`
	// SourceURL points at the page or section the chunk came from.
	SourceURL string `json:"source_url,omitempty"`
	// Title is the page or section title.
	Title string `json:"title,omitempty"`
	// Distance is the cosine distance to the query; lower is closer.
	Distance float64 `json:"distance"`
}

// AskDocsInput defines the input parameters for the ask_docs tool.
type AskDocsInput struct {
	// Question is answered from the indexed documentation.
	Question string `json:"question" jsonschema:"required,description=The question to answer from the indexed documentation"`
	// K is the number of chunks supplied as context.
	K int `json:"k,omitempty" jsonschema:"minimum=1,maximum=20,default=5,description=Number of context chunks to retrieve"`
}

// AskDocsOutput contains the generated answer.
type AskDocsOutput struct {
	// Answer is the generation service's response, markdown formatted.
	Answer string `json:"answer"`
	// Sources lists the URLs of the chunks used as context.
	Sources []string `json:"sources,omitempty"`
}

// StatusInput defines the input for the index_status tool. It takes no
// parameters.
type StatusInput struct{}

// StatusOutput describes the currently loaded index.
type StatusOutput struct {
	BuildID   string    `json:"build_id"`
	Model     string    `json:"model"`
	IndexKind string    `json:"index_kind"`
	Documents int       `json:"documents"`
	Chunks    int       `json:"chunks"`
	Dimension int       `json:"dimension"`
	CreatedAt time.Time `json:"created_at"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// ReloadInput defines the input for the reload_index tool. It takes no
// parameters.
type ReloadInput struct{}

// ReloadOutput reports the snapshot that is live after the reload.
type ReloadOutput struct {
	BuildID  string    `json:"build_id"`
	Chunks   int       `json:"chunks"`
	LoadedAt time.Time `json:"loaded_at"`
}
