package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gmehra/helperbot/internal/indexer"
	"github.com/gmehra/helperbot/internal/prompt"
	"github.com/gmehra/helperbot/internal/retriever"
)

// State is one immutable snapshot of a loaded index. Tool calls read the
// snapshot they started with; reloads publish a new one.
type State struct {
	Retriever *retriever.Retriever
	Manifest  indexer.Manifest
	LoadedAt  time.Time
}

// Generator produces an answer for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Loader builds a fresh State from the persisted artifacts.
type Loader func(ctx context.Context) (*State, error)

// Server wraps the MCP server with its dependencies.
type Server struct {
	server *mcp.Server
	handle *retriever.Handle[State]
}

// Config holds server dependencies. Generator and Loader are optional:
// without a Generator the ask_docs tool is not registered, without a
// Loader reload_index is not.
type Config struct {
	Handle    *retriever.Handle[State]
	Generator Generator
	Template  prompt.Template
	Loader    Loader
	Version   string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	impl := &mcp.Implementation{
		Name:    "helperbot-docs-server",
		Version: version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_docs",
		Description: "Search the indexed documentation semantically. Returns the most relevant chunks with their source URLs.",
	}, makeSearchHandler(cfg.Handle))

	if cfg.Generator != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "ask_docs",
			Description: "Answer a question from the indexed documentation. Retrieves relevant chunks and asks the generation service for a structured answer with sources.",
		}, makeAskHandler(cfg.Handle, cfg.Generator, cfg.Template))
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index_status",
		Description: "Report the loaded documentation index: build id, embedding model, chunk counts and load time.",
	}, makeStatusHandler(cfg.Handle))

	if cfg.Loader != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "reload_index",
			Description: "Reload the index artifacts from disk and swap them in without dropping in-flight requests.",
		}, makeReloadHandler(cfg.Handle, cfg.Loader))
	}

	return &Server{
		server: server,
		handle: cfg.Handle,
	}
}

// Run starts the server on stdio transport and blocks until the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance, for transport
// handlers that wrap it.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
