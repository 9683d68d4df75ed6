// Package embedding turns chunk and query text into unit-length vectors
// through an OpenAI-compatible embeddings API.
package embedding

import (
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when no embedding model is configured. The model id
// is recorded in the index manifest so queries are embedded with the same
// model the chunks were.
const DefaultModel = "text-embedding-3-small"

// Client wraps the OpenAI API client for embedding generation.
type Client struct {
	api   openai.Client
	model string
}

// NewClient creates an embeddings client for the given model. An empty
// model selects DefaultModel. A non-empty baseURL points the client at an
// OpenAI-compatible backend (vLLM, LocalAI, a proxy) instead of the OpenAI
// API. The API key is read from OPENAI_API_KEY.
func NewClient(model, baseURL string) (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	// Retry policy belongs to callers; the SDK's built-in retries stay off.
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		api:   openai.NewClient(opts...),
		model: model,
	}, nil
}

// Model returns the embedding model id this client requests.
func (c *Client) Model() string {
	return c.model
}
