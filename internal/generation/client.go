// Package generation calls the hosted completion service that turns an
// assembled prompt into an answer. The service is a collaborator, not part
// of the pipeline: one request in, one answer string out, no retries.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Defaults target OpenRouter's completion endpoint.
const (
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultModel       = "mistralai/mistral-small-3.2-24b-instruct:free"
	DefaultMaxTokens   = 1250
	DefaultTemperature = 0.7

	defaultTimeout = 2 * time.Minute
)

var (
	// ErrBackendUnavailable marks transport failures and 5xx responses.
	ErrBackendUnavailable = errors.New("generation backend unavailable")
	// ErrMalformedResponse marks a response that carries no answer under
	// any known shape.
	ErrMalformedResponse = errors.New("generation response carries no answer")
)

// answerPaths are the response shapes tried in order: chat-completions
// style first, then plain completions. Hosted models disagree on which
// one they speak.
var answerPaths = []string{
	"choices.0.message.content",
	"choices.0.text",
}

// Config holds the connection settings for the completion service. Empty
// or zero fields fall back to the OpenRouter defaults above.
type Config struct {
	BaseURL     string
	APIKey      string // optional; local endpoints accept unauthenticated calls
	Model       string
	MaxTokens   int
	Temperature float64 // sampling temperature; zero means DefaultTemperature
}

// Client is a completion-service client over plain HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a client, filling unset Config fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: defaultTimeout},
	}
}

// Model returns the model identifier requests are sent with.
func (c *Client) Model() string {
	return c.cfg.Model
}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// Generate sends the prompt and returns the extracted answer text. The
// call is made exactly once; callers own any retry policy.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Prompt:      prompt,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		if msg := gjson.GetBytes(raw, "error.message"); msg.Exists() {
			return "", fmt.Errorf("generation request rejected (status %d): %s", resp.StatusCode, msg.String())
		}
		return "", fmt.Errorf("generation request rejected (status %d)", resp.StatusCode)
	}

	return extractAnswer(raw)
}

// extractAnswer walks the known response shapes in order and returns the
// first answer found.
func extractAnswer(raw []byte) (string, error) {
	for _, path := range answerPaths {
		if v := gjson.GetBytes(raw, path); v.Exists() {
			return strings.TrimSpace(v.String()), nil
		}
	}
	if msg := gjson.GetBytes(raw, "error.message"); msg.Exists() {
		return "", fmt.Errorf("%w: service reported: %s", ErrMalformedResponse, msg.String())
	}
	return "", ErrMalformedResponse
}
