package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
)

// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate
// limits. OpenAI accepts up to 2048 texts per request, but smaller batches
// reduce TPM pressure.
const DefaultBatchSize = 500

var (
	// ErrBackendUnavailable marks transport failures and 5xx responses from
	// the embedding backend. Calls are not retried here; callers decide
	// whether to retry a whole operation.
	ErrBackendUnavailable = errors.New("embedding backend unavailable")

	// ErrInputTooLong marks a rejection for input exceeding the model's
	// token limit.
	ErrInputTooLong = errors.New("embedding input exceeds model token limit")
)

// Embedder turns texts into unit-length vectors, output[i] corresponding
// to input[i]. All vectors in one call share the same dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAI embeds text through an OpenAI-compatible API, batching large
// inputs and L2-normalizing every vector so inner product equals cosine
// similarity.
type OpenAI struct {
	client    *Client
	batchSize int
}

// NewOpenAI creates an embedder on top of client. batchSize <= 0 selects
// DefaultBatchSize.
func NewOpenAI(client *Client, batchSize int) *OpenAI {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &OpenAI{
		client:    client,
		batchSize: batchSize,
	}
}

// Embed generates one normalized vector per input text, in input order.
// A failed batch fails the whole call; nothing is retried.
func (e *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))

		batch, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// Ping issues a minimal embedding request. Callers use it as a startup
// health check, typically under their own backoff policy.
func (e *OpenAI) Ping(ctx context.Context) error {
	_, err := e.embedBatch(ctx, []string{"ping"})
	return err
}

func (e *OpenAI) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(e.client.model),
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("backend returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = Normalize(toFloat32(data.Embedding))
	}
	return vectors, nil
}

// classify maps API errors onto the package sentinels. Anything that never
// reached the backend, and every 5xx, counts as unavailable.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		case apiErr.StatusCode == http.StatusBadRequest &&
			strings.Contains(strings.ToLower(apiErr.Message), "token"):
			return fmt.Errorf("%w: %v", ErrInputTooLong, err)
		}
		return err
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

// Normalize scales v to unit L2 length in place and returns it. The zero
// vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// toFloat32 narrows the API's float64 vectors to the float32 the index
// stores.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
