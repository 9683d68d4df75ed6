package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gmehra/helperbot/internal/chunkstore"
	"github.com/gmehra/helperbot/internal/indexer"
	"github.com/gmehra/helperbot/internal/prompt"
	"github.com/gmehra/helperbot/internal/retriever"
	"github.com/gmehra/helperbot/internal/vecindex"
)

// fixedEmbedder maps every text to the same vector, so the nearest chunk
// is decided purely by the indexed vectors.
type fixedEmbedder struct {
	vec []float32
}

func (f fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

type stubGenerator struct {
	answer string
	err    error
	prompt string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func testState(t *testing.T, entries []chunkstore.Entry, vectors [][]float32, manifest indexer.Manifest) *State {
	t.Helper()
	idx, err := vecindex.NewFlat(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) > 0 {
		if err := idx.Add(context.Background(), vectors); err != nil {
			t.Fatal(err)
		}
	}
	return &State{
		Retriever: retriever.New(fixedEmbedder{vec: []float32{1, 0}}, idx, chunkstore.New(entries), nil),
		Manifest:  manifest,
		LoadedAt:  time.Now(),
	}
}

func twoChunkState(t *testing.T) *State {
	t.Helper()
	return testState(t,
		[]chunkstore.Entry{
			{Text: "Open the Settings page.", SourceURL: "https://docs.example.com/settings", Title: "Settings"},
			{Text: "Logs live under Monitoring.", SourceURL: "https://docs.example.com/logs", Title: "Logs"},
		},
		[][]float32{{1, 0}, {0.9486833, 0.31622777}},
		indexer.Manifest{BuildID: "build-1", Model: "test-model", IndexKind: "flat", Documents: 1, Chunks: 2, Dimension: 2},
	)
}

func TestSearchHandlerReturnsChunks(t *testing.T) {
	handle := retriever.NewHandle(twoChunkState(t))
	handler := makeSearchHandler(handle)

	_, out, err := handler(context.Background(), nil, SearchDocsInput{Query: "settings", K: 2})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	if len(out.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out.Results))
	}
	if out.Results[0].Text != "Open the Settings page." {
		t.Errorf("nearest chunk = %q", out.Results[0].Text)
	}
	if out.Results[0].SourceURL != "https://docs.example.com/settings" {
		t.Errorf("source URL lost: %+v", out.Results[0])
	}
	if out.Results[0].Distance > out.Results[1].Distance {
		t.Error("results not ordered by distance")
	}
	if out.Message != "" {
		t.Errorf("unexpected message %q", out.Message)
	}
}

func TestSearchHandlerEmptyIndex(t *testing.T) {
	handle := retriever.NewHandle(testState(t, nil, nil, indexer.Manifest{}))
	handler := makeSearchHandler(handle)

	_, out, err := handler(context.Background(), nil, SearchDocsInput{Query: "anything"})
	if err != nil {
		t.Fatalf("empty index must not error: %v", err)
	}
	if len(out.Results) != 0 {
		t.Errorf("expected no results, got %d", len(out.Results))
	}
	if out.Message == "" {
		t.Error("empty search should carry an explanatory message")
	}
}

func TestClampK(t *testing.T) {
	cases := map[int]int{-1: defaultK, 0: defaultK, 3: 3, maxK: maxK, 100: maxK}
	for in, want := range cases {
		if got := clampK(in); got != want {
			t.Errorf("clampK(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestAskHandlerAnswersWithSources(t *testing.T) {
	handle := retriever.NewHandle(twoChunkState(t))
	gen := &stubGenerator{answer: "Go to **Settings**."}
	handler := makeAskHandler(handle, gen, prompt.Default())

	_, out, err := handler(context.Background(), nil, AskDocsInput{Question: "where are the settings"})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	if out.Answer != "Go to **Settings**." {
		t.Errorf("answer = %q", out.Answer)
	}
	if len(out.Sources) != 2 {
		t.Fatalf("sources = %v", out.Sources)
	}
	if out.Sources[0] != "https://docs.example.com/settings" {
		t.Errorf("sources not in retrieval order: %v", out.Sources)
	}

	// The generation call received the retrieved context and question.
	if !strings.Contains(gen.prompt, "Open the Settings page.") {
		t.Error("prompt missing retrieved chunk")
	}
	if !strings.Contains(gen.prompt, "where are the settings") {
		t.Error("prompt missing question")
	}
}

func TestAskHandlerGenerationFailure(t *testing.T) {
	handle := retriever.NewHandle(twoChunkState(t))
	wantErr := errors.New("overloaded")
	handler := makeAskHandler(handle, &stubGenerator{err: wantErr}, prompt.Default())

	_, _, err := handler(context.Background(), nil, AskDocsInput{Question: "q"})
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want wrapped generation error", err)
	}
}

func TestStatusHandler(t *testing.T) {
	state := twoChunkState(t)
	handle := retriever.NewHandle(state)
	handler := makeStatusHandler(handle)

	_, out, err := handler(context.Background(), nil, StatusInput{})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	if out.BuildID != "build-1" || out.Model != "test-model" || out.IndexKind != "flat" {
		t.Errorf("manifest fields wrong: %+v", out)
	}
	if out.Chunks != 2 || out.Documents != 1 || out.Dimension != 2 {
		t.Errorf("counts wrong: %+v", out)
	}
	if !out.LoadedAt.Equal(state.LoadedAt) {
		t.Errorf("LoadedAt = %v, want %v", out.LoadedAt, state.LoadedAt)
	}
}

func TestReloadHandlerSwapsState(t *testing.T) {
	handle := retriever.NewHandle(twoChunkState(t))

	replacement := testState(t,
		[]chunkstore.Entry{{Text: "fresh chunk"}},
		[][]float32{{1, 0}},
		indexer.Manifest{BuildID: "build-2", Chunks: 1},
	)
	handler := makeReloadHandler(handle, func(ctx context.Context) (*State, error) {
		return replacement, nil
	})

	_, out, err := handler(context.Background(), nil, ReloadInput{})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if out.BuildID != "build-2" || out.Chunks != 1 {
		t.Errorf("reload output = %+v", out)
	}
	if handle.Load() != replacement {
		t.Error("handle still serves the old state")
	}
}

func TestReloadHandlerKeepsOldStateOnFailure(t *testing.T) {
	original := twoChunkState(t)
	handle := retriever.NewHandle(original)
	handler := makeReloadHandler(handle, func(ctx context.Context) (*State, error) {
		return nil, errors.New("artifacts corrupt")
	})

	_, _, err := handler(context.Background(), nil, ReloadInput{})
	if err == nil {
		t.Fatal("expected reload error")
	}
	if handle.Load() != original {
		t.Error("failed reload must not replace the serving state")
	}
}

func TestSourceList(t *testing.T) {
	results := []retriever.Result{
		{SourceURL: "https://a"},
		{SourceURL: "https://b"},
		{SourceURL: "https://a"},
		{SourceURL: ""},
	}
	got := sourceList(results)
	if len(got) != 2 || got[0] != "https://a" || got[1] != "https://b" {
		t.Errorf("sourceList = %v", got)
	}
}
