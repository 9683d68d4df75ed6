// Package chunker splits documents into overlapping windows of sentences,
// the retrieval unit indexed and returned by the rest of the pipeline.
package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gmehra/helperbot/internal/corpus"
)

var (
	// ErrChunkSize indicates a non-positive window size.
	ErrChunkSize = errors.New("chunk size must be positive")
	// ErrOverlap indicates a negative overlap or one that would stall the
	// window (overlap >= chunk size).
	ErrOverlap = errors.New("overlap must be non-negative and smaller than chunk size")
)

// Chunk is one window of sentences with the provenance of the document it
// came from. Concatenated chunking produces chunks without provenance.
type Chunk struct {
	Text      string
	SourceURL string
	Title     string
}

// sentenceEnd marks a boundary after a terminator followed by whitespace.
// Runs of terminators ("wait!!") stay inside one sentence because only the
// last one is trailed by whitespace.
var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// SplitSentences splits text on sentence terminators (".", "!", "?")
// followed by whitespace. The terminator stays with its sentence, each
// sentence is trimmed, and empty sentences are dropped. Text without any
// terminator comes back as a single sentence.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : m[0]+1]); s != "" {
			sentences = append(sentences, s)
		}
		start = m[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// Chunk splits text into windows of chunkSize sentences, each window
// starting chunkSize-overlap sentences after the previous one. The final
// window may be shorter; it is kept. Sentences within a window are joined
// with a single space.
func Chunk(text string, chunkSize, overlap int) ([]string, error) {
	if err := validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	return windows(SplitSentences(text), chunkSize, overlap), nil
}

// ChunkDocuments chunks each document separately so no window spans a
// document boundary, and stamps every chunk with its document's provenance.
// Chunk order follows document order.
func ChunkDocuments(docs []corpus.Document, chunkSize, overlap int) ([]Chunk, error) {
	if err := validate(chunkSize, overlap); err != nil {
		return nil, err
	}

	var chunks []Chunk
	for _, doc := range docs {
		for _, text := range windows(SplitSentences(doc.Text), chunkSize, overlap) {
			chunks = append(chunks, Chunk{Text: text, SourceURL: doc.SourceURL, Title: doc.Title})
		}
	}
	return chunks, nil
}

// ChunkConcatenated joins all document texts into one stream before
// windowing, so windows may span document boundaries. The resulting chunks
// carry no provenance.
func ChunkConcatenated(docs []corpus.Document, chunkSize, overlap int) ([]Chunk, error) {
	if err := validate(chunkSize, overlap); err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		texts = append(texts, doc.Text)
	}

	var chunks []Chunk
	for _, text := range windows(SplitSentences(strings.Join(texts, " ")), chunkSize, overlap) {
		chunks = append(chunks, Chunk{Text: text})
	}
	return chunks, nil
}

func validate(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrChunkSize, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return fmt.Errorf("%w: got overlap %d for chunk size %d", ErrOverlap, overlap, chunkSize)
	}
	return nil
}

// windows slides a chunkSize window over the sentences, advancing by
// chunkSize-overlap. Once a window reaches the final sentence the slide
// stops, so heavy overlap never emits windows contained in earlier ones.
func windows(sentences []string, chunkSize, overlap int) []string {
	var chunks []string
	step := chunkSize - overlap
	for start := 0; start < len(sentences); start += step {
		end := min(start+chunkSize, len(sentences))
		text := strings.TrimSpace(strings.Join(sentences[start:end], " "))
		if text != "" {
			chunks = append(chunks, text)
		}
		if end == len(sentences) {
			break
		}
	}
	return chunks
}
