// Package prompt assembles the instruction string handed to the generation
// service: role framing, answer-structure instructions, the retrieved
// context and the verbatim user question.
package prompt

import (
	"fmt"
	"strings"

	"github.com/gmehra/helperbot/internal/retriever"
)

// Defaults for Template fields left empty.
const (
	DefaultAssistant = "HelperBot"
	DefaultProduct   = "the product documentation"
	DefaultSeparator = "\n\n"
)

// Template controls the framing around retrieved context. The zero value is
// usable; empty fields fall back to the defaults above.
type Template struct {
	Assistant      string // name the model answers as
	Product        string // corpus description used in the role framing
	Separator      string // joins retrieved chunks inside the context block
	IncludeSources bool   // append each chunk's source URL to the context
}

// Default returns the standard documentation-assistant template.
func Default() Template {
	return Template{
		Assistant: DefaultAssistant,
		Product:   DefaultProduct,
		Separator: DefaultSeparator,
	}
}

// Assemble builds the full prompt for one question. Assembly is pure string
// concatenation: the same question and chunks always produce the same
// prompt. With no retrieved chunks the context block states that nothing
// was found instead of being left blank.
func (t Template) Assemble(question string, retrieved []retriever.Result) string {
	assistant := t.Assistant
	if assistant == "" {
		assistant = DefaultAssistant
	}
	product := t.Product
	if product == "" {
		product = DefaultProduct
	}

	return fmt.Sprintf(`You are %s, an AI assistant for %s.
Using the context below, provide a **detailed, step-by-step, structured answer** to the user's question.
Include headings, numbered steps, API endpoints if relevant, and explain clearly so a user can follow instructions.
If the answer is not found in the context, respond politely that you don't know.

Context:
%s

User Question:
%s

Answer:`, assistant, product, t.contextBlock(retrieved, product), question)
}

func (t Template) contextBlock(retrieved []retriever.Result, product string) string {
	separator := t.Separator
	if separator == "" {
		separator = DefaultSeparator
	}

	parts := make([]string, 0, len(retrieved))
	for _, r := range retrieved {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		if t.IncludeSources && r.SourceURL != "" {
			text += "\nSource: " + r.SourceURL
		}
		parts = append(parts, text)
	}
	if len(parts) == 0 {
		return "No relevant information found in " + product + "."
	}
	return strings.Join(parts, separator)
}
