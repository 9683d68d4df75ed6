// Package markdown splits markdown documents into sections at header
// boundaries and renders markdown as plain text for indexing.
package markdown

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Section is one slice of a markdown document. Sections partition the
// document: each byte of source belongs to exactly one section.
type Section struct {
	Index      int    // position in document (0, 1, 2...)
	Title      string // own header title, empty for preamble text
	AnchorID   string // auto-generated header id, for building fragment URLs
	HeaderPath string // hierarchy: "# Doc Title > ## Section Name"
	Content    string // raw markdown of the section, header line included
}

// Sectioner splits markdown documents at H1 and H2 boundaries.
type Sectioner struct {
	parser goldmark.Markdown
}

// NewSectioner creates a sectioner with auto heading ids enabled, so each
// section carries the anchor its header would get when rendered.
func NewSectioner() *Sectioner {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Sectioner{parser: md}
}

// Split slices the document at every H1 and H2. H3 and deeper stay inside
// their parent section. Text before the first header becomes an untitled
// preamble section; a document without headers comes back whole as one
// section.
func (s *Sectioner) Split(source []byte) ([]Section, error) {
	reader := text.NewReader(source)
	doc := s.parser.Parser().Parse(reader)

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect headers: %w", err)
	}

	if len(tree.Items) == 0 {
		return []Section{{Index: 0, Content: strings.TrimSpace(string(source))}}, nil
	}

	heads := resolveHeaders(doc, source, tree.Items, nil)
	// Boundary math requires document order.
	sort.Slice(heads, func(i, j int) bool { return heads[i].start < heads[j].start })

	var sections []Section
	if preamble := strings.TrimSpace(string(source[:heads[0].start])); preamble != "" {
		sections = append(sections, Section{Content: preamble})
	}
	for i, h := range heads {
		end := len(source)
		if i+1 < len(heads) {
			end = heads[i+1].start
		}
		sections = append(sections, Section{
			Title:      h.title,
			AnchorID:   h.id,
			HeaderPath: h.path,
			Content:    strings.TrimSpace(string(source[h.start:end])),
		})
	}
	for i := range sections {
		sections[i].Index = i
	}
	return sections, nil
}

// header is a resolved H1/H2 boundary: where its line starts and what to
// call the section it opens.
type header struct {
	title string
	id    string
	path  string
	start int
}

// resolveHeaders walks the toc tree depth-first, locating each item's
// heading node and recording the byte offset of its line. Items whose
// heading cannot be found or has no source lines are skipped.
func resolveHeaders(doc ast.Node, source []byte, items toc.Items, ancestors []string) []header {
	var heads []header
	for _, item := range items {
		currentPath := append(ancestors, string(item.Title))

		node := findHeaderByID(doc, string(item.ID))
		if node != nil && node.Lines().Len() > 0 {
			heads = append(heads, header{
				title: string(item.Title),
				id:    string(item.ID),
				path:  formatHeaderPath(currentPath),
				start: lineStart(source, node.Lines().At(0).Start),
			})
		}

		if len(item.Items) > 0 {
			heads = append(heads, resolveHeaders(doc, source, item.Items, currentPath)...)
		}
	}
	return heads
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Installation", "Prerequisites"] -> "# Installation > ## Prerequisites"
func formatHeaderPath(path []string) string {
	if len(path) == 0 {
		return ""
	}

	var parts []string
	for i, segment := range path {
		prefix := strings.Repeat("#", i+1)
		parts = append(parts, fmt.Sprintf("%s %s", prefix, segment))
	}
	return strings.Join(parts, " > ")
}

// findHeaderByID locates a heading node by its auto-generated id.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			heading := n.(*ast.Heading)
			headingID, ok := heading.AttributeString("id")
			if ok && string(headingID.([]byte)) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// lineStart backs off from a position to the start of its line, so a
// section slice begins at the "#" marks rather than the header text.
func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}
