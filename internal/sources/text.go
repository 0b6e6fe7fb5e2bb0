package sources

import (
	"context"
	"fmt"
	"strings"

	"quarry/internal/catalog"
)

// Base ranks of the text sources. A URL guess outranks the plain text.
const (
	plainTextRank = 0
	urlTextRank   = 75
)

// TextLeaf is free text typed by the user.
type TextLeaf struct {
	*catalog.BaseLeaf
	text string
}

// NewTextLeaf creates a leaf holding text.
func NewTextLeaf(text string) *TextLeaf {
	return &TextLeaf{BaseLeaf: catalog.NewLeaf(TextType, "text:"+text, text, text), text: text}
}

// Text returns the leaf's text.
func (l *TextLeaf) Text() string { return l.text }

// Description summarizes multi-line text.
func (l *TextLeaf) Description() string {
	lines := strings.Count(l.text, "\n") + 1
	if lines == 1 {
		return ""
	}
	return fmt.Sprintf("%d lines", lines)
}

// PlainTextSource offers the query itself as text.
type PlainTextSource struct{}

func (PlainTextSource) Name() string                 { return "Text" }
func (PlainTextSource) Key() string                  { return "text-source:plain" }
func (PlainTextSource) Rank() float64                { return plainTextRank }
func (PlainTextSource) Provides() []catalog.LeafType { return []catalog.LeafType{TextType} }

func (PlainTextSource) TextItems(ctx context.Context, text string) ([]catalog.Leaf, error) {
	if text == "" {
		return nil, nil
	}
	return []catalog.Leaf{NewTextLeaf(text)}, nil
}

// URLTextSource offers the query as a URL when it looks like one.
type URLTextSource struct{}

func (URLTextSource) Name() string                 { return "URL Text" }
func (URLTextSource) Key() string                  { return "text-source:url" }
func (URLTextSource) Rank() float64                { return urlTextRank }
func (URLTextSource) Provides() []catalog.LeafType { return []catalog.LeafType{URLType} }

func (URLTextSource) TextItems(ctx context.Context, text string) ([]catalog.Leaf, error) {
	u, ok := LooksLikeURL(text)
	if !ok {
		return nil, nil
	}
	return []catalog.Leaf{NewURLLeaf(u, "")}, nil
}
