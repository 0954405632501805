package chunking

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// separators go from the largest structural boundary to single characters.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// RecursiveChunker prefers paragraph, line, sentence and word breaks before
// falling back to characters. Pieces overlap by up to overlap runes.
type RecursiveChunker struct {
	splitter textsplitter.RecursiveCharacter
}

func NewRecursiveChunker(opts ...Option) (*RecursiveChunker, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &RecursiveChunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(o.size),
			textsplitter.WithChunkOverlap(o.overlap),
			textsplitter.WithSeparators(separators),
		),
	}, nil
}

func (c *RecursiveChunker) Split(text string) ([]Piece, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("recursive split: %w", err)
	}
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return numbered(kept), nil
}
