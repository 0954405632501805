// Package chunking cuts rendered document text into ordered pieces.
package chunking

import (
	"errors"
	"fmt"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

const (
	StrategyFixed     = "fixed"
	StrategyRecursive = "recursive"
	StrategyTokens    = "tokens"
)

var (
	ErrInvalidOverlap  = errors.New("chunk overlap must be less than chunk size")
	ErrInvalidSize     = errors.New("chunk size must be positive")
	ErrUnknownStrategy = errors.New("unknown chunk strategy")
)

// Piece is one chunk of text. Order is 1-based and contiguous.
type Piece struct {
	Order int
	Text  string
}

type Chunker interface {
	Split(text string) ([]Piece, error)
}

// New returns the chunker for strategy. Overlap is ignored by the fixed strategy.
func New(strategy string, size, overlap int) (Chunker, error) {
	switch strategy {
	case StrategyFixed:
		return NewFixedChunker(WithSize(size))
	case StrategyRecursive, "":
		return NewRecursiveChunker(WithSize(size), WithOverlap(overlap))
	case StrategyTokens:
		return NewTokenChunker(WithSize(size), WithOverlap(overlap))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

type options struct {
	size    int
	overlap int
}

// Option configures a chunker.
type Option func(*options)

// WithSize sets the maximum piece length.
func WithSize(size int) Option {
	return func(o *options) { o.size = size }
}

// WithOverlap sets how much of the previous piece is repeated at the start of the next.
func WithOverlap(overlap int) Option {
	return func(o *options) { o.overlap = overlap }
}

func buildOptions(opts []Option) (options, error) {
	o := options{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(&o)
	}
	if o.size <= 0 {
		return o, fmt.Errorf("%w: got %d", ErrInvalidSize, o.size)
	}
	if o.overlap < 0 || o.overlap >= o.size {
		return o, fmt.Errorf("%w: overlap %d, size %d", ErrInvalidOverlap, o.overlap, o.size)
	}
	return o, nil
}

func numbered(texts []string) []Piece {
	out := make([]Piece, 0, len(texts))
	for _, t := range texts {
		out = append(out, Piece{Order: len(out) + 1, Text: t})
	}
	return out
}
