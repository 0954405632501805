package chunking

import "strings"

// TokenChunker groups non-empty lines into pieces of roughly size tokens, carrying
// a tail of about overlap tokens into the next piece.
type TokenChunker struct {
	target  int
	overlap int
}

func NewTokenChunker(opts ...Option) (*TokenChunker, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &TokenChunker{target: o.size, overlap: o.overlap}, nil
}

func (c *TokenChunker) Split(text string) ([]Piece, error) {
	var (
		out    []string
		buf    []string
		tokSum int
		fresh  int // lines in buf not yet emitted
	)

	flush := func() {
		if fresh == 0 {
			return
		}
		out = append(out, strings.Join(buf, "\n"))
		fresh = 0

		if c.overlap <= 0 {
			buf, tokSum = buf[:0], 0
			return
		}
		var keep []string
		remain := c.overlap
		for j := len(buf) - 1; j >= 0 && remain > 0; j-- {
			keep = append([]string{buf[j]}, keep...)
			remain -= approxTokens(buf[j])
		}
		// A tail as large as the whole piece would repeat it forever.
		if len(keep) == len(buf) {
			keep = keep[len(keep)-1:]
			if len(buf) == 1 {
				keep = nil
			}
		}
		buf = keep
		tokSum = 0
		for _, s := range buf {
			tokSum += approxTokens(s)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		buf = append(buf, line)
		tokSum += approxTokens(line)
		fresh++
		if tokSum >= c.target {
			flush()
		}
	}
	flush()

	return numbered(out), nil
}

// approxTokens estimates about four characters per token.
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
