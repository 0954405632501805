package chunking

// FixedChunker cuts text into consecutive, non-overlapping windows of size runes.
type FixedChunker struct {
	size int
}

func NewFixedChunker(opts ...Option) (*FixedChunker, error) {
	o, err := buildOptions(append([]Option{WithOverlap(0)}, opts...))
	if err != nil {
		return nil, err
	}
	return &FixedChunker{size: o.size}, nil
}

func (c *FixedChunker) Split(text string) ([]Piece, error) {
	runes := []rune(text)
	var windows []string
	for start := 0; start < len(runes); start += c.size {
		end := min(start+c.size, len(runes))
		windows = append(windows, string(runes[start:end]))
	}
	return numbered(windows), nil
}
