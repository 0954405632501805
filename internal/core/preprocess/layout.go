package preprocess

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/markdave123-py/layoutflow/internal/core"
)

// LayoutResponse is the subset of the layout-analysis response the extractor reads.
type LayoutResponse struct {
	Elements []LayoutElement `json:"elements"`
	Metadata LayoutMetadata  `json:"metadata"`
}

type LayoutMetadata struct {
	Pages []PageInfo `json:"pages"`
}

type PageInfo struct {
	Page   int     `json:"page"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type LayoutElement struct {
	Category    string          `json:"category"`
	Page        int             `json:"page"`
	Text        string          `json:"text,omitempty"`
	HTML        string          `json:"html,omitempty"`
	BoundingBox []Point         `json:"bounding_box,omitempty"`
	Content     *ElementContent `json:"content,omitempty"`
}

// ElementContent is the nested content shape returned by newer API versions.
type ElementContent struct {
	HTML     string `json:"html,omitempty"`
	Text     string `json:"text,omitempty"`
	Markdown string `json:"markdown,omitempty"`
}

// RelPage is the 1-based page within the batch; elements without one sit on page 1.
func (e LayoutElement) RelPage() int {
	if e.Page <= 0 {
		return 1
	}
	return e.Page
}

func (e LayoutElement) Markup() string {
	if e.HTML != "" {
		return e.HTML
	}
	if e.Content != nil {
		return e.Content.HTML
	}
	return ""
}

func (e LayoutElement) PlainText() string {
	if e.Text != "" {
		return e.Text
	}
	if e.Content != nil {
		return e.Content.Text
	}
	return ""
}

// PageSizes maps relative page number to its declared size.
func (r *LayoutResponse) PageSizes() map[int]PageSize {
	sizes := make(map[int]PageSize, len(r.Metadata.Pages))
	for _, p := range r.Metadata.Pages {
		sizes[p.Page] = PageSize{Width: p.Width, Height: p.Height}
	}
	return sizes
}

// LoadSidecar parses a sidecar JSON file.
func LoadSidecar(path string) (*LayoutResponse, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sidecar %s: %w", path, err)
	}
	var resp LayoutResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w: %w: %v", path, core.ErrAssetExtraction, core.ErrMalformedSidecar, err)
	}
	return &resp, nil
}
