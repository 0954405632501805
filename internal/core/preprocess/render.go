package preprocess

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
)

type Rendered struct {
	HTMLPath     string `json:"html_path"`
	MarkdownPath string `json:"md_path"`
	HTML         string `json:"-"`
	Markdown     string `json:"-"`
}

// RenderHTML joins block markup with newlines. Blocks with only text become a
// paragraph; blocks with neither are dropped.
func RenderHTML(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		switch {
		case b.Markup() != "":
			parts = append(parts, b.Markup())
		case b.PlainText() != "":
			parts = append(parts, "<p>"+html.EscapeString(b.PlainText())+"</p>")
		}
	}
	return strings.Join(parts, "\n")
}

func HTMLToMarkdown(doc string) (string, error) {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	out, err := converter.ConvertString(doc)
	if err != nil {
		return "", fmt.Errorf("html to markdown: %w", err)
	}
	return out, nil
}

// Render writes <baseName>.html and <baseName>.md into outDir.
func Render(blocks []Block, outDir, baseName string) (*Rendered, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	r := &Rendered{
		HTMLPath:     filepath.Join(outDir, baseName+".html"),
		MarkdownPath: filepath.Join(outDir, baseName+".md"),
		HTML:         RenderHTML(blocks),
	}
	if err := os.WriteFile(r.HTMLPath, []byte(r.HTML), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", r.HTMLPath, err)
	}

	var err error
	if r.Markdown, err = HTMLToMarkdown(r.HTML); err != nil {
		return nil, err
	}
	if err := os.WriteFile(r.MarkdownPath, []byte(r.Markdown), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", r.MarkdownPath, err)
	}
	return r, nil
}
