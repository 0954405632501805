package preprocess

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHTML(t *testing.T) {
	blocks := []Block{
		&TextBlock{Text: "a < b"},
		&TextBlock{HTML: "<h1>Title</h1>", Text: "Title"},
		&TextBlock{},
	}
	assert.Equal(t, "<p>a &lt; b</p>\n<h1>Title</h1>", RenderHTML(blocks))
}

func TestRender_FigureAndText(t *testing.T) {
	dir := t.TempDir()
	blocks := []Block{
		&FigureBlock{HTML: `<img src="x.png">`},
		&TextBlock{Text: "hello"},
	}

	r, err := Render(blocks, dir, "doc")
	require.NoError(t, err)
	assert.Contains(t, r.Markdown, "![](x.png)")
	assert.Contains(t, r.Markdown, "hello")

	onDisk, err := os.ReadFile(r.MarkdownPath)
	require.NoError(t, err)
	assert.Equal(t, r.Markdown, string(onDisk))

	html, err := os.ReadFile(r.HTMLPath)
	require.NoError(t, err)
	assert.Equal(t, "<img src=\"x.png\">\n<p>hello</p>", string(html))
}

func TestRender_Table(t *testing.T) {
	md, err := HTMLToMarkdown("<table><tr><th>k</th><th>v</th></tr><tr><td>a</td><td>1</td></tr></table>")
	require.NoError(t, err)
	assert.Contains(t, md, "| k | v |")
	assert.Contains(t, md, "| a | 1 |")
}

func TestRewriteImageSrc(t *testing.T) {
	assert.Equal(t, `<img src="p.png"/>`, rewriteImageSrc("", "p.png"))
	assert.Contains(t, rewriteImageSrc(`<figure><img src="old.png" alt="chart"/></figure>`, "p.png"), `src="p.png"`)
	assert.Contains(t, rewriteImageSrc(`<figure><img src="old.png" alt="chart"/></figure>`, "p.png"), `alt="chart"`)
	assert.Equal(t, `<p>caption</p><img src="p.png"/>`, rewriteImageSrc("<p>caption</p>", "p.png"))
}
