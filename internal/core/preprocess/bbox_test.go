package preprocess

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBox(t *testing.T) {
	box, ok := NormalizeBox([]Point{{X: 306, Y: 396}, {X: 61.2, Y: 79.2}, {X: 306, Y: 79.2}}, DefaultPageSize)
	require.True(t, ok)
	assert.InDelta(t, 0.1, box.X1, 1e-9)
	assert.InDelta(t, 0.1, box.Y1, 1e-9)
	assert.InDelta(t, 0.5, box.X2, 1e-9)
	assert.InDelta(t, 0.5, box.Y2, 1e-9)

	_, ok = NormalizeBox(nil, DefaultPageSize)
	assert.False(t, ok)

	unit, ok := NormalizeBox([]Point{{X: 0.25, Y: 0.125}, {X: 0.75, Y: 0.125}, {X: 0.75, Y: 0.5}, {X: 0.25, Y: 0.5}}, PageSize{Width: 1, Height: 1})
	require.True(t, ok)
	assert.Equal(t, NormBox{X1: 0.25, Y1: 0.125, X2: 0.75, Y2: 0.5}, unit, "unit page leaves normalized boxes unchanged")

	_, ok = NormalizeBox([]Point{{X: 1, Y: 1}}, PageSize{Width: 0, Height: 792})
	assert.False(t, ok)
}

func TestNormBox_PixelRectTruncates(t *testing.T) {
	box := NormBox{X1: 0.1, Y1: 0.25, X2: 0.55, Y2: 0.999}
	assert.Equal(t, image.Rect(10, 50, 55, 199), box.PixelRect(100, 200))
}

func TestPageSizeFor(t *testing.T) {
	sizes := map[int]PageSize{2: {Width: 100, Height: 200}, 3: {Width: 0, Height: 10}}
	assert.Equal(t, PageSize{Width: 100, Height: 200}, pageSizeFor(sizes, 2))
	assert.Equal(t, DefaultPageSize, pageSizeFor(sizes, 1))
	assert.Equal(t, DefaultPageSize, pageSizeFor(sizes, 3))
}

func TestFigureCounter(t *testing.T) {
	c := NewFigureCounter()
	assert.Equal(t, 1, c.Next(4))
	assert.Equal(t, 2, c.Next(4))
	assert.Equal(t, 1, c.Next(5))

	dir := t.TempDir()
	for _, name := range []string{"page_4_figure_7.png", "page_9_figure_2.png", "notes.png", "page_x_figure_1.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	seeded := NewFigureCounter()
	require.NoError(t, seeded.Seed(dir))
	assert.Equal(t, 8, seeded.Next(4))
	assert.Equal(t, 3, seeded.Next(9))
	assert.Equal(t, 1, seeded.Next(1))

	require.NoError(t, NewFigureCounter().Seed(filepath.Join(dir, "missing")))
}
