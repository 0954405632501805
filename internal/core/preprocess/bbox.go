package preprocess

import "image"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type PageSize struct {
	Width  float64
	Height float64
}

// DefaultPageSize is US Letter in points, used when a page reports no size.
var DefaultPageSize = PageSize{Width: 612, Height: 792}

// NormBox is a rectangle expressed as fractions of page width and height.
type NormBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// NormalizeBox takes the axis-aligned bounds of points and divides them by the
// page size. It reports false when there are no points or the size is degenerate.
func NormalizeBox(points []Point, size PageSize) (NormBox, bool) {
	if len(points) == 0 || size.Width <= 0 || size.Height <= 0 {
		return NormBox{}, false
	}
	x1, y1 := points[0].X, points[0].Y
	x2, y2 := x1, y1
	for _, p := range points[1:] {
		x1, x2 = min(x1, p.X), max(x2, p.X)
		y1, y2 = min(y1, p.Y), max(y2, p.Y)
	}
	return NormBox{
		X1: x1 / size.Width,
		Y1: y1 / size.Height,
		X2: x2 / size.Width,
		Y2: y2 / size.Height,
	}, true
}

// PixelRect scales the box to a w×h raster, truncating toward zero.
func (b NormBox) PixelRect(w, h int) image.Rectangle {
	return image.Rect(
		int(b.X1*float64(w)),
		int(b.Y1*float64(h)),
		int(b.X2*float64(w)),
		int(b.Y2*float64(h)),
	)
}

func pageSizeFor(sizes map[int]PageSize, relPage int) PageSize {
	if s, ok := sizes[relPage]; ok && s.Width > 0 && s.Height > 0 {
		return s
	}
	return DefaultPageSize
}
