package preprocess

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// PageRasterizer renders one 1-based page of a PDF to an image.
type PageRasterizer interface {
	RasterizePage(ctx context.Context, pdfPath string, page, dpi int) (image.Image, error)
}

// PdftoppmRasterizer shells out to poppler's pdftoppm.
type PdftoppmRasterizer struct {
	Binary string
}

func NewPdftoppmRasterizer() *PdftoppmRasterizer {
	return &PdftoppmRasterizer{Binary: "pdftoppm"}
}

func (r *PdftoppmRasterizer) RasterizePage(ctx context.Context, pdfPath string, page, dpi int) (image.Image, error) {
	tmp, err := os.MkdirTemp("", "layoutflow-raster-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	prefix := filepath.Join(tmp, "page")
	p := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, r.Binary,
		"-f", p, "-l", p,
		"-r", strconv.Itoa(dpi),
		"-png", "-singlefile",
		pdfPath, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm page %d: %w: %s", page, err, strings.TrimSpace(stderr.String()))
	}

	img, err := imaging.Open(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("decode page %d: %w", page, err)
	}
	return img, nil
}
