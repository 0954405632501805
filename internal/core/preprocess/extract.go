package preprocess

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"slices"

	"github.com/disintegration/imaging"

	"github.com/markdave123-py/layoutflow/internal/core"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
)

const DefaultDPI = 300

type ExtractOptions struct {
	// Counter continues numbering from an earlier call in the same run.
	Counter *FigureCounter
	// Resume seeds the counter from figures already saved in the output directory.
	Resume bool
}

type Extraction struct {
	Blocks []Block
	Images []string
}

// AssetExtractor turns sidecars into blocks and crops figures from the source PDF.
type AssetExtractor struct {
	raster PageRasterizer
	dpi    int
	log    logger.ILogger
}

func NewAssetExtractor(raster PageRasterizer, dpi int, log logger.ILogger) *AssetExtractor {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &AssetExtractor{raster: raster, dpi: dpi, log: log}
}

// batchRun is the per-call state; pages caches rasterized absolute pages.
type batchRun struct {
	sourcePDF string
	outDir    string
	counter   *FigureCounter
	pages     map[int]image.Image
	images    []string
}

func (e *AssetExtractor) Extract(ctx context.Context, sourcePDF string, sidecars []string, outDir string, opts ExtractOptions) (*Extraction, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	unlock := outputDirLocks.Lock(outDir)
	defer unlock()

	run := &batchRun{
		sourcePDF: sourcePDF,
		outDir:    outDir,
		counter:   opts.Counter,
		pages:     make(map[int]image.Image),
	}
	if run.counter == nil {
		run.counter = NewFigureCounter()
	}
	if opts.Resume {
		if err := run.counter.Seed(outDir); err != nil {
			return nil, err
		}
	}

	ordered := slices.Clone(sidecars)
	slices.Sort(ordered)

	var blocks []Block
	for i, sc := range ordered {
		resp, err := LoadSidecar(sc)
		if err != nil {
			return nil, err
		}
		start, index, err := batchOffset(sc, i)
		if err != nil {
			return nil, err
		}
		sizes := resp.PageSizes()

		for _, el := range resp.Elements {
			b, err := e.buildBlock(ctx, run, el, start, index, sizes)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", sc, err)
			}
			blocks = append(blocks, b)
		}
	}

	e.log.Info("AssetExtractor", "extraction complete", map[string]interface{}{
		"source": sourcePDF, "sidecars": len(ordered), "blocks": len(blocks), "images": len(run.images),
	})
	return &Extraction{Blocks: blocks, Images: run.images}, nil
}

// batchOffset prefers the batch record and falls back to the filename.
func batchOffset(sidecar string, position int) (start, index int, err error) {
	rec, err := LoadBatchRecord(RecordPath(sidecar))
	if err != nil {
		return 0, 0, err
	}
	if rec != nil {
		return rec.StartPage, rec.BatchIndex, nil
	}
	start, _, err = ParsePageRange(sidecar)
	if err != nil {
		return 0, 0, fmt.Errorf("recover page offset: %w", err)
	}
	return start, position, nil
}

func (e *AssetExtractor) buildBlock(ctx context.Context, run *batchRun, el LayoutElement, start, index int, sizes map[int]PageSize) (Block, error) {
	rel := el.RelPage()
	abs := start + rel

	switch el.Category {
	case string(KindTable):
		tb := &TableBlock{PageNum: abs, BatchIndex: index, Text: el.PlainText(), HTML: el.Markup()}
		if box, ok := NormalizeBox(el.BoundingBox, pageSizeFor(sizes, rel)); ok {
			tb.Box = &box
		}
		return tb, nil

	case string(KindFigure):
		fb := &FigureBlock{PageNum: abs, BatchIndex: index, Text: el.PlainText(), HTML: el.Markup()}
		box, ok := NormalizeBox(el.BoundingBox, pageSizeFor(sizes, rel))
		if !ok {
			return fb, nil
		}
		fb.Box = &box
		path, err := e.crop(ctx, run, abs, box)
		if err != nil {
			return nil, err
		}
		if path != "" {
			fb.ImagePath = path
			fb.HTML = rewriteImageSrc(fb.HTML, filepath.Base(path))
		}
		return fb, nil

	default:
		return &TextBlock{PageNum: abs, BatchIndex: index, Category: el.Category, Text: el.PlainText(), HTML: el.Markup()}, nil
	}
}

// crop saves the figure region of page abs and returns its path, or "" when
// the box falls outside the raster.
func (e *AssetExtractor) crop(ctx context.Context, run *batchRun, abs int, box NormBox) (string, error) {
	img, ok := run.pages[abs]
	if !ok {
		var err error
		img, err = e.raster.RasterizePage(ctx, run.sourcePDF, abs, e.dpi)
		if err != nil {
			return "", fmt.Errorf("%w: rasterize page %d: %v", core.ErrAssetExtraction, abs, err)
		}
		run.pages[abs] = img
	}

	bounds := img.Bounds()
	rect := box.PixelRect(bounds.Dx(), bounds.Dy()).Add(bounds.Min).Intersect(bounds)
	if rect.Empty() {
		e.log.Warn("AssetExtractor", "figure box outside page, skipping crop", map[string]interface{}{
			"page": abs, "box": box,
		})
		return "", nil
	}

	cropped := imaging.Crop(img, rect)
	opaque := imaging.New(cropped.Bounds().Dx(), cropped.Bounds().Dy(), color.White)
	opaque = imaging.Overlay(opaque, cropped, image.Pt(0, 0), 1.0)

	path := filepath.Join(run.outDir, FigureFileName(abs, run.counter.Next(abs)))
	if err := imaging.Save(opaque, path); err != nil {
		return "", fmt.Errorf("%w: save %s: %v", core.ErrAssetExtraction, path, err)
	}
	run.images = append(run.images, path)
	return path, nil
}
