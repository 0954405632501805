package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/layoutflow/internal/core"
	objectclient "github.com/markdave123-py/layoutflow/internal/core/object-client"
	"github.com/markdave123-py/layoutflow/internal/core/preprocess"
	"github.com/markdave123-py/layoutflow/internal/models"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
)

// NewDocumentIngestor constructs the ingestor with a bounded job queue (64 by default).
func NewDocumentIngestor(db core.DbClient, obj core.ObjectClient, stages Stages, cfg *IngestConfig, log logger.ILogger) *DocumentIngestor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.AnalyzeConcurrency <= 0 {
		cfg.AnalyzeConcurrency = 1
	}
	return &DocumentIngestor{
		db: db, obj: obj, stages: stages, cfg: cfg, log: log,
		jobs: make(chan Request, cfg.QueueSize),
	}
}

// Start launches numWorkers goroutines that run queued requests until ctx is done.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					i.log.Info("DocumentIngestor", "worker shutting down", map[string]interface{}{"worker": w})
					return
				case req := <-i.jobs:
					i.log.Info("DocumentIngestor", "processing file", map[string]interface{}{"file_id": req.FileID, "worker": w})
					if _, err := i.Run(ctx, req); err != nil {
						i.log.Error("DocumentIngestor", "ingestion failed", map[string]interface{}{
							"file_id": req.FileID, "worker": w, "error": err.Error(), "retryable": IsRetryable(err),
						})
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a request. It blocks while the queue is full.
func (i *DocumentIngestor) Enqueue(ctx context.Context, req Request) error {
	select {
	case i.jobs <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes the whole pipeline for one file. Rows persisted before a failure
// are kept, so running the same request again only fills in what is missing.
func (i *DocumentIngestor) Run(ctx context.Context, req Request) (*Result, error) {
	return i.RunUntil(ctx, req, StagePersist)
}

// RunUntil executes the pipeline up to and including last.
func (i *DocumentIngestor) RunUntil(ctx context.Context, req Request, last Stage) (*Result, error) {
	runID := uuid.NewString()
	start := time.Now()

	file, err := i.db.GetFile(ctx, req.FileID)
	if err != nil {
		return nil, fmt.Errorf("load file %d: %w", req.FileID, err)
	}
	if file == nil {
		return nil, fmt.Errorf("file %d: %w", req.FileID, core.ErrNotFound)
	}

	base := preprocess.BaseName(file.OriginalName)
	workDir := filepath.Join(i.cfg.WorkRoot, fmt.Sprintf("%d_%s", file.ID, base))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	src, err := i.resolveSource(ctx, file, workDir)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: runID, FileID: file.ID, WorkDir: workDir}
	logFields := func(extra map[string]interface{}) map[string]interface{} {
		extra["run_id"] = runID
		extra["file_id"] = file.ID
		return extra
	}

	// 1. split
	batchSize := firstPositive(req.BatchSize, i.cfg.BatchSize)
	plainCopy := ""
	if req.Password != "" {
		plainCopy = filepath.Join(workDir, base+".plain.pdf")
	}
	res.Batches, err = i.stages.Splitter.Split(ctx, src, workDir, preprocess.SplitOptions{
		BatchSize: batchSize,
		Password:  req.Password,
		SourceID:  strconv.FormatInt(file.ID, 10),
		BaseName:  base,
		PlainCopy: plainCopy,
	})
	if err != nil {
		return nil, err
	}
	rasterSrc := src
	if plainCopy != "" && fileExists(plainCopy) {
		rasterSrc = plainCopy
	}
	if last == StageSplit {
		return res, nil
	}

	// 2. analyze
	sidecars, analyzed, err := i.analyzeBatches(ctx, res.Batches, req.APIKey)
	if err != nil {
		return nil, err
	}
	res.Analyzed = analyzed
	res.SidecarsReused = len(sidecars) - analyzed
	i.log.Info("DocumentIngestor", "layout analysis complete", logFields(map[string]interface{}{
		"batches": len(res.Batches), "analyzed": res.Analyzed, "reused": res.SidecarsReused,
	}))
	if last == StageAnalyze {
		return res, nil
	}

	// 3. extract + render
	ext, err := i.stages.Extractor.Extract(ctx, rasterSrc, sidecars, workDir, preprocess.ExtractOptions{
		Counter: preprocess.NewFigureCounter(),
		Resume:  req.Resume,
	})
	if err != nil {
		return nil, err
	}
	res.Images = ext.Images

	rendered, err := preprocess.Render(ext.Blocks, workDir, base)
	if err != nil {
		return nil, err
	}
	res.HTMLPath, res.MarkdownPath = rendered.HTMLPath, rendered.MarkdownPath
	if last == StageExtract {
		return res, nil
	}

	// 4. persist per batch
	plan, err := i.planFor(req)
	if err != nil {
		return nil, err
	}
	for _, b := range res.Batches {
		dr, err := i.persistBatch(ctx, file, b, preprocess.BlocksForBatch(ext.Blocks, b.Index), plan)
		if dr != nil {
			res.Documents = append(res.Documents, *dr)
		}
		if err != nil {
			return res, fmt.Errorf("batch %d: %w", b.Index, err)
		}
	}

	i.log.Info("DocumentIngestor", "ingestion complete", logFields(map[string]interface{}{
		"documents": len(res.Documents), "images": len(res.Images), "elapsed_ms": time.Since(start).Milliseconds(),
	}))
	return res, nil
}

// resolveSource returns a local path for the file, downloading it from object
// storage when the stored location is a bucket URL.
func (i *DocumentIngestor) resolveSource(ctx context.Context, file *models.SourceFile, workDir string) (string, error) {
	bucket, key, remote := objectclient.ParseLocation(file.StoragePath)
	if !remote {
		if !fileExists(file.StoragePath) {
			return "", fmt.Errorf("source %s: %w", file.StoragePath, core.ErrNotFound)
		}
		return file.StoragePath, nil
	}

	dst := filepath.Join(workDir, "source"+filepath.Ext(file.OriginalName))
	if fileExists(dst) {
		return dst, nil
	}

	rc, err := i.obj.GetObjectReader(ctx, bucket, key)
	if err != nil {
		return "", fmt.Errorf("get object reader: %w", err)
	}
	defer rc.Close()

	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("download %s: %w", file.StoragePath, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dst, os.Rename(tmp, dst)
}

// analyzeBatches returns one sidecar per batch in batch order. Batches whose
// sidecar already parses are not sent again.
func (i *DocumentIngestor) analyzeBatches(ctx context.Context, batches []preprocess.Batch, apiKey string) ([]string, int, error) {
	sidecars := make([]string, len(batches))
	fresh := make([]bool, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.AnalyzeConcurrency)
	for idx, b := range batches {
		sc := preprocess.SidecarPath(b.Path)
		if _, err := preprocess.LoadSidecar(sc); err == nil {
			sidecars[idx] = sc
			continue
		}
		g.Go(func() error {
			callCtx := gctx
			if i.cfg.AnalyzeTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, i.cfg.AnalyzeTimeout)
				defer cancel()
			}
			out, err := i.stages.Analyzer.Analyze(callCtx, b.Path, apiKey)
			if err != nil {
				return err
			}
			sidecars[idx], fresh[idx] = out, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	analyzed := 0
	for _, f := range fresh {
		if f {
			analyzed++
		}
	}
	return sidecars, analyzed, nil
}

// ArtifactPath resolves a path produced by a run, refusing anything outside the work root.
func (i *DocumentIngestor) ArtifactPath(p string) (string, error) {
	root, err := filepath.Abs(i.cfg.WorkRoot)
	if err != nil {
		return "", err
	}
	full := p
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, p)
	}
	full, err = filepath.Abs(full)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact %s: %w", p, core.ErrNotFound)
	}
	if !fileExists(full) {
		return "", fmt.Errorf("artifact %s: %w", p, core.ErrNotFound)
	}
	return full, nil
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

// IsRetryable reports whether a failed run is worth re-submitting as is.
func IsRetryable(err error) bool {
	var svc *core.ServiceError
	if errors.As(err, &svc) {
		return svc.Status == 429 || svc.Status >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}
