package ingestion_engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/layoutflow/internal/core"
	"github.com/markdave123-py/layoutflow/internal/core/chunking"
	db "github.com/markdave123-py/layoutflow/internal/core/database"
	"github.com/markdave123-py/layoutflow/internal/core/llm"
	"github.com/markdave123-py/layoutflow/internal/core/preprocess"
	"github.com/markdave123-py/layoutflow/internal/models"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
	"github.com/markdave123-py/layoutflow/internal/testutil"
)

type fakeAnalyzer struct {
	mu     sync.Mutex
	calls  []string
	failOn string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, batchPDF, _ string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, filepath.Base(batchPDF))
	f.mu.Unlock()

	if f.failOn != "" && strings.Contains(batchPDF, f.failOn) {
		return "", core.NewServiceError("layout-analysis", 503, []byte("unavailable"))
	}

	start, end, err := preprocess.ParsePageRange(batchPDF)
	if err != nil {
		return "", err
	}
	var elements []map[string]any
	for rel := 1; rel <= end-start+1; rel++ {
		elements = append(elements, map[string]any{
			"category": "paragraph", "page": rel,
			"html": fmt.Sprintf("<p>Body text of page %d.</p>", start+rel),
		})
	}
	elements = append(elements, map[string]any{
		"category": "figure", "page": 1, "html": `<img src="chart.png"/>`,
		"bounding_box": []map[string]float64{{"x": 61.2, "y": 79.2}, {"x": 306, "y": 396}},
	})
	body, _ := json.Marshal(map[string]any{"elements": elements})

	out := preprocess.SidecarPath(batchPDF)
	return out, os.WriteFile(out, body, 0o644)
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type blankRasterizer struct{}

func (blankRasterizer) RasterizePage(_ context.Context, _ string, _, dpi int) (image.Image, error) {
	return imaging.New(612*dpi/72, 792*dpi/72, color.White), nil
}

type failingProvider struct{}

func (failingProvider) DefaultModel() string { return "down" }
func (failingProvider) EmbedTexts(context.Context, string, []string) ([][]float32, error) {
	return nil, errors.New("embedding service down")
}

type fixture struct {
	store    *db.SQLiteClient
	analyzer *fakeAnalyzer
	file     *models.SourceFile
	root     string
}

func newFixture(t *testing.T, pages int) *fixture {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()

	store, err := db.NewSQLiteClient(ctx, filepath.Join(root, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	src := testutil.WritePDF(t, root, "annual report.pdf", pages)
	file, err := store.CreateFile(ctx, models.SourceFile{OriginalName: "annual report.pdf", MimeType: "application/pdf", StoragePath: src})
	require.NoError(t, err)

	return &fixture{store: store, analyzer: &fakeAnalyzer{}, file: file, root: root}
}

func (f *fixture) ingestor(provider core.EmbeddingProvider, strategy llm.Strategy) *DocumentIngestor {
	log := logger.NewNop()
	return NewDocumentIngestor(f.store, nil, Stages{
		Splitter:  preprocess.NewSplitter(log),
		Analyzer:  f.analyzer,
		Extractor: preprocess.NewAssetExtractor(blankRasterizer{}, 72, log),
		Embedder:  llm.NewEmbedder(provider, 16, log),
	}, &IngestConfig{
		WorkRoot:           filepath.Join(f.root, "work"),
		BatchSize:          10,
		ChunkStrategy:      "fixed",
		ChunkSize:          40,
		EmbedStrategy:      strategy,
		TextSource:         TextSourceMarkdown,
		AnalyzeConcurrency: 2,
	}, log)
}

func TestDocumentIngestor_Run(t *testing.T) {
	f := newFixture(t, 25)
	ctx := context.Background()

	res, err := f.ingestor(nil, llm.StrategyFallback).Run(ctx, Request{FileID: f.file.ID})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(f.root, "work", fmt.Sprintf("%d_annual report", f.file.ID)), res.WorkDir)
	require.Len(t, res.Batches, 3)
	assert.Equal(t, "annual report_0020_0024.pdf", filepath.Base(res.Batches[2].Path))
	assert.Equal(t, 3, res.Analyzed)
	assert.FileExists(t, res.MarkdownPath)
	assert.FileExists(t, filepath.Join(res.WorkDir, "page_11_figure_1.png"))
	assert.Len(t, res.Images, 3)

	require.Len(t, res.Documents, 3)
	for i, dr := range res.Documents {
		assert.True(t, dr.Created)
		assert.Equal(t, i, dr.BatchIndex)
		assert.Positive(t, dr.Chunks)
		assert.Equal(t, dr.Chunks, dr.ChunksCreated)
		assert.Equal(t, dr.Chunks, dr.Embedded)

		doc, err := f.store.GetDocument(ctx, dr.DocumentID)
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, res.Batches[i].Path, doc.Meta.String("pdf_path"))
		assert.Equal(t, preprocess.SidecarPath(res.Batches[i].Path), doc.Meta.String("json_path"))

		chunks, err := f.store.ListChunksByDocument(ctx, dr.DocumentID)
		require.NoError(t, err)
		for j, ch := range chunks {
			assert.Equal(t, j+1, ch.Order)
			assert.True(t, ch.Embedded)
		}
	}

	second, err := f.store.ListChunksByDocument(ctx, res.Documents[1].DocumentID)
	require.NoError(t, err)
	var text strings.Builder
	for _, ch := range second {
		text.WriteString(ch.Content)
	}
	assert.Contains(t, text.String(), "Body text of page 11.")
	assert.Contains(t, text.String(), "page_11_figure_1.png")

	emb, err := f.store.GetEmbedding(ctx, second[0].ID)
	require.NoError(t, err)
	require.NotNil(t, emb)
	assert.Equal(t, llm.FallbackModel, emb.Model)
	assert.Equal(t, llm.FallbackVector(second[0].Content, 16), emb.Vector)
}

func TestDocumentIngestor_RerunIsIdempotent(t *testing.T) {
	f := newFixture(t, 12)
	ctx := context.Background()
	ing := f.ingestor(nil, llm.StrategyFallback)

	first, err := ing.Run(ctx, Request{FileID: f.file.ID})
	require.NoError(t, err)
	require.Equal(t, 2, f.analyzer.callCount())

	again, err := ing.Run(ctx, Request{FileID: f.file.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, f.analyzer.callCount(), "valid sidecars are reused")
	assert.Equal(t, 0, again.Analyzed)
	assert.Equal(t, 2, again.SidecarsReused)

	require.Len(t, again.Documents, 2)
	for i, dr := range again.Documents {
		assert.False(t, dr.Created)
		assert.Equal(t, first.Documents[i].DocumentID, dr.DocumentID)
		assert.Equal(t, first.Documents[i].Chunks, dr.Chunks)
		assert.Zero(t, dr.ChunksCreated)
		assert.Zero(t, dr.Embedded)
	}

	docs, err := f.store.ListDocumentsByFile(ctx, f.file.ID)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestDocumentIngestor_RerunWithOtherStrategyReplacesChunks(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	ing := f.ingestor(nil, llm.StrategyFallback)

	first, err := ing.Run(ctx, Request{FileID: f.file.ID})
	require.NoError(t, err)
	require.Len(t, first.Documents, 1)
	docID := first.Documents[0].DocumentID
	before := first.Documents[0].Chunks

	again, err := ing.Run(ctx, Request{FileID: f.file.ID, ChunkStrategy: "recursive"})
	require.NoError(t, err)
	require.Len(t, again.Documents, 1)
	dr := again.Documents[0]
	assert.Equal(t, docID, dr.DocumentID)
	assert.Equal(t, before, dr.ChunksDropped)
	assert.Equal(t, dr.Chunks, dr.ChunksCreated)
	assert.Equal(t, dr.Chunks, dr.Embedded)

	chunks, err := f.store.ListChunksByDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, chunks, dr.Chunks)
	for j, ch := range chunks {
		assert.Equal(t, j+1, ch.Order)
		assert.Equal(t, "recursive", ch.Meta.String("strategy"))
		assert.True(t, ch.Embedded)
	}

	// Same strategy again keeps everything.
	third, err := ing.Run(ctx, Request{FileID: f.file.ID, ChunkStrategy: "recursive"})
	require.NoError(t, err)
	assert.Zero(t, third.Documents[0].ChunksCreated)
	assert.Zero(t, third.Documents[0].ChunksDropped)
}

func TestEnsureChunks_KeepsMatchingPrefix(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	ing := f.ingestor(nil, llm.StrategyFallback)

	doc, err := f.store.CreateDocument(ctx, models.Document{FileID: &f.file.ID, Title: "x.pdf", Meta: models.Meta{}})
	require.NoError(t, err)
	plan, err := ing.planFor(Request{})
	require.NoError(t, err)
	pieces := []chunking.Piece{{Order: 1, Text: "alpha"}, {Order: 2, Text: "beta"}, {Order: 3, Text: "gamma"}}

	_, err = f.store.CreateChunk(ctx, models.Chunk{DocumentID: doc.ID, Content: "alpha", Order: 1, Meta: models.Meta{"plan": plan.key}})
	require.NoError(t, err)

	chunks, stats, err := ing.ensureChunks(ctx, doc.ID, preprocess.Batch{}, pieces, plan)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
	assert.Equal(t, 2, stats.created)
	assert.Zero(t, stats.dropped)

	edited := []chunking.Piece{{Order: 1, Text: "alpha"}, {Order: 2, Text: "BETA"}}
	chunks, stats, err = ing.ensureChunks(ctx, doc.ID, preprocess.Batch{}, edited, plan)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.dropped)
	assert.Equal(t, 2, stats.created)
	require.Len(t, chunks, 2)
	assert.Equal(t, "BETA", chunks[1].Content)
}

func TestDocumentIngestor_EmbeddingFailureKeepsChunks(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	res, err := f.ingestor(failingProvider{}, llm.StrategyLive).Run(ctx, Request{FileID: f.file.ID})
	require.Error(t, err)
	assert.ErrorContains(t, err, "embedding service down")
	require.NotNil(t, res)
	require.Len(t, res.Documents, 1)

	docID := res.Documents[0].DocumentID
	chunks, err := f.store.ListChunksByDocument(ctx, docID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks, "chunks are not rolled back")
	for _, ch := range chunks {
		assert.False(t, ch.Embedded)
	}

	// Same pipeline, explicit fallback for this run.
	retry, err := f.ingestor(failingProvider{}, llm.StrategyLive).Run(ctx, Request{FileID: f.file.ID, EmbedStrategy: "fallback"})
	require.NoError(t, err)
	assert.Equal(t, len(chunks), retry.Documents[0].Embedded)
	assert.Zero(t, retry.Documents[0].ChunksCreated)
}

func TestDocumentIngestor_AnalyzerFailureAborts(t *testing.T) {
	f := newFixture(t, 25)
	f.analyzer.failOn = "_0010_0019"

	_, err := f.ingestor(nil, llm.StrategyFallback).Run(context.Background(), Request{FileID: f.file.ID})
	var svc *core.ServiceError
	require.True(t, errors.As(err, &svc))
	assert.Equal(t, 503, svc.Status)
	assert.True(t, IsRetryable(err))

	docs, err := f.store.ListDocumentsByFile(context.Background(), f.file.ID)
	require.NoError(t, err)
	assert.Empty(t, docs, "nothing is persisted before every batch is analyzed")
}

func TestDocumentIngestor_RequestOverrides(t *testing.T) {
	f := newFixture(t, 6)

	res, err := f.ingestor(nil, llm.StrategyFallback).Run(context.Background(), Request{
		FileID: f.file.ID, BatchSize: 4, ChunkStrategy: "recursive",
	})
	require.NoError(t, err)
	require.Len(t, res.Batches, 2)
	assert.Equal(t, 4, res.Batches[1].StartPage)
	assert.Equal(t, 5, res.Batches[1].EndPage)

	_, err = f.ingestor(nil, llm.StrategyFallback).Run(context.Background(), Request{FileID: f.file.ID, EmbedStrategy: "maybe"})
	assert.Error(t, err)
}

func TestDocumentIngestor_MissingFile(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.ingestor(nil, llm.StrategyFallback).Run(context.Background(), Request{FileID: 999})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDocumentIngestor_Workers(t *testing.T) {
	f := newFixture(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ing := f.ingestor(nil, llm.StrategyFallback)
	ing.Start(ctx, 1)
	require.NoError(t, ing.Enqueue(ctx, Request{FileID: f.file.ID}))

	require.Eventually(t, func() bool {
		docs, err := f.store.ListDocumentsByFile(context.Background(), f.file.ID)
		if err != nil || len(docs) != 1 {
			return false
		}
		chunks, err := f.store.ListChunksByDocument(context.Background(), docs[0].ID)
		return err == nil && len(chunks) > 0 && chunks[len(chunks)-1].Embedded
	}, 10*time.Second, 50*time.Millisecond)
}

func TestDocumentIngestor_RunUntil(t *testing.T) {
	f := newFixture(t, 12)
	ctx := context.Background()
	ing := f.ingestor(nil, llm.StrategyFallback)

	split, err := ing.RunUntil(ctx, Request{FileID: f.file.ID}, StageSplit)
	require.NoError(t, err)
	assert.Len(t, split.Batches, 2)
	assert.Zero(t, f.analyzer.callCount())

	extracted, err := ing.RunUntil(ctx, Request{FileID: f.file.ID}, StageExtract)
	require.NoError(t, err)
	assert.Equal(t, 2, extracted.Analyzed)
	assert.FileExists(t, extracted.HTMLPath)
	assert.Empty(t, extracted.Documents)

	docs, err := f.store.ListDocumentsByFile(ctx, f.file.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)

	p, err := ing.ArtifactPath(extracted.MarkdownPath)
	require.NoError(t, err)
	assert.Equal(t, extracted.MarkdownPath, p)

	rel, err := filepath.Rel(filepath.Join(f.root, "work"), extracted.HTMLPath)
	require.NoError(t, err)
	_, err = ing.ArtifactPath(rel)
	require.NoError(t, err)

	_, err = ing.ArtifactPath("../test.db")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = ing.ArtifactPath(filepath.Join(f.root, "test.db"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}
