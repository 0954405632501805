package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/markdave123-py/layoutflow/internal/core"
	"github.com/markdave123-py/layoutflow/internal/core/chunking"
	"github.com/markdave123-py/layoutflow/internal/core/llm"
	"github.com/markdave123-py/layoutflow/internal/core/preprocess"
	"github.com/markdave123-py/layoutflow/internal/models"
)

// runPlan is the chunking and embedding setup resolved for one request.
type runPlan struct {
	chunker       chunking.Chunker
	chunkStrategy string
	// key identifies the chunk output; stored chunks with another key are stale.
	key           string
	embed         llm.EmbedRequest
	textSource    string
}

func (i *DocumentIngestor) planFor(req Request) (runPlan, error) {
	strategy := req.ChunkStrategy
	if strategy == "" {
		strategy = i.cfg.ChunkStrategy
	}
	ch, err := chunking.New(strategy, i.cfg.ChunkSize, i.cfg.ChunkOverlap)
	if err != nil {
		return runPlan{}, err
	}

	embedStrategy := i.cfg.EmbedStrategy
	if req.EmbedStrategy != "" {
		if embedStrategy, err = llm.ParseStrategy(req.EmbedStrategy); err != nil {
			return runPlan{}, err
		}
	}
	model := req.EmbedModel
	if model == "" {
		model = i.cfg.EmbedModel
	}

	return runPlan{
		chunker:       ch,
		chunkStrategy: strategy,
		key:           fmt.Sprintf("%s/%d/%d/%s", strategy, i.cfg.ChunkSize, i.cfg.ChunkOverlap, i.cfg.TextSource),
		embed:         llm.EmbedRequest{Model: model, Strategy: embedStrategy},
		textSource:    i.cfg.TextSource,
	}, nil
}

// persistBatch finds or creates the batch's Document, adds the chunks it is
// missing and embeds every chunk that has no embedding yet.
func (i *DocumentIngestor) persistBatch(ctx context.Context, file *models.SourceFile, b preprocess.Batch, blocks []preprocess.Block, plan runPlan) (*DocumentResult, error) {
	doc, created, err := i.documentFor(ctx, file, b)
	if err != nil {
		return nil, err
	}
	dr := &DocumentResult{
		DocumentID: doc.ID, Title: doc.Title, BatchIndex: b.Index,
		StartPage: b.StartPage, EndPage: b.EndPage, Created: created,
	}

	text, err := i.batchText(ctx, b, blocks, plan.textSource)
	if err != nil {
		return dr, err
	}
	pieces, err := plan.chunker.Split(text)
	if err != nil {
		return dr, err
	}

	chunks, stats, err := i.ensureChunks(ctx, doc.ID, b, pieces, plan)
	if err != nil {
		return dr, err
	}
	dr.Chunks, dr.ChunksCreated, dr.ChunksDropped = len(chunks), stats.created, stats.dropped

	for _, ch := range chunks {
		if ch.Embedded {
			continue
		}
		// Chunks stay in place when embedding fails; a later run picks them up.
		if err := i.embedChunk(ctx, ch, plan.embed); err != nil {
			return dr, fmt.Errorf("embed chunk %d of document %d: %w", ch.Order, doc.ID, err)
		}
		dr.Embedded++
	}
	return dr, nil
}

func (i *DocumentIngestor) documentFor(ctx context.Context, file *models.SourceFile, b preprocess.Batch) (*models.Document, bool, error) {
	title := filepath.Base(b.Path)
	doc, err := i.db.FindDocument(ctx, &file.ID, title)
	if err != nil || doc != nil {
		return doc, false, err
	}

	doc, err = i.db.CreateDocument(ctx, models.Document{
		FileID: &file.ID,
		Title:  title,
		Meta: models.Meta{
			"pdf_path":    b.Path,
			"json_path":   preprocess.SidecarPath(b.Path),
			"batch_path":  b.RecordPath,
			"batch_index": b.Index,
			"start_page":  b.StartPage,
			"end_page":    b.EndPage,
			"verbatim":    b.Verbatim,
		},
	})
	if errors.Is(err, core.ErrUniqueViolation) {
		// Another run created it first.
		doc, err = i.db.FindDocument(ctx, &file.ID, title)
		if err == nil && doc == nil {
			err = fmt.Errorf("document %q vanished after conflict: %w", title, core.ErrNotFound)
		}
		return doc, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (i *DocumentIngestor) batchText(ctx context.Context, b preprocess.Batch, blocks []preprocess.Block, source string) (string, error) {
	if source == TextSourcePDFText && i.stages.TextLayer != nil {
		raw, err := os.ReadFile(b.Path)
		if err != nil {
			return "", err
		}
		return i.stages.TextLayer.ExtractText(ctx, raw, "application/pdf")
	}
	return preprocess.HTMLToMarkdown(preprocess.RenderHTML(blocks))
}

type chunkStats struct {
	created int
	dropped int
}

// ensureChunks makes the document's stored chunks equal to pieces and returns
// them in order. A stored prefix produced by the same plan is kept; anything
// else is dropped and rebuilt so one document never mixes chunkings.
func (i *DocumentIngestor) ensureChunks(ctx context.Context, docID int64, b preprocess.Batch, pieces []chunking.Piece, plan runPlan) ([]models.Chunk, chunkStats, error) {
	var stats chunkStats
	existing, err := i.db.ListChunksByDocument(ctx, docID)
	if err != nil {
		return nil, stats, err
	}

	if !reusable(existing, pieces, plan.key) {
		n, err := i.db.DeleteChunksByDocument(ctx, docID)
		if err != nil {
			return nil, stats, fmt.Errorf("drop stale chunks of document %d: %w", docID, err)
		}
		stats.dropped = int(n)
		i.log.Info("DocumentIngestor", "stored chunks replaced", map[string]interface{}{
			"document_id": docID, "dropped": n, "plan": plan.key,
		})
		existing = nil
	}

	for _, p := range pieces[len(existing):] {
		_, err := i.db.CreateChunk(ctx, models.Chunk{
			DocumentID: docID,
			Content:    p.Text,
			Order:      p.Order,
			Meta: models.Meta{
				"batch_index": b.Index,
				"start_page":  b.StartPage,
				"end_page":    b.EndPage,
				"strategy":    plan.chunkStrategy,
				"plan":        plan.key,
			},
		})
		if errors.Is(err, core.ErrUniqueViolation) {
			continue
		}
		if err != nil {
			return nil, stats, fmt.Errorf("create chunk %d: %w", p.Order, err)
		}
		stats.created++
	}

	if stats.created == 0 && stats.dropped == 0 && len(existing) > 0 {
		return existing, stats, nil
	}
	chunks, err := i.db.ListChunksByDocument(ctx, docID)
	return chunks, stats, err
}

// reusable reports whether existing is an ordered prefix of pieces written
// under the same plan.
func reusable(existing []models.Chunk, pieces []chunking.Piece, key string) bool {
	if len(existing) > len(pieces) {
		return false
	}
	for idx, ch := range existing {
		if ch.Order != idx+1 || ch.Content != pieces[idx].Text || ch.Meta.String("plan") != key {
			return false
		}
	}
	return true
}

func (i *DocumentIngestor) embedChunk(ctx context.Context, ch models.Chunk, req llm.EmbedRequest) error {
	v, err := i.stages.Embedder.Embed(ctx, ch.Content, req)
	if err != nil {
		return err
	}
	_, err = i.db.CreateEmbedding(ctx, models.Embedding{
		ChunkID: ch.ID,
		Vector:  v.Values,
		Model:   v.Model,
		Dim:     v.Dim,
	})
	if errors.Is(err, core.ErrUniqueViolation) {
		return nil
	}
	return err
}
