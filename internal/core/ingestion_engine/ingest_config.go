package ingestion_engine

import (
	"time"

	"github.com/markdave123-py/layoutflow/internal/core"
	"github.com/markdave123-py/layoutflow/internal/core/llm"
	"github.com/markdave123-py/layoutflow/internal/core/preprocess"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
)

const (
	TextSourceMarkdown = "markdown"
	TextSourcePDFText  = "pdf-text"
)

// Stage names a pipeline step; RunUntil stops after it.
type Stage int

const (
	StageSplit Stage = iota + 1
	StageAnalyze
	StageExtract
	StagePersist
)

// IngestConfig holds the run defaults; a Request may override most of them.
//
// WorkRoot:           parent of every per-file work directory.
// AnalyzeConcurrency: layout-analysis calls in flight per run.
// AnalyzeTimeout:     deadline for a single layout-analysis call.
// TextSource:         "markdown" chunks the rendered layout, "pdf-text" the PDF text layer.
// QueueSize:          pending background requests before Enqueue blocks.
type IngestConfig struct {
	WorkRoot           string
	BatchSize          int
	ChunkStrategy      string
	ChunkSize          int
	ChunkOverlap       int
	EmbedStrategy      llm.Strategy
	EmbedModel         string
	TextSource         string
	AnalyzeConcurrency int
	AnalyzeTimeout     time.Duration
	QueueSize          int
}

// Request is one pipeline invocation for a registered SourceFile.
type Request struct {
	FileID        int64  `json:"file_id"`
	BatchSize     int    `json:"batch_size,omitempty"`
	Password      string `json:"-"`
	ChunkStrategy string `json:"chunk_strategy,omitempty"`
	EmbedStrategy string `json:"embed_strategy,omitempty"`
	EmbedModel    string `json:"embed_model,omitempty"`
	APIKey        string `json:"-"`
	// Resume continues figure numbering from files already in the work directory.
	Resume bool `json:"resume,omitempty"`
}

type DocumentResult struct {
	DocumentID    int64  `json:"document_id"`
	Title         string `json:"title"`
	BatchIndex    int    `json:"batch_index"`
	StartPage     int    `json:"start_page"`
	EndPage       int    `json:"end_page"`
	Chunks        int    `json:"chunks"`
	ChunksCreated int    `json:"chunks_created"`
	ChunksDropped int    `json:"chunks_dropped"`
	Embedded      int    `json:"embedded"`
	Created       bool   `json:"created"`
}

type Result struct {
	RunID          string             `json:"run_id"`
	FileID         int64              `json:"file_id"`
	WorkDir        string             `json:"work_dir"`
	Batches        []preprocess.Batch `json:"batches"`
	Analyzed       int                `json:"analyzed"`
	SidecarsReused int                `json:"sidecars_reused"`
	Images         []string           `json:"images"`
	HTMLPath       string             `json:"html_path"`
	MarkdownPath   string             `json:"md_path"`
	Documents      []DocumentResult   `json:"documents"`
}

// Stages are the pipeline steps the ingestor drives.
type Stages struct {
	Splitter  *preprocess.Splitter
	Analyzer  preprocess.Analyzer
	Extractor *preprocess.AssetExtractor
	Embedder  *llm.Embedder
	// TextLayer is only consulted when TextSource is "pdf-text".
	TextLayer core.DocumentExtractor
}

// DocumentIngestor orchestrates ingestion runs:
//
// db:     persistence for files, documents, chunks and embeddings.
// obj:    object storage the uploaded sources live in.
// stages: split, analyze, extract, embed.
// jobs:   in-memory queue of background requests.
type DocumentIngestor struct {
	db     core.DbClient
	obj    core.ObjectClient
	stages Stages
	cfg    *IngestConfig
	log    logger.ILogger
	jobs   chan Request
}
