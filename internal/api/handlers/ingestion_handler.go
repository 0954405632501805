package handlers

import (
	"net/http"

	"github.com/markdave123-py/layoutflow/internal/core/ingestion_engine"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
	"github.com/markdave123-py/layoutflow/internal/services"
)

type IngestionHandler struct {
	ingestor ingestion_engine.Ingestor
	log      logger.ILogger
}

func NewIngestionHandler(ing ingestion_engine.Ingestor, log logger.ILogger) *IngestionHandler {
	return &IngestionHandler{ingestor: ing, log: log}
}

type ingestRequest struct {
	FileID        int64  `json:"file_id" validate:"required,gt=0"`
	BatchSize     int    `json:"batch_size" validate:"gte=0"`
	Password      string `json:"password"`
	ChunkStrategy string `json:"chunk_strategy" validate:"omitempty,oneof=fixed recursive tokens"`
	EmbedStrategy string `json:"embed_strategy" validate:"omitempty,oneof=live fallback live_or_fallback"`
	EmbedModel    string `json:"embed_model"`
	APIKey        string `json:"api_key"`
	Resume        bool   `json:"resume"`
}

func (req ingestRequest) toRequest() ingestion_engine.Request {
	return ingestion_engine.Request{
		FileID:        req.FileID,
		BatchSize:     req.BatchSize,
		Password:      req.Password,
		ChunkStrategy: req.ChunkStrategy,
		EmbedStrategy: req.EmbedStrategy,
		EmbedModel:    req.EmbedModel,
		APIKey:        req.APIKey,
		Resume:        req.Resume,
	}
}

type queuedResponse struct {
	FileID int64  `json:"file_id"`
	Status string `json:"status"`
}

func (h *IngestionHandler) stage(last ingestion_engine.Stage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, h.log, "IngestionHandler", err)
			return
		}
		res, err := h.ingestor.RunUntil(r.Context(), req.toRequest(), last)
		if err != nil {
			writeError(w, h.log, "IngestionHandler", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// Split, Analyze, Extract and Run each run the pipeline up to their stage.
func (h *IngestionHandler) Split() http.HandlerFunc   { return h.stage(ingestion_engine.StageSplit) }
func (h *IngestionHandler) Analyze() http.HandlerFunc { return h.stage(ingestion_engine.StageAnalyze) }
func (h *IngestionHandler) Extract() http.HandlerFunc { return h.stage(ingestion_engine.StageExtract) }
func (h *IngestionHandler) Run() http.HandlerFunc     { return h.stage(ingestion_engine.StagePersist) }

// Enqueue hands the request to the background workers.
func (h *IngestionHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.log, "IngestionHandler", err)
		return
	}
	if err := h.ingestor.Enqueue(r.Context(), req.toRequest()); err != nil {
		writeError(w, h.log, "IngestionHandler", err)
		return
	}
	writeJSON(w, http.StatusAccepted, queuedResponse{FileID: req.FileID, Status: "queued"})
}

// Artifact serves a file produced by a run, addressed by ?path=.
func (h *IngestionHandler) Artifact(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		writeError(w, h.log, "IngestionHandler", services.ErrInvalidInput)
		return
	}
	full, err := h.ingestor.ArtifactPath(p)
	if err != nil {
		writeError(w, h.log, "IngestionHandler", err)
		return
	}
	http.ServeFile(w, r, full)
}
