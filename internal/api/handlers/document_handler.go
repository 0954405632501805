package handlers

import (
	"net/http"

	"github.com/markdave123-py/layoutflow/internal/models"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
	"github.com/markdave123-py/layoutflow/internal/services"
)

type DocumentHandler struct {
	docs *services.DocumentService
	log  logger.ILogger
}

func NewDocumentHandler(docs *services.DocumentService, log logger.ILogger) *DocumentHandler {
	return &DocumentHandler{docs: docs, log: log}
}

type createDocumentRequest struct {
	FileID *int64      `json:"file_id" validate:"omitempty,gt=0"`
	Title  string      `json:"title" validate:"required"`
	Meta   models.Meta `json:"doc_meta"`
}

type createChunkRequest struct {
	Content string      `json:"content" validate:"required"`
	Order   int         `json:"chunk_order" validate:"gte=0"`
	Meta    models.Meta `json:"chunk_meta"`
}

func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.log, "DocumentHandler", err)
		return
	}
	doc, err := h.docs.CreateDocument(r.Context(), models.Document{FileID: req.FileID, Title: req.Title, Meta: req.Meta})
	if err != nil {
		writeError(w, h.log, "DocumentHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	offset, limit := page(r)
	docs, err := h.docs.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		writeError(w, h.log, "DocumentHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// Get returns the document with its chunks.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "documentID")
	if err != nil {
		writeError(w, h.log, "DocumentHandler", err)
		return
	}
	doc, err := h.docs.GetDocument(r.Context(), id)
	if err != nil {
		writeError(w, h.log, "DocumentHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "documentID")
	if err != nil {
		writeError(w, h.log, "DocumentHandler", err)
		return
	}
	if err := h.docs.DeleteDocument(r.Context(), id); err != nil {
		writeError(w, h.log, "DocumentHandler", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "documentID")
	if err != nil {
		writeError(w, h.log, "DocumentHandler", err)
		return
	}
	chunks, err := h.docs.ListChunks(r.Context(), id)
	if err != nil {
		writeError(w, h.log, "DocumentHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}

func (h *DocumentHandler) AddChunk(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "documentID")
	if err != nil {
		writeError(w, h.log, "DocumentHandler", err)
		return
	}
	var req createChunkRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.log, "DocumentHandler", err)
		return
	}
	ch, err := h.docs.AddChunk(r.Context(), models.Chunk{DocumentID: id, Content: req.Content, Order: req.Order, Meta: req.Meta})
	if err != nil {
		writeError(w, h.log, "DocumentHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}
