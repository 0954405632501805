package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/markdave123-py/layoutflow/internal/models"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
	"github.com/markdave123-py/layoutflow/internal/services"
)

const maxUploadMemory = 32 << 20

type FileHandler struct {
	docs *services.DocumentService
	log  logger.ILogger
}

func NewFileHandler(docs *services.DocumentService, log logger.ILogger) *FileHandler {
	return &FileHandler{docs: docs, log: log}
}

type createFileRequest struct {
	OriginalName string `json:"original_name" validate:"required"`
	StoragePath  string `json:"storage_path" validate:"required"`
	MimeType     string `json:"mime_type"`
}

// Upload stores a multipart "file" field and registers it.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing file field"})
		return
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	f, err := h.docs.RegisterUpload(ctx, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(w, h.log, "FileHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// Create registers a file that is already in storage.
func (h *FileHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createFileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.log, "FileHandler", err)
		return
	}
	f, err := h.docs.CreateFile(r.Context(), models.SourceFile{
		OriginalName: req.OriginalName,
		StoragePath:  req.StoragePath,
		MimeType:     req.MimeType,
	})
	if err != nil {
		writeError(w, h.log, "FileHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	offset, limit := page(r)
	files, err := h.docs.ListFiles(r.Context(), offset, limit)
	if err != nil {
		writeError(w, h.log, "FileHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "fileID")
	if err != nil {
		writeError(w, h.log, "FileHandler", err)
		return
	}
	f, err := h.docs.GetFile(r.Context(), id)
	if err != nil {
		writeError(w, h.log, "FileHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *FileHandler) Documents(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "fileID")
	if err != nil {
		writeError(w, h.log, "FileHandler", err)
		return
	}
	docs, err := h.docs.DocumentsForFile(r.Context(), id)
	if err != nil {
		writeError(w, h.log, "FileHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "fileID")
	if err != nil {
		writeError(w, h.log, "FileHandler", err)
		return
	}
	if err := h.docs.DeleteFile(r.Context(), id); err != nil {
		writeError(w, h.log, "FileHandler", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
