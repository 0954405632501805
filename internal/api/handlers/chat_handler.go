package handlers

import (
	"net/http"

	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
	"github.com/markdave123-py/layoutflow/internal/services"
)

type ChatHandler struct {
	chat *services.ChatService
	log  logger.ILogger
}

func NewChatHandler(chat *services.ChatService, log logger.ILogger) *ChatHandler {
	return &ChatHandler{chat: chat, log: log}
}

type ChatRequest struct {
	Query string `json:"query" validate:"required"`
	Limit int    `json:"limit" validate:"gte=0,lte=50"`
}

type createHistoryRequest struct {
	UserInput string  `json:"user_input" validate:"required"`
	LLMOutput *string `json:"llm_output"`
}

func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.log, "ChatHandler", err)
		return
	}
	ans, err := h.chat.Query(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeError(w, h.log, "ChatHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (h *ChatHandler) CreateHistory(w http.ResponseWriter, r *http.Request) {
	var req createHistoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.log, "ChatHandler", err)
		return
	}
	hist, err := h.chat.CreateHistory(r.Context(), req.UserInput, req.LLMOutput)
	if err != nil {
		writeError(w, h.log, "ChatHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, hist)
}

func (h *ChatHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	offset, limit := page(r)
	hist, err := h.chat.ListHistory(r.Context(), offset, limit)
	if err != nil {
		writeError(w, h.log, "ChatHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}
