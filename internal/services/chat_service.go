package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/markdave123-py/layoutflow/internal/core"
	"github.com/markdave123-py/layoutflow/internal/core/llm"
	"github.com/markdave123-py/layoutflow/internal/models"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
)

// ErrInvalidInput marks requests rejected before any work is done.
var ErrInvalidInput = errors.New("invalid input")

const systemPrompt = "You are an intelligent assistant answering based only on the given document content. If unsure, say 'I cannot find this in the document.'"

// Answer is the outcome of one chat query.
type Answer struct {
	Answer  string               `json:"answer"`
	Sources []models.ScoredChunk `json:"sources"`
	History *models.ChatHistory  `json:"history,omitempty"`
}

type ChatService struct {
	db       core.DbClient
	embedder *llm.Embedder
	llm      core.LLMProvider
	strategy llm.Strategy
	model    string
	topK     int
	vectors  *cache.Cache
	log      logger.ILogger
}

// NewChatService answers questions over stored chunks. gen may be nil, in which
// case queries return the retrieved chunks without a generated answer.
func NewChatService(db core.DbClient, embedder *llm.Embedder, gen core.LLMProvider, strategy llm.Strategy, model string, topK int, log logger.ILogger) *ChatService {
	if topK <= 0 {
		topK = 5
	}
	return &ChatService{
		db:       db,
		embedder: embedder,
		llm:      gen,
		strategy: strategy,
		model:    model,
		topK:     topK,
		vectors:  cache.New(1*time.Hour, 10*time.Minute),
		log:      log,
	}
}

// Query embeds the question with the same strategy used at ingestion, retrieves
// the nearest chunks and asks the LLM to answer from them. The exchange is
// recorded in the chat history.
func (s *ChatService) Query(ctx context.Context, query string, limit int) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query: %w", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = s.topK
	}

	vec, err := s.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := s.db.SearchChunks(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	out := &Answer{Sources: hits}
	if s.llm != nil {
		var sb strings.Builder
		for _, h := range hits {
			sb.WriteString(h.Content)
			sb.WriteString("\n---\n")
		}
		userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", sb.String(), query)

		answer, err := s.llm.Generate(ctx, systemPrompt, userPrompt)
		if err != nil {
			return nil, fmt.Errorf("generate answer: %w", err)
		}
		out.Answer = answer
	}

	var output *string
	if out.Answer != "" {
		output = &out.Answer
	}
	h, err := s.db.CreateChatHistory(ctx, models.ChatHistory{UserInput: query, LLMOutput: output})
	if err != nil {
		s.log.Warn("ChatService", "chat history not recorded", map[string]interface{}{"error": err.Error()})
	} else {
		out.History = h
	}

	s.log.Info("ChatService", "query answered", map[string]interface{}{"hits": len(hits), "generated": s.llm != nil})
	return out, nil
}

func (s *ChatService) queryVector(ctx context.Context, query string) ([]float32, error) {
	if v, ok := s.vectors.Get(query); ok {
		return v.([]float32), nil
	}
	vec, err := s.embedder.Embed(ctx, query, llm.EmbedRequest{Model: s.model, Strategy: s.strategy})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if vec.Model != llm.FallbackModel || s.strategy == llm.StrategyFallback {
		s.vectors.Set(query, vec.Values, cache.DefaultExpiration)
	}
	return vec.Values, nil
}

func (s *ChatService) CreateHistory(ctx context.Context, input string, output *string) (*models.ChatHistory, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("user_input: %w", ErrInvalidInput)
	}
	return s.db.CreateChatHistory(ctx, models.ChatHistory{UserInput: input, LLMOutput: output})
}

func (s *ChatService) ListHistory(ctx context.Context, offset, limit int) ([]models.ChatHistory, error) {
	return s.db.ListChatHistory(ctx, offset, clampLimit(limit))
}
