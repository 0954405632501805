package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/markdave123-py/layoutflow/internal/core"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
)

const DefaultDim = 1536

// Strategy selects where vectors come from.
type Strategy string

const (
	StrategyLive           Strategy = "live"
	StrategyFallback       Strategy = "fallback"
	StrategyLiveOrFallback Strategy = "live_or_fallback"
)

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyLive, StrategyFallback, StrategyLiveOrFallback:
		return st, nil
	case "":
		return StrategyLiveOrFallback, nil
	default:
		return "", fmt.Errorf("unknown embedding strategy %q", s)
	}
}

type EmbedRequest struct {
	Model    string
	Strategy Strategy
}

type Vector struct {
	Values []float32
	Model  string
	Dim    int
}

// Embedder produces one vector per text. provider may be nil, in which case
// only the fallback strategy can succeed.
type Embedder struct {
	provider core.EmbeddingProvider
	dim      int
	log      logger.ILogger
}

func NewEmbedder(provider core.EmbeddingProvider, dim int, log logger.ILogger) *Embedder {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &Embedder{provider: provider, dim: dim, log: log}
}

// HasProvider reports whether live embeddings are possible.
func (e *Embedder) HasProvider() bool { return e.provider != nil }

func (e *Embedder) Embed(ctx context.Context, text string, req EmbedRequest) (*Vector, error) {
	if req.Strategy == "" {
		req.Strategy = StrategyLiveOrFallback
	}

	switch req.Strategy {
	case StrategyFallback:
		return e.fallback(text), nil

	case StrategyLive:
		if e.provider == nil {
			return nil, fmt.Errorf("live embedding: %w: no embedding provider configured", core.ErrMissingCredential)
		}
		return e.live(ctx, text, req.Model)

	case StrategyLiveOrFallback:
		if e.provider == nil {
			return e.fallback(text), nil
		}
		v, err := e.live(ctx, text, req.Model)
		if err != nil {
			e.log.Warn("Embedder", "live embedding failed, using fallback vector", map[string]interface{}{
				"error": err.Error(),
			})
			return e.fallback(text), nil
		}
		return v, nil

	default:
		return nil, fmt.Errorf("unknown embedding strategy %q", req.Strategy)
	}
}

func (e *Embedder) live(ctx context.Context, text, model string) (*Vector, error) {
	if model == "" {
		model = e.provider.DefaultModel()
	}
	vecs, err := e.provider.EmbedTexts(ctx, model, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed with %s: %w", model, err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embed with %s: expected one vector, got %d", model, len(vecs))
	}
	return &Vector{Values: vecs[0], Model: model, Dim: len(vecs[0])}, nil
}

func (e *Embedder) fallback(text string) *Vector {
	return &Vector{Values: FallbackVector(text, e.dim), Model: FallbackModel, Dim: e.dim}
}
