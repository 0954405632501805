package core

import "context"

// EmbeddingProvider is a live embedding service.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, model string, texts []string) ([][]float32, error)
	DefaultModel() string
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
