package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/markdave123-py/layoutflow/internal/core"
)

const DefaultOpenAIEmbedModel = "text-embedding-3-small"

type OpenAIEmbedder struct {
	client    *openai.Client
	modelName string
}

// NewOpenAIEmbedder talks to the OpenAI API, or to baseURL when it is set.
func NewOpenAIEmbedder(apiKey, baseURL, modelName string) *OpenAIEmbedder {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = DefaultOpenAIEmbedModel
	}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(config), modelName: modelName}
}

func (o *OpenAIEmbedder) DefaultModel() string { return o.modelName }

func (o *OpenAIEmbedder) EmbedTexts(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if model == "" {
		model = o.modelName
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embed: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)
