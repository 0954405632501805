package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/markdave123-py/layoutflow/internal/api/handlers"
	"github.com/markdave123-py/layoutflow/internal/config"
	"github.com/markdave123-py/layoutflow/internal/core"
	db "github.com/markdave123-py/layoutflow/internal/core/database"
	"github.com/markdave123-py/layoutflow/internal/core/ingestion_engine"
	"github.com/markdave123-py/layoutflow/internal/core/llm"
	objectclient "github.com/markdave123-py/layoutflow/internal/core/object-client"
	"github.com/markdave123-py/layoutflow/internal/core/preprocess"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
	"github.com/markdave123-py/layoutflow/internal/services"
)

// App owns every long-lived dependency of the service.
type App struct {
	Config    *config.Config
	Log       logger.ILogger
	DBClient  db.DbClient
	Objects   core.ObjectClient
	Ingestor  *ingestion_engine.DocumentIngestor
	Documents *services.DocumentService
	Chat      *services.ChatService

	closers []func() error
}

// Preprocessors are the stages that work on local files without a database.
type Preprocessors struct {
	Splitter  *preprocess.Splitter
	Analyzer  *preprocess.LayoutAnalyzer
	Extractor *preprocess.AssetExtractor
}

func NewPreprocessors(cfg *config.Config, log logger.ILogger) Preprocessors {
	return Preprocessors{
		Splitter: preprocess.NewSplitter(log),
		Analyzer: preprocess.NewLayoutAnalyzer(preprocess.AnalyzerConfig{
			Endpoint:          cfg.LayoutEndpoint,
			APIKey:            cfg.UpstageAPIKey,
			OCR:               cfg.LayoutOCR,
			Timeout:           cfg.ServiceTimeout,
			RequestsPerSecond: cfg.AnalyzeRPS,
		}, log),
		Extractor: preprocess.NewAssetExtractor(preprocess.NewPdftoppmRasterizer(), cfg.RenderDPI, log),
	}
}

func NewApp(ctx context.Context, cfg *config.Config, log logger.ILogger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{Config: cfg, Log: log}

	dbClient, err := db.Open(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient.Close)
	log.Info("App", "database initialized and ready", map[string]interface{}{"driver": cfg.DBDriver})

	objClient, err := objectclient.NewObjectClient(appCtx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Objects = objClient
	log.Info("App", "object client initialized and ready", map[string]interface{}{"storage": cfg.StorageType})

	provider, err := a.embeddingProvider(appCtx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}
	gen, err := a.llmProvider(appCtx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the llm: %w", err)
	}

	strategy, err := llm.ParseStrategy(cfg.EmbedStrategy)
	if err != nil {
		a.Close()
		return nil, err
	}
	embedder := llm.NewEmbedder(provider, cfg.EmbedDim, log)

	pre := NewPreprocessors(cfg, log)
	a.Ingestor = ingestion_engine.NewDocumentIngestor(dbClient, objClient, ingestion_engine.Stages{
		Splitter:  pre.Splitter,
		Analyzer:  pre.Analyzer,
		Extractor: pre.Extractor,
		Embedder:  embedder,
		TextLayer: ingestion_engine.NewDocconvExtractor(false),
	}, &ingestion_engine.IngestConfig{
		WorkRoot:           cfg.IngestRoot,
		BatchSize:          cfg.BatchSize,
		ChunkStrategy:      cfg.ChunkStrategy,
		ChunkSize:          cfg.ChunkSize,
		ChunkOverlap:       cfg.ChunkOverlap,
		EmbedStrategy:      strategy,
		EmbedModel:         cfg.EmbedModel,
		TextSource:         cfg.TextSource,
		AnalyzeConcurrency: cfg.AnalyzeConcurrency,
		AnalyzeTimeout:     cfg.ServiceTimeout,
	}, log)

	a.Documents = services.NewDocumentService(dbClient, objClient, cfg.BucketName, log)
	a.Chat = services.NewChatService(dbClient, embedder, gen, strategy, cfg.EmbedModel, cfg.ChatTopK, log)
	return a, nil
}

func (a *App) embeddingProvider(ctx context.Context) (core.EmbeddingProvider, error) {
	switch a.Config.EmbedProvider {
	case "openai":
		if a.Config.OpenAIAPIKey == "" {
			a.Log.Warn("App", "OPENAI_API_KEY not set, only fallback embeddings are available", nil)
			return nil, nil
		}
		return llm.NewOpenAIEmbedder(a.Config.OpenAIAPIKey, a.Config.OpenAIBaseURL, a.Config.EmbedModel), nil
	case "gemini":
		if a.Config.GeminiAPIKey == "" {
			a.Log.Warn("App", "GEMINI_API_KEY not set, only fallback embeddings are available", nil)
			return nil, nil
		}
		g, err := llm.NewGeminiEmbedder(ctx, a.Config.GeminiAPIKey, a.Config.EmbedModel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		return g, nil
	default:
		return nil, nil
	}
}

// llmProvider returns nil when generation is disabled or has no key; chat
// then answers with retrieved chunks only.
func (a *App) llmProvider(ctx context.Context) (core.LLMProvider, error) {
	switch a.Config.GenProvider {
	case "openai":
		if a.Config.OpenAIAPIKey == "" {
			return nil, nil
		}
		return llm.NewOpenAILLM(a.Config.OpenAIAPIKey, a.Config.OpenAIBaseURL, a.Config.GenModel), nil
	case "gemini":
		if a.Config.GeminiAPIKey == "" {
			return nil, nil
		}
		g, err := llm.NewGeminiLLM(ctx, a.Config.GeminiAPIKey, a.Config.GenModel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		return g, nil
	default:
		return nil, nil
	}
}

// Handler wires the HTTP API.
func (a *App) Handler() http.Handler {
	return NewRouter(Handlers{
		Files:     handlers.NewFileHandler(a.Documents, a.Log),
		Documents: handlers.NewDocumentHandler(a.Documents, a.Log),
		Ingestion: handlers.NewIngestionHandler(a.Ingestor, a.Log),
		Chat:      handlers.NewChatHandler(a.Chat, a.Log),
	}, a.Config.CORSOrigins)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("App", "close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	a.closers = nil
}
