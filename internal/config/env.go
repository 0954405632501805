package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string
	Port        string
	LogFile     string
	CORSOrigins []string

	DBDriver    string
	DatabaseURL string
	SslCertPath string
	SQLitePath  string

	StorageType  string
	UploadDir    string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	UpstageAPIKey  string
	LayoutEndpoint string
	LayoutOCR      bool
	ServiceTimeout time.Duration

	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string
	EmbedProvider string
	EmbedStrategy string
	EmbedModel    string
	EmbedDim      int
	GenProvider   string
	GenModel      string
	ChatTopK      int

	IngestRoot         string
	BatchSize          int
	RenderDPI          int
	ChunkStrategy      string
	ChunkSize          int
	ChunkOverlap       int
	TextSource         string
	AnalyzeConcurrency int
	AnalyzeRPS         float64
	IngestWorkers      int
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	return &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		LogFile:     getEnv("LOG_FILE", ""),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:8888"}),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/layoutflow.db"),

		StorageType:  strings.ToLower(getEnv("STORAGE_TYPE", "local")),
		UploadDir:    getEnv("UPLOAD_DIR", "./data/uploads"),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "layoutflow-docs"),

		UpstageAPIKey:  getEnv("UPSTAGE_API_KEY", ""),
		LayoutEndpoint: getEnv("LAYOUT_ENDPOINT", "https://api.upstage.ai/v1/document-ai/layout-analysis"),
		LayoutOCR:      getEnvBool("LAYOUT_OCR", false),
		ServiceTimeout: getEnvDuration("SERVICE_TIMEOUT", 120*time.Second),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		EmbedProvider: strings.ToLower(getEnv("EMBED_PROVIDER", "openai")),
		EmbedStrategy: strings.ToLower(getEnv("EMBED_STRATEGY", "live_or_fallback")),
		EmbedModel:    getEnv("EMBED_MODEL", "text-embedding-3-small"),
		EmbedDim:      getEnvInt("EMBED_DIM", 1536),
		GenProvider:   strings.ToLower(getEnv("GEN_PROVIDER", "gemini")),
		GenModel:      getEnv("GEN_MODEL", ""),
		ChatTopK:      getEnvInt("CHAT_TOP_K", 5),

		IngestRoot:         getEnv("INGEST_ROOT", "./data/ingestion"),
		BatchSize:          getEnvInt("BATCH_SIZE", 10),
		RenderDPI:          getEnvInt("RENDER_DPI", 300),
		ChunkStrategy:      strings.ToLower(getEnv("CHUNK_STRATEGY", "recursive")),
		ChunkSize:          getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:       getEnvInt("CHUNK_OVERLAP", 200),
		TextSource:         strings.ToLower(getEnv("TEXT_SOURCE", "markdown")),
		AnalyzeConcurrency: getEnvInt("ANALYZE_CONCURRENCY", 2),
		AnalyzeRPS:         getEnvFloat("ANALYZE_RPS", 0),
		IngestWorkers:      getEnvInt("INGEST_WORKERS", 2),
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL not set for postgres driver")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH not set for sqlite driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}

	switch c.StorageType {
	case "local", "s3":
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkStrategy != "fixed" && c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be less than CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.AnalyzeRPS < 0 {
		return fmt.Errorf("ANALYZE_RPS must not be negative, got %g", c.AnalyzeRPS)
	}
	switch c.EmbedProvider {
	case "openai", "gemini", "none":
	default:
		return fmt.Errorf("unknown EMBED_PROVIDER %q", c.EmbedProvider)
	}
	switch c.GenProvider {
	case "openai", "gemini", "none":
	default:
		return fmt.Errorf("unknown GEN_PROVIDER %q", c.GenProvider)
	}
	if c.EmbedDim <= 0 {
		return fmt.Errorf("EMBED_DIM must be positive, got %d", c.EmbedDim)
	}
	return nil
}

// IsProd reports whether APP_ENV names a production deployment.
func (c *Config) IsProd() bool {
	return c.AppEnv == "production" || c.AppEnv == "prod"
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a number, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
