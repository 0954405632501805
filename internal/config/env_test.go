package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{"DB_DRIVER", "BATCH_SIZE", "EMBED_DIM", "RENDER_DPI", "LAYOUT_ENDPOINT", "GEN_PROVIDER", "CHAT_TOP_K"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg := LoadConfig()

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 1536, cfg.EmbedDim)
	assert.Equal(t, 300, cfg.RenderDPI)
	assert.Equal(t, "https://api.upstage.ai/v1/document-ai/layout-analysis", cfg.LayoutEndpoint)
	assert.Equal(t, "gemini", cfg.GenProvider)
	assert.Equal(t, 5, cfg.ChatTopK)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("SERVICE_TIMEOUT", "45s")
	t.Setenv("LAYOUT_OCR", "true")
	t.Setenv("CHUNK_SIZE", "not-a-number")
	t.Setenv("ANALYZE_RPS", "0.5")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg := LoadConfig()

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 45*time.Second, cfg.ServiceTimeout)
	assert.True(t, cfg.LayoutOCR)
	assert.Equal(t, 1000, cfg.ChunkSize, "unparseable ints fall back to the default")
	assert.InDelta(t, 0.5, cfg.AnalyzeRPS, 1e-9)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DBDriver:      "sqlite",
			SQLitePath:    "x.db",
			StorageType:   "local",
			BatchSize:     10,
			ChunkStrategy: "recursive",
			ChunkSize:     1000,
			ChunkOverlap:  200,
			EmbedDim:      1536,
			EmbedProvider: "none",
			GenProvider:   "none",
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"postgres without url", func(c *Config) { c.DBDriver = "postgres" }},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }},
		{"unknown storage", func(c *Config) { c.StorageType = "gcs" }},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"overlap not below size", func(c *Config) { c.ChunkOverlap = 1000 }},
		{"zero dim", func(c *Config) { c.EmbedDim = 0 }},
		{"negative rate", func(c *Config) { c.AnalyzeRPS = -1 }},
		{"unknown embed provider", func(c *Config) { c.EmbedProvider = "cohere" }},
		{"unknown gen provider", func(c *Config) { c.GenProvider = "claude" }},
	}

	require.NoError(t, base().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
