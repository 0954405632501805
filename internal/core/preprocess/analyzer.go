package preprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/markdave123-py/layoutflow/internal/core"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
)

const DefaultLayoutEndpoint = "https://api.upstage.ai/v1/document-ai/layout-analysis"

// Analyzer turns one batch PDF into a sidecar JSON file.
type Analyzer interface {
	Analyze(ctx context.Context, batchPDF, apiKey string) (string, error)
}

type AnalyzerConfig struct {
	Endpoint string
	APIKey   string
	OCR      bool
	Timeout  time.Duration
	// RequestsPerSecond throttles calls across goroutines; 0 disables it.
	RequestsPerSecond float64
}

// LayoutAnalyzer calls the layout-analysis service once per batch. It never retries.
type LayoutAnalyzer struct {
	client  *resty.Client
	limiter *rate.Limiter
	cfg     AnalyzerConfig
	log     logger.ILogger
}

var _ Analyzer = (*LayoutAnalyzer)(nil)

func NewLayoutAnalyzer(cfg AnalyzerConfig, log logger.ILogger) *LayoutAnalyzer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultLayoutEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	a := &LayoutAnalyzer{client: client, cfg: cfg, log: log}
	if cfg.RequestsPerSecond > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return a
}

// Analyze uploads batchPDF and writes the response verbatim next to it.
// apiKey overrides the configured key when non-empty.
func (a *LayoutAnalyzer) Analyze(ctx context.Context, batchPDF, apiKey string) (string, error) {
	if apiKey == "" {
		apiKey = a.cfg.APIKey
	}
	if apiKey == "" {
		return "", fmt.Errorf("layout analysis: %w: no API key in request or environment", core.ErrMissingCredential)
	}
	if _, err := os.Stat(batchPDF); err != nil {
		return "", fmt.Errorf("layout analysis: %w", err)
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("layout analysis: %w", err)
		}
	}

	start := time.Now()
	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetFile("document", batchPDF).
		SetFormData(map[string]string{"ocr": strconv.FormatBool(a.cfg.OCR)}).
		Post(a.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("layout analysis request for %s: %w", batchPDF, err)
	}

	body := resp.Body()
	if !resp.IsSuccess() {
		a.log.Warn("LayoutAnalyzer", "service returned an error", map[string]interface{}{
			"batch": batchPDF, "status": resp.StatusCode(),
		})
		return "", fmt.Errorf("layout analysis for %s: %w", batchPDF, core.NewServiceError("layout-analysis", resp.StatusCode(), body))
	}
	if !json.Valid(body) {
		return "", fmt.Errorf("layout analysis for %s: response is not JSON: %w", batchPDF, core.ErrMalformedSidecar)
	}

	out := SidecarPath(batchPDF)
	if err := os.WriteFile(out, body, 0o644); err != nil {
		return "", fmt.Errorf("write sidecar %s: %w", out, err)
	}

	a.log.Info("LayoutAnalyzer", "sidecar written", map[string]interface{}{
		"batch": batchPDF, "sidecar": out, "bytes": len(body), "elapsed_ms": time.Since(start).Milliseconds(),
	})
	return out, nil
}
