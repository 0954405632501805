package preprocess

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/layoutflow/internal/core"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
	"github.com/markdave123-py/layoutflow/internal/testutil"
)

const sampleSidecar = `{"elements":[{"category":"paragraph","page":1,"text":"hello"}],"metadata":{"pages":[{"page":1,"width":612,"height":792}]}}`

func newAnalyzer(t *testing.T, handler http.HandlerFunc, key string) *LayoutAnalyzer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewLayoutAnalyzer(AnalyzerConfig{Endpoint: srv.URL, APIKey: key}, logger.NewNop())
}

func TestLayoutAnalyzer_WritesSidecar(t *testing.T) {
	dir := t.TempDir()
	batch := testutil.WritePDF(t, dir, "doc_0000_0001.pdf", 2)

	a := newAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer env-key", r.Header.Get("Authorization"))

		file, header, err := r.FormFile("document")
		if assert.NoError(t, err) {
			defer file.Close()
			assert.Equal(t, "doc_0000_0001.pdf", header.Filename)
			b, _ := io.ReadAll(file)
			assert.NotEmpty(t, b)
		}
		assert.Equal(t, "false", r.FormValue("ocr"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleSidecar))
	}, "env-key")

	out, err := a.Analyze(context.Background(), batch, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "doc_0000_0001.json"), out)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, sampleSidecar, string(got), "sidecar is the verbatim response body")
}

func TestLayoutAnalyzer_RequestKeyOverridesEnvironment(t *testing.T) {
	dir := t.TempDir()
	batch := testutil.WritePDF(t, dir, "doc_0000_0000.pdf", 1)

	a := newAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer request-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(sampleSidecar))
	}, "env-key")

	_, err := a.Analyze(context.Background(), batch, "request-key")
	require.NoError(t, err)
}

func TestLayoutAnalyzer_AcceptsAnySuccessStatus(t *testing.T) {
	dir := t.TempDir()
	batch := testutil.WritePDF(t, dir, "doc_0000_0000.pdf", 1)

	a := newAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(sampleSidecar))
	}, "env-key")

	out, err := a.Analyze(context.Background(), batch, "")
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestLayoutAnalyzer_Errors(t *testing.T) {
	dir := t.TempDir()
	batch := testutil.WritePDF(t, dir, "doc_0000_0000.pdf", 1)

	t.Run("missing credential", func(t *testing.T) {
		a := newAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("service must not be called without a key")
		}, "")
		_, err := a.Analyze(context.Background(), batch, "")
		assert.ErrorIs(t, err, core.ErrMissingCredential)
	})

	t.Run("non-200 status", func(t *testing.T) {
		a := newAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limited"}`))
		}, "k")
		_, err := a.Analyze(context.Background(), batch, "")

		var svcErr *core.ServiceError
		require.True(t, errors.As(err, &svcErr))
		assert.Equal(t, http.StatusTooManyRequests, svcErr.Status)
		assert.Contains(t, svcErr.Body, "rate limited")

		_, statErr := os.Stat(SidecarPath(batch))
		assert.True(t, os.IsNotExist(statErr), "no sidecar on failure")
	})

	t.Run("non-json body", func(t *testing.T) {
		a := newAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>gateway</html>"))
		}, "k")
		_, err := a.Analyze(context.Background(), batch, "")
		assert.ErrorIs(t, err, core.ErrMalformedSidecar)
	})
}
