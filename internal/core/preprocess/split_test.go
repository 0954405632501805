package preprocess

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/layoutflow/internal/core"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
	"github.com/markdave123-py/layoutflow/internal/testutil"
)

func TestSplitter_Split(t *testing.T) {
	dir := t.TempDir()
	src := testutil.WritePDF(t, dir, "report.pdf", 25)
	out := filepath.Join(dir, "out")

	s := NewSplitter(logger.NewNop())
	batches, err := s.Split(context.Background(), src, out, SplitOptions{BatchSize: 10, SourceID: "7"})
	require.NoError(t, err)
	require.Len(t, batches, 3)

	want := []struct {
		name       string
		start, end int
	}{
		{"report_0000_0009.pdf", 0, 9},
		{"report_0010_0019.pdf", 10, 19},
		{"report_0020_0024.pdf", 20, 24},
	}
	for i, w := range want {
		b := batches[i]
		assert.Equal(t, i, b.Index)
		assert.Equal(t, w.name, filepath.Base(b.Path))
		assert.Equal(t, w.start, b.StartPage)
		assert.Equal(t, w.end, b.EndPage)
		assert.False(t, b.Verbatim)

		n, err := api.PageCountFile(b.Path)
		require.NoError(t, err)
		assert.Equal(t, w.end-w.start+1, n)

		rec, err := LoadBatchRecord(b.RecordPath)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, BatchRecord{SourceID: "7", BatchIndex: i, StartPage: w.start, EndPage: w.end}, *rec)
	}
}

func TestSplitter_SmallDocumentIsOneBatch(t *testing.T) {
	dir := t.TempDir()
	src := testutil.WritePDF(t, dir, "memo.pdf", 3)

	batches, err := NewSplitter(logger.NewNop()).Split(context.Background(), src, dir, SplitOptions{BatchSize: 10})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "memo_0000_0002.pdf", filepath.Base(batches[0].Path))
}

func TestSplitter_RejectsInvalidInput(t *testing.T) {
	dir := t.TempDir()
	s := NewSplitter(logger.NewNop())

	t.Run("batch size", func(t *testing.T) {
		src := testutil.WritePDF(t, dir, "a.pdf", 1)
		_, err := s.Split(context.Background(), src, dir, SplitOptions{BatchSize: 0})
		assert.ErrorIs(t, err, core.ErrInvalidBatchSize)
	})

	t.Run("not a pdf", func(t *testing.T) {
		src := filepath.Join(dir, "notes.pdf")
		require.NoError(t, os.WriteFile(src, []byte("just some plain text, not a document"), 0o644))
		_, err := s.Split(context.Background(), src, dir, SplitOptions{BatchSize: 10})
		assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
	})
}

func TestSplitter_EncryptedDocument(t *testing.T) {
	dir := t.TempDir()
	plain := testutil.WritePDF(t, dir, "plain.pdf", 4)
	locked := filepath.Join(dir, "locked.pdf")
	require.NoError(t, api.EncryptFile(plain, locked, model.NewAESConfiguration("secret", "secret", 256)))

	s := NewSplitter(logger.NewNop())

	_, err := s.Split(context.Background(), locked, filepath.Join(dir, "nopw"), SplitOptions{BatchSize: 2})
	assert.ErrorIs(t, err, core.ErrEncryptedDocument)

	plainCopy := filepath.Join(dir, "plain-copy.pdf")
	batches, err := s.Split(context.Background(), locked, filepath.Join(dir, "pw"), SplitOptions{BatchSize: 2, Password: "secret", PlainCopy: plainCopy})
	require.NoError(t, err)
	assert.Len(t, batches, 2)
	assert.Equal(t, "locked_0000_0001.pdf", filepath.Base(batches[0].Path))

	n, err := api.PageCountFile(plainCopy)
	require.NoError(t, err, "decrypted copy opens without a password")
	assert.Equal(t, 4, n)
}

func TestSplitter_BaseNameOverride(t *testing.T) {
	dir := t.TempDir()
	src := testutil.WritePDF(t, dir, "3f2a_upload.pdf", 2)

	batches, err := NewSplitter(logger.NewNop()).Split(context.Background(), src, dir, SplitOptions{BatchSize: 5, BaseName: "quarterly"})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "quarterly_0000_0001.pdf", filepath.Base(batches[0].Path))
}

func TestSplitter_VerbatimFallback(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.pdf")
	// Valid magic bytes with no readable structure behind them.
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.4\n%broken\n"), 0o644))

	batches, err := NewSplitter(logger.NewNop()).Split(context.Background(), src, dir, SplitOptions{BatchSize: 10})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.True(t, batches[0].Verbatim)
	assert.Equal(t, "broken_0000_0000.pdf", filepath.Base(batches[0].Path))

	got, err := os.ReadFile(batches[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4\n%broken\n", string(got))
}
