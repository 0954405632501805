package preprocess

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/layoutflow/internal/core"
)

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		path       string
		start, end int
		wantErr    bool
	}{
		{"/out/report_0010_0019.pdf", 10, 19, false},
		{"/out/report_0010_0019.json", 10, 19, false},
		{"/out/report_0010_0019.batch.json", 10, 19, false},
		{"my_file_v2_0000_0004.json", 0, 4, false},
		{"report.json", 0, 0, true},
		{"report_0009_0001.json", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			start, end, err := ParsePageRange(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrMalformedSidecar)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestBatchPaths(t *testing.T) {
	assert.Equal(t, "doc_0020_0024.pdf", BatchFileName("doc", 20, 24))
	assert.Equal(t, "/x/doc_0020_0024.json", SidecarPath("/x/doc_0020_0024.pdf"))
	assert.Equal(t, "/x/doc_0020_0024.batch.json", RecordPath("/x/doc_0020_0024.pdf"))
	assert.Equal(t, "/x/doc_0020_0024.batch.json", RecordPath("/x/doc_0020_0024.json"))
}

func TestBatchRecord(t *testing.T) {
	dir := t.TempDir()

	rec, err := LoadBatchRecord(filepath.Join(dir, "missing.batch.json"))
	require.NoError(t, err)
	assert.Nil(t, rec)

	bad := filepath.Join(dir, "bad.batch.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"start_page": 5, "end_page": 2}`), 0o644))
	_, err = LoadBatchRecord(bad)
	assert.ErrorIs(t, err, core.ErrMalformedSidecar)

	pdf := filepath.Join(dir, "doc_0010_0019.pdf")
	require.NoError(t, EnsureBatchRecord(pdf, "src", 1))
	rec, err = LoadBatchRecord(RecordPath(pdf))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, BatchRecord{SourceID: "src", BatchIndex: 1, StartPage: 10, EndPage: 19}, *rec)

	// An existing record is never rewritten.
	require.NoError(t, EnsureBatchRecord(pdf, "other", 9))
	rec, err = LoadBatchRecord(RecordPath(pdf))
	require.NoError(t, err)
	assert.Equal(t, "src", rec.SourceID)
}
