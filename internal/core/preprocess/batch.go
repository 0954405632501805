package preprocess

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/markdave123-py/layoutflow/internal/core"
)

const (
	sidecarExt = ".json"
	recordExt  = ".batch.json"
)

// Batch is one contiguous page range written by the Splitter.
// StartPage and EndPage are 0-based and inclusive.
type Batch struct {
	Index      int    `json:"batch_index"`
	StartPage  int    `json:"start_page"`
	EndPage    int    `json:"end_page"`
	Path       string `json:"path"`
	RecordPath string `json:"record_path"`
	Verbatim   bool   `json:"verbatim,omitempty"`
}

// BatchRecord is persisted next to each batch PDF and its sidecar so the
// page offset never has to be recovered from a filename.
type BatchRecord struct {
	SourceID   string `json:"source_id"`
	BatchIndex int    `json:"batch_index"`
	StartPage  int    `json:"start_page"`
	EndPage    int    `json:"end_page"`
	Verbatim   bool   `json:"verbatim,omitempty"`
}

var pageRangeSuffix = regexp.MustCompile(`_(\d+)_(\d+)$`)

// BatchFileName returns "<base>_<start>_<end>.pdf" with 4-digit zero padding.
func BatchFileName(base string, start, end int) string {
	return fmt.Sprintf("%s_%04d_%04d.pdf", base, start, end)
}

// stem strips the batch-record, sidecar or PDF extension from p.
func stem(p string) string {
	if strings.HasSuffix(p, recordExt) {
		return strings.TrimSuffix(p, recordExt)
	}
	return strings.TrimSuffix(p, filepath.Ext(p))
}

// SidecarPath is the analyzer output path for a batch PDF.
func SidecarPath(batchPDF string) string {
	return stem(batchPDF) + sidecarExt
}

// RecordPath is the batch record path for a batch PDF or its sidecar.
func RecordPath(p string) string {
	return stem(p) + recordExt
}

// ParsePageRange recovers the encoded page range from a batch or sidecar filename.
func ParsePageRange(p string) (start, end int, err error) {
	m := pageRangeSuffix.FindStringSubmatch(filepath.Base(stem(p)))
	if m == nil {
		return 0, 0, fmt.Errorf("%s: no page range in name: %w", p, core.ErrMalformedSidecar)
	}
	start, _ = strconv.Atoi(m[1])
	end, _ = strconv.Atoi(m[2])
	if end < start {
		return 0, 0, fmt.Errorf("%s: page range %d-%d is inverted: %w", p, start, end, core.ErrMalformedSidecar)
	}
	return start, end, nil
}

func WriteBatchRecord(path string, rec BatchRecord) error {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// LoadBatchRecord returns (nil, nil) when no record exists.
func LoadBatchRecord(path string) (*BatchRecord, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec BatchRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, core.ErrMalformedSidecar, err)
	}
	if rec.StartPage < 0 || rec.EndPage < rec.StartPage {
		return nil, fmt.Errorf("%s: invalid page range %d-%d: %w", path, rec.StartPage, rec.EndPage, core.ErrMalformedSidecar)
	}
	return &rec, nil
}

// EnsureBatchRecord writes a record derived from the batch filename when none
// exists yet. Batches whose names carry no range are left alone.
func EnsureBatchRecord(batchPDF, sourceID string, index int) error {
	path := RecordPath(batchPDF)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	start, end, err := ParsePageRange(batchPDF)
	if err != nil {
		return nil
	}
	return WriteBatchRecord(path, BatchRecord{SourceID: sourceID, BatchIndex: index, StartPage: start, EndPage: end})
}
