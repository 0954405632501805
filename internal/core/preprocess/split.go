package preprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/markdave123-py/layoutflow/internal/core"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
)

var disableConfigDir sync.Once

// SplitOptions configures one Split call.
type SplitOptions struct {
	BatchSize int
	Password  string
	SourceID  string
	// BaseName overrides the batch file prefix, which defaults to the source name.
	BaseName string
	// PlainCopy, when set, receives the decrypted document if the source was encrypted.
	PlainCopy string
}

// Splitter partitions a PDF into fixed-size page batches.
type Splitter struct {
	log logger.ILogger
}

func NewSplitter(log logger.ILogger) *Splitter {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Splitter{log: log}
}

// Split writes ceil(N/BatchSize) batch PDFs into outDir, each with its batch record.
func (s *Splitter) Split(ctx context.Context, src, outDir string, opts SplitOptions) ([]Batch, error) {
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("split %s: %w", src, core.ErrInvalidBatchSize)
	}
	if err := DetectPDF(src); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	raw, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src, err)
	}
	base := opts.BaseName
	if base == "" {
		base = BaseName(src)
	}

	rs, pages, decrypted, err := s.open(raw, opts.Password)
	if errors.Is(err, core.ErrEncryptedDocument) {
		return nil, fmt.Errorf("split %s: %w", src, err)
	}
	if err != nil {
		s.log.Warn("Splitter", "pdf reader failed, falling back to verbatim copy", map[string]interface{}{
			"source": src, "error": err.Error(),
		})
		return s.verbatim(raw, outDir, base, opts.SourceID)
	}
	if decrypted && opts.PlainCopy != "" {
		if err := writeAll(rs, opts.PlainCopy); err != nil {
			return nil, fmt.Errorf("write decrypted copy: %w", err)
		}
	}

	conf := model.NewDefaultConfiguration()
	var batches []Batch
	for start, idx := 0, 0; start < pages; start, idx = start+opts.BatchSize, idx+1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+opts.BatchSize, pages) - 1
		b, err := s.writeBatch(rs, conf, outDir, base, idx, start, end, opts.SourceID)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}

	s.log.Info("Splitter", "split complete", map[string]interface{}{
		"source": src, "pages": pages, "batches": len(batches), "batch_size": opts.BatchSize,
	})
	return batches, nil
}

// open returns a plaintext reader over the document, its page count and
// whether it had to be decrypted.
func (s *Splitter) open(raw []byte, password string) (io.ReadSeeker, int, bool, error) {
	rs := bytes.NewReader(raw)
	n, err := api.PageCount(rs, model.NewDefaultConfiguration())
	if err == nil {
		return rs, n, false, nil
	}
	if !isPasswordError(err) {
		return nil, 0, false, err
	}
	if password == "" {
		return nil, 0, false, fmt.Errorf("%w: password required", core.ErrEncryptedDocument)
	}

	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password

	var plain bytes.Buffer
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, 0, false, err
	}
	if err := api.Decrypt(rs, &plain, conf); err != nil {
		return nil, 0, false, fmt.Errorf("%w: %v", core.ErrEncryptedDocument, err)
	}

	dec := bytes.NewReader(plain.Bytes())
	n, err = api.PageCount(dec, model.NewDefaultConfiguration())
	if err != nil {
		return nil, 0, false, fmt.Errorf("read decrypted pdf: %w", err)
	}
	return dec, n, true, nil
}

func writeAll(rs io.ReadSeeker, path string) error {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Splitter) writeBatch(rs io.ReadSeeker, conf *model.Configuration, outDir, base string, idx, start, end int, sourceID string) (Batch, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return Batch{}, err
	}
	path := filepath.Join(outDir, BatchFileName(base, start, end))

	var buf bytes.Buffer
	// pdfcpu selects pages 1-based.
	sel := []string{fmt.Sprintf("%d-%d", start+1, end+1)}
	if err := api.Trim(rs, &buf, sel, conf); err != nil {
		return Batch{}, fmt.Errorf("write pages %d-%d: %w", start, end, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return Batch{}, fmt.Errorf("write %s: %w", path, err)
	}

	b := Batch{Index: idx, StartPage: start, EndPage: end, Path: path, RecordPath: RecordPath(path)}
	rec := BatchRecord{SourceID: sourceID, BatchIndex: idx, StartPage: start, EndPage: end}
	if err := WriteBatchRecord(b.RecordPath, rec); err != nil {
		return Batch{}, fmt.Errorf("write batch record: %w", err)
	}
	return b, nil
}

func (s *Splitter) verbatim(raw []byte, outDir, base, sourceID string) ([]Batch, error) {
	path := filepath.Join(outDir, BatchFileName(base, 0, 0))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	b := Batch{Index: 0, Path: path, RecordPath: RecordPath(path), Verbatim: true}
	if err := WriteBatchRecord(b.RecordPath, BatchRecord{SourceID: sourceID, Verbatim: true}); err != nil {
		return nil, fmt.Errorf("write batch record: %w", err)
	}
	return []Batch{b}, nil
}

// DetectPDF sniffs the file content rather than trusting the extension.
func DetectPDF(path string) error {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("detect %s: %w", path, err)
	}
	if !mt.Is("application/pdf") {
		return fmt.Errorf("%s is %s: %w", path, mt.String(), core.ErrUnsupportedFormat)
	}
	return nil
}

// BaseName is the file name without directory or extension.
func BaseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func isPasswordError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}
