package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/markdave123-py/layoutflow/internal/core"
	objectclient "github.com/markdave123-py/layoutflow/internal/core/object-client"
	"github.com/markdave123-py/layoutflow/internal/models"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
)

const sniffLen = 3072

// DocumentWithChunks is a batch document together with its ordered chunks.
type DocumentWithChunks struct {
	models.Document
	Chunks []models.Chunk `json:"chunks"`
}

type DocumentService struct {
	db      core.DbClient
	storage core.ObjectClient
	bucket  string
	log     logger.ILogger
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, bucket string, log logger.ILogger) *DocumentService {
	return &DocumentService{db: db, storage: storage, bucket: bucket, log: log}
}

// RegisterUpload stores an uploaded PDF and records it as a File. Only PDFs are
// accepted; the extension and the content are both checked.
func (s *DocumentService) RegisterUpload(ctx context.Context, filename, contentType string, data io.Reader) (*models.SourceFile, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, fmt.Errorf("%s: %w", filename, core.ErrUnsupportedFormat)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(data, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if mt := mimetype.Detect(head); !mt.Is("application/pdf") {
		return nil, fmt.Errorf("%s is %s: %w", filename, mt.String(), core.ErrUnsupportedFormat)
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "application/pdf"
	}

	key := objectclient.ObjectKey(filename)
	loc, err := s.storage.UploadFile(ctx, s.bucket, key, io.MultiReader(bytes.NewReader(head), data), contentType)
	if err != nil {
		return nil, err
	}

	f, err := s.db.CreateFile(ctx, models.SourceFile{OriginalName: filename, MimeType: contentType, StoragePath: loc})
	if err != nil {
		if derr := s.storage.DeleteFile(ctx, s.bucket, key); derr != nil {
			s.log.Warn("DocumentService", "orphaned upload", map[string]interface{}{"key": key, "error": derr.Error()})
		}
		return nil, err
	}
	s.log.Info("DocumentService", "file registered", map[string]interface{}{"file_id": f.ID, "name": filename, "location": loc})
	return f, nil
}

// CreateFile records a file that already lives at storagePath.
func (s *DocumentService) CreateFile(ctx context.Context, f models.SourceFile) (*models.SourceFile, error) {
	return s.db.CreateFile(ctx, f)
}

// RegisterPath returns the File already recorded for a local path, creating it
// on first use so repeated runs over the same path share one work directory.
func (s *DocumentService) RegisterPath(ctx context.Context, path string) (*models.SourceFile, error) {
	for offset := 0; ; offset += 1000 {
		files, err := s.db.ListFiles(ctx, offset, 1000)
		if err != nil {
			return nil, err
		}
		for i := range files {
			if files[i].StoragePath == path {
				return &files[i], nil
			}
		}
		if len(files) < 1000 {
			break
		}
	}
	return s.db.CreateFile(ctx, models.SourceFile{OriginalName: filepath.Base(path), MimeType: "application/pdf", StoragePath: path})
}

func (s *DocumentService) GetFile(ctx context.Context, id int64) (*models.SourceFile, error) {
	f, err := s.db.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("file %d: %w", id, core.ErrNotFound)
	}
	return f, nil
}

func (s *DocumentService) ListFiles(ctx context.Context, offset, limit int) ([]models.SourceFile, error) {
	return s.db.ListFiles(ctx, offset, clampLimit(limit))
}

// DeleteFile removes the File row (cascading to its documents) and then its stored object.
func (s *DocumentService) DeleteFile(ctx context.Context, id int64) error {
	f, err := s.GetFile(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteFile(ctx, id); err != nil {
		return err
	}
	if bucket, key, ok := s.objectLocation(f.StoragePath); ok {
		if err := s.storage.DeleteFile(ctx, bucket, key); err != nil {
			s.log.Warn("DocumentService", "stored object not removed", map[string]interface{}{"file_id": id, "error": err.Error()})
		}
	}
	return nil
}

func (s *DocumentService) DocumentsForFile(ctx context.Context, fileID int64) ([]models.Document, error) {
	if _, err := s.GetFile(ctx, fileID); err != nil {
		return nil, err
	}
	return s.db.ListDocumentsByFile(ctx, fileID)
}

func (s *DocumentService) CreateDocument(ctx context.Context, doc models.Document) (*models.Document, error) {
	if doc.Meta == nil {
		doc.Meta = models.Meta{}
	}
	return s.db.CreateDocument(ctx, doc)
}

func (s *DocumentService) ListDocuments(ctx context.Context, offset, limit int) ([]models.Document, error) {
	return s.db.ListDocuments(ctx, offset, clampLimit(limit))
}

func (s *DocumentService) GetDocument(ctx context.Context, id int64) (*DocumentWithChunks, error) {
	doc, err := s.db.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %d: %w", id, core.ErrNotFound)
	}
	chunks, err := s.db.ListChunksByDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DocumentWithChunks{Document: *doc, Chunks: chunks}, nil
}

func (s *DocumentService) DeleteDocument(ctx context.Context, id int64) error {
	return s.db.DeleteDocument(ctx, id)
}

func (s *DocumentService) ListChunks(ctx context.Context, documentID int64) ([]models.Chunk, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return doc.Chunks, nil
}

// AddChunk appends a chunk; a zero order places it after the last existing chunk.
func (s *DocumentService) AddChunk(ctx context.Context, ch models.Chunk) (*models.Chunk, error) {
	existing, err := s.ListChunks(ctx, ch.DocumentID)
	if err != nil {
		return nil, err
	}
	if ch.Order <= 0 {
		ch.Order = 1
		if n := len(existing); n > 0 {
			ch.Order = existing[n-1].Order + 1
		}
	}
	if ch.Meta == nil {
		ch.Meta = models.Meta{}
	}
	return s.db.CreateChunk(ctx, ch)
}

// objectLocation maps a stored location back to bucket and key.
func (s *DocumentService) objectLocation(loc string) (string, string, bool) {
	if bucket, key, ok := objectclient.ParseLocation(loc); ok {
		return bucket, key, true
	}
	slashed := filepath.ToSlash(loc)
	marker := "/" + s.bucket + "/"
	if i := strings.Index(slashed, marker); i >= 0 {
		return s.bucket, slashed[i+len(marker):], true
	}
	return "", "", false
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
