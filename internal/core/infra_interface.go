package core

import (
	"context"
	"io"

	"github.com/markdave123-py/layoutflow/internal/models"
)

// DbClient defines all persistence operations the pipeline and API need.
// Getters return (nil, nil) when the row does not exist.
type DbClient interface {
	CreateFile(ctx context.Context, f models.SourceFile) (*models.SourceFile, error)
	GetFile(ctx context.Context, id int64) (*models.SourceFile, error)
	ListFiles(ctx context.Context, offset, limit int) ([]models.SourceFile, error)
	DeleteFile(ctx context.Context, id int64) error

	CreateDocument(ctx context.Context, doc models.Document) (*models.Document, error)
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	FindDocument(ctx context.Context, fileID *int64, title string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]models.Document, error)
	ListDocumentsByFile(ctx context.Context, fileID int64) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id int64) error

	CreateChunk(ctx context.Context, ch models.Chunk) (*models.Chunk, error)
	ListChunksByDocument(ctx context.Context, documentID int64) ([]models.Chunk, error)
	DeleteChunksByDocument(ctx context.Context, documentID int64) (int64, error)

	CreateEmbedding(ctx context.Context, emb models.Embedding) (*models.Embedding, error)
	GetEmbedding(ctx context.Context, chunkID int64) (*models.Embedding, error)
	SearchChunks(ctx context.Context, queryVec []float32, limit int) ([]models.ScoredChunk, error)

	CreateChatHistory(ctx context.Context, h models.ChatHistory) (*models.ChatHistory, error)
	ListChatHistory(ctx context.Context, offset, limit int) ([]models.ChatHistory, error)

	Close() error
}

// ObjectClient defines interactions with S3 or local object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)

	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
