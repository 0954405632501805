package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/layoutflow/internal/config"
	"github.com/markdave123-py/layoutflow/internal/core"
	"github.com/markdave123-py/layoutflow/internal/models"
)

var _ core.DbClient = (*DatabaseClient)(nil)

// DatabaseClient is the Postgres + pgvector store.
type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// mapPgError turns constraint failures into store errors.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s", core.ErrUniqueViolation, pgErr.ConstraintName)
	case "23503":
		return fmt.Errorf("%w: %s", core.ErrNotFound, pgErr.ConstraintName)
	}
	return err
}

// Files

func (c *DatabaseClient) CreateFile(ctx context.Context, f models.SourceFile) (*models.SourceFile, error) {
	const q = `
		INSERT INTO file (original_name, mime_type, storage_path)
		VALUES ($1, NULLIF($2, ''), $3)
		RETURNING id, uploaded_at
	`
	if err := c.db.QueryRowContext(ctx, q, f.OriginalName, f.MimeType, f.StoragePath).Scan(&f.ID, &f.UploadedAt); err != nil {
		return nil, mapPgError(err)
	}
	return &f, nil
}

func (c *DatabaseClient) GetFile(ctx context.Context, id int64) (*models.SourceFile, error) {
	const q = `
		SELECT id, original_name, COALESCE(mime_type, ''), storage_path, uploaded_at
		FROM file WHERE id = $1
	`
	var f models.SourceFile
	err := c.db.QueryRowContext(ctx, q, id).Scan(&f.ID, &f.OriginalName, &f.MimeType, &f.StoragePath, &f.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *DatabaseClient) ListFiles(ctx context.Context, offset, limit int) ([]models.SourceFile, error) {
	const q = `
		SELECT id, original_name, COALESCE(mime_type, ''), storage_path, uploaded_at
		FROM file
		ORDER BY id
		OFFSET $1 LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SourceFile
	for rows.Next() {
		var f models.SourceFile
		if err := rows.Scan(&f.ID, &f.OriginalName, &f.MimeType, &f.StoragePath, &f.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteFile(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM file WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("file %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// Documents

const documentColumns = `id, file_id, COALESCE(title, ''), doc_meta, created_at`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var (
		d      models.Document
		fileID sql.NullInt64
	)
	if err := row.Scan(&d.ID, &fileID, &d.Title, &d.Meta, &d.CreatedAt); err != nil {
		return nil, err
	}
	if fileID.Valid {
		d.FileID = &fileID.Int64
	}
	return &d, nil
}

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc models.Document) (*models.Document, error) {
	const q = `
		INSERT INTO document (file_id, title, doc_meta)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	if doc.Meta == nil {
		doc.Meta = models.Meta{}
	}
	if err := c.db.QueryRowContext(ctx, q, doc.FileID, doc.Title, doc.Meta).Scan(&doc.ID, &doc.CreatedAt); err != nil {
		return nil, mapPgError(err)
	}
	return &doc, nil
}

func (c *DatabaseClient) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	d, err := scanDocument(c.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM document WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (c *DatabaseClient) FindDocument(ctx context.Context, fileID *int64, title string) (*models.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM document
		WHERE file_id IS NOT DISTINCT FROM $1 AND title = $2
		ORDER BY id LIMIT 1`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, fileID, title))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (c *DatabaseClient) ListDocuments(ctx context.Context, offset, limit int) ([]models.Document, error) {
	return c.queryDocuments(ctx, `SELECT `+documentColumns+` FROM document ORDER BY id OFFSET $1 LIMIT $2`, offset, limit)
}

func (c *DatabaseClient) ListDocumentsByFile(ctx context.Context, fileID int64) ([]models.Document, error) {
	return c.queryDocuments(ctx, `SELECT `+documentColumns+` FROM document WHERE file_id = $1 ORDER BY id`, fileID)
}

func (c *DatabaseClient) queryDocuments(ctx context.Context, q string, args ...any) ([]models.Document, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM document WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// Chunks

func (c *DatabaseClient) CreateChunk(ctx context.Context, ch models.Chunk) (*models.Chunk, error) {
	const q = `
		INSERT INTO chunk (document_id, content, chunk_order, chunk_meta)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if ch.Meta == nil {
		ch.Meta = models.Meta{}
	}
	if err := c.db.QueryRowContext(ctx, q, ch.DocumentID, ch.Content, ch.Order, ch.Meta).Scan(&ch.ID); err != nil {
		return nil, mapPgError(err)
	}
	ch.Embedded = false
	return &ch, nil
}

func (c *DatabaseClient) DeleteChunksByDocument(ctx context.Context, documentID int64) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM chunk WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *DatabaseClient) ListChunksByDocument(ctx context.Context, documentID int64) ([]models.Chunk, error) {
	const q = `
		SELECT c.id, c.document_id, c.content, c.chunk_order, c.chunk_meta, e.chunk_id IS NOT NULL
		FROM chunk c
		LEFT JOIN embedding e ON e.chunk_id = c.id
		WHERE c.document_id = $1
		ORDER BY c.chunk_order ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var ch models.Chunk
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Content, &ch.Order, &ch.Meta, &ch.Embedded); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Embeddings

func (c *DatabaseClient) CreateEmbedding(ctx context.Context, emb models.Embedding) (*models.Embedding, error) {
	if err := validateEmbedding(emb); err != nil {
		return nil, err
	}
	const q = `INSERT INTO embedding (chunk_id, vector, model, dim) VALUES ($1, $2, $3, $4)`
	if _, err := c.db.ExecContext(ctx, q, emb.ChunkID, pgvector.NewVector(emb.Vector), emb.Model, emb.Dim); err != nil {
		return nil, mapPgError(err)
	}
	return &emb, nil
}

func (c *DatabaseClient) GetEmbedding(ctx context.Context, chunkID int64) (*models.Embedding, error) {
	var (
		e   models.Embedding
		vec pgvector.Vector
	)
	err := c.db.QueryRowContext(ctx, `SELECT chunk_id, vector, model, dim FROM embedding WHERE chunk_id = $1`, chunkID).
		Scan(&e.ChunkID, &vec, &e.Model, &e.Dim)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Vector = vec.Slice()
	return &e, nil
}

// SearchChunks returns the nearest chunks by L2 distance among embeddings of the
// same dimension as queryVec.
func (c *DatabaseClient) SearchChunks(ctx context.Context, queryVec []float32, limit int) ([]models.ScoredChunk, error) {
	const q = `
		SELECT c.id, c.document_id, c.content, c.chunk_order, c.chunk_meta, e.vector <-> $1 AS distance
		FROM embedding e
		JOIN chunk c ON c.id = e.chunk_id
		WHERE e.dim = $2
		ORDER BY distance
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, pgvector.NewVector(queryVec), len(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var sc models.ScoredChunk
		if err := rows.Scan(&sc.ID, &sc.DocumentID, &sc.Content, &sc.Order, &sc.Meta, &sc.Distance); err != nil {
			return nil, err
		}
		sc.Embedded = true
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Chat history

func (c *DatabaseClient) CreateChatHistory(ctx context.Context, h models.ChatHistory) (*models.ChatHistory, error) {
	const q = `INSERT INTO chat_history (user_input, llm_output) VALUES ($1, $2) RETURNING id, created_at`
	if err := c.db.QueryRowContext(ctx, q, h.UserInput, h.LLMOutput).Scan(&h.ID, &h.CreatedAt); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *DatabaseClient) ListChatHistory(ctx context.Context, offset, limit int) ([]models.ChatHistory, error) {
	const q = `
		SELECT id, user_input, llm_output, created_at
		FROM chat_history
		ORDER BY created_at DESC, id DESC
		OFFSET $1 LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChatHistory
	for rows.Next() {
		var (
			h         models.ChatHistory
			llmOutput sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.UserInput, &llmOutput, &h.CreatedAt); err != nil {
			return nil, err
		}
		if llmOutput.Valid {
			h.LLMOutput = &llmOutput.String
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
