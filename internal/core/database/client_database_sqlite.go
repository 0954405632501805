package db

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/markdave123-py/layoutflow/internal/core"
	"github.com/markdave123-py/layoutflow/internal/models"
)

var _ core.DbClient = (*SQLiteClient)(nil)

// SQLiteClient is the embedded store used for local runs and tests.
type SQLiteClient struct {
	db   *sql.DB
	path string
}

func NewSQLiteClient(ctx context.Context, path string) (*SQLiteClient, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema, err := bootstrapFS.ReadFile("scripts/initdb_sqlite.sql")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read sqlite schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	return &SQLiteClient{db: db, path: path}, nil
}

func (c *SQLiteClient) Close() error {
	return c.db.Close()
}

// Path returns the database file path.
func (c *SQLiteClient) Path() string {
	return c.path
}

func mapSQLiteError(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %s", core.ErrUniqueViolation, se.Error())
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%w: %s", core.ErrNotFound, se.Error())
	}
	// Primary result code only.
	if se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		msg := se.Error()
		switch {
		case strings.Contains(msg, "UNIQUE"):
			return fmt.Errorf("%w: %s", core.ErrUniqueViolation, msg)
		case strings.Contains(msg, "FOREIGN KEY"):
			return fmt.Errorf("%w: %s", core.ErrNotFound, msg)
		}
	}
	return err
}

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// Files

func (c *SQLiteClient) CreateFile(ctx context.Context, f models.SourceFile) (*models.SourceFile, error) {
	ts := now()
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO file (original_name, mime_type, storage_path, uploaded_at) VALUES (?, NULLIF(?, ''), ?, ?)`,
		f.OriginalName, f.MimeType, f.StoragePath, ts)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	if f.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	f.UploadedAt = parseTime(ts)
	return &f, nil
}

func scanFile(row interface{ Scan(...any) error }) (*models.SourceFile, error) {
	var (
		f  models.SourceFile
		ts string
	)
	if err := row.Scan(&f.ID, &f.OriginalName, &f.MimeType, &f.StoragePath, &ts); err != nil {
		return nil, err
	}
	f.UploadedAt = parseTime(ts)
	return &f, nil
}

const fileColumns = `id, original_name, COALESCE(mime_type, ''), storage_path, uploaded_at`

func (c *SQLiteClient) GetFile(ctx context.Context, id int64) (*models.SourceFile, error) {
	f, err := scanFile(c.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM file WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

func (c *SQLiteClient) ListFiles(ctx context.Context, offset, limit int) ([]models.SourceFile, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM file ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SourceFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (c *SQLiteClient) DeleteFile(ctx context.Context, id int64) error {
	return c.deleteByID(ctx, "file", id)
}

func (c *SQLiteClient) deleteByID(ctx context.Context, table string, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %d: %w", table, id, core.ErrNotFound)
	}
	return nil
}

// Documents

func scanSQLiteDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var (
		d      models.Document
		fileID sql.NullInt64
		ts     string
	)
	if err := row.Scan(&d.ID, &fileID, &d.Title, &d.Meta, &ts); err != nil {
		return nil, err
	}
	if fileID.Valid {
		d.FileID = &fileID.Int64
	}
	d.CreatedAt = parseTime(ts)
	return &d, nil
}

func (c *SQLiteClient) CreateDocument(ctx context.Context, doc models.Document) (*models.Document, error) {
	if doc.Meta == nil {
		doc.Meta = models.Meta{}
	}
	ts := now()
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO document (file_id, title, doc_meta, created_at) VALUES (?, ?, ?, ?)`,
		doc.FileID, doc.Title, doc.Meta, ts)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	if doc.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	doc.CreatedAt = parseTime(ts)
	return &doc, nil
}

func (c *SQLiteClient) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	d, err := scanSQLiteDocument(c.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM document WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (c *SQLiteClient) FindDocument(ctx context.Context, fileID *int64, title string) (*models.Document, error) {
	d, err := scanSQLiteDocument(c.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM document WHERE file_id IS ? AND title = ? ORDER BY id LIMIT 1`, fileID, title))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (c *SQLiteClient) ListDocuments(ctx context.Context, offset, limit int) ([]models.Document, error) {
	return c.queryDocuments(ctx, `SELECT `+documentColumns+` FROM document ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
}

func (c *SQLiteClient) ListDocumentsByFile(ctx context.Context, fileID int64) ([]models.Document, error) {
	return c.queryDocuments(ctx, `SELECT `+documentColumns+` FROM document WHERE file_id = ? ORDER BY id`, fileID)
}

func (c *SQLiteClient) queryDocuments(ctx context.Context, q string, args ...any) ([]models.Document, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanSQLiteDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (c *SQLiteClient) DeleteDocument(ctx context.Context, id int64) error {
	return c.deleteByID(ctx, "document", id)
}

// Chunks

func (c *SQLiteClient) CreateChunk(ctx context.Context, ch models.Chunk) (*models.Chunk, error) {
	if ch.Meta == nil {
		ch.Meta = models.Meta{}
	}
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO chunk (document_id, content, chunk_order, chunk_meta) VALUES (?, ?, ?, ?)`,
		ch.DocumentID, ch.Content, ch.Order, ch.Meta)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	if ch.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	ch.Embedded = false
	return &ch, nil
}

// DeleteChunksByDocument removes every chunk of a document along with its embeddings.
func (c *SQLiteClient) DeleteChunksByDocument(ctx context.Context, documentID int64) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM chunk WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *SQLiteClient) ListChunksByDocument(ctx context.Context, documentID int64) ([]models.Chunk, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.content, c.chunk_order, c.chunk_meta, e.chunk_id IS NOT NULL
		FROM chunk c
		LEFT JOIN embedding e ON e.chunk_id = c.id
		WHERE c.document_id = ?
		ORDER BY c.chunk_order ASC`, documentID)
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

func (c *SQLiteClient) CreateEmbedding(ctx context.Context, emb models.Embedding) (*models.Embedding, error) {
	if err := validateEmbedding(emb); err != nil {
		return nil, err
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO embedding (chunk_id, vector, model, dim) VALUES (?, ?, ?, ?)`,
		emb.ChunkID, float32SliceToBytes(emb.Vector), emb.Model, emb.Dim)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	return &emb, nil
}

func (c *SQLiteClient) GetEmbedding(ctx context.Context, chunkID int64) (*models.Embedding, error) {
	var (
		e   models.Embedding
		raw []byte
	)
	err := c.db.QueryRowContext(ctx, `SELECT chunk_id, vector, model, dim FROM embedding WHERE chunk_id = ?`, chunkID).
		Scan(&e.ChunkID, &raw, &e.Model, &e.Dim)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Vector = bytesToFloat32Slice(raw)
	return &e, nil
}

// SearchChunks scans embeddings of matching dimension and ranks them by L2 distance.
func (c *SQLiteClient) SearchChunks(ctx context.Context, queryVec []float32, limit int) ([]models.ScoredChunk, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.content, c.chunk_order, c.chunk_meta, e.vector
		FROM embedding e
		JOIN chunk c ON c.id = e.chunk_id
		WHERE e.dim = ?`, len(queryVec))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var (
			sc  models.ScoredChunk
			raw []byte
		)
		if err := rows.Scan(&sc.ID, &sc.DocumentID, &sc.Content, &sc.Order, &sc.Meta, &raw); err != nil {
			return nil, err
		}
		sc.Embedded = true
		sc.Distance = l2(queryVec, bytesToFloat32Slice(raw))
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Chat history

func (c *SQLiteClient) CreateChatHistory(ctx context.Context, h models.ChatHistory) (*models.ChatHistory, error) {
	ts := now()
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO chat_history (user_input, llm_output, created_at) VALUES (?, ?, ?)`,
		h.UserInput, h.LLMOutput, ts)
	if err != nil {
		return nil, err
	}
	if h.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	h.CreatedAt = parseTime(ts)
	return &h, nil
}

func (c *SQLiteClient) ListChatHistory(ctx context.Context, offset, limit int) ([]models.ChatHistory, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_input, llm_output, created_at
		FROM chat_history
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChatHistory
	for rows.Next() {
		var (
			h         models.ChatHistory
			llmOutput sql.NullString
			ts        string
		)
		if err := rows.Scan(&h.ID, &h.UserInput, &llmOutput, &ts); err != nil {
			return nil, err
		}
		if llmOutput.Valid {
			h.LLMOutput = &llmOutput.String
		}
		h.CreatedAt = parseTime(ts)
		out = append(out, h)
	}
	return out, rows.Err()
}

// float32SliceToBytes converts a []float32 to a little-endian byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
