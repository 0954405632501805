package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Meta is a free-form metadata map stored as JSON.
type Meta map[string]any

// Value implements driver.Valuer.
func (m Meta) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *Meta) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Meta{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("meta: unsupported type %T", src)
	}
	out := Meta{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("meta: %w", err)
		}
	}
	*m = out
	return nil
}

// String returns the value stored under key, or "" if it is missing or not a string.
func (m Meta) String(key string) string {
	s, _ := m[key].(string)
	return s
}

type SourceFile struct {
	ID           int64     `db:"id" json:"id"`
	OriginalName string    `db:"original_name" json:"original_name"`
	MimeType     string    `db:"mime_type" json:"mime_type,omitempty"`
	StoragePath  string    `db:"storage_path" json:"storage_path"`
	UploadedAt   time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// Document is one split batch of a SourceFile. FileID is nil for orphaned batches.
type Document struct {
	ID        int64     `db:"id" json:"id"`
	FileID    *int64    `db:"file_id" json:"file_id,omitempty"`
	Title     string    `db:"title" json:"title"`
	Meta      Meta      `db:"doc_meta" json:"doc_meta"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Chunk struct {
	ID         int64  `db:"id" json:"id"`
	DocumentID int64  `db:"document_id" json:"document_id"`
	Content    string `db:"content" json:"content"`
	Order      int    `db:"chunk_order" json:"chunk_order"`
	Meta       Meta   `db:"chunk_meta" json:"chunk_meta"`

	// Embedded is derived on reads; it is never written.
	Embedded bool `db:"-" json:"embedded"`
}

type Embedding struct {
	ChunkID int64     `db:"chunk_id" json:"chunk_id"`
	Vector  []float32 `db:"vector" json:"vector"`
	Model   string    `db:"model" json:"model"`
	Dim     int       `db:"dim" json:"dim"`
}

type ChatHistory struct {
	ID        int64     `db:"id" json:"id"`
	UserInput string    `db:"user_input" json:"user_input"`
	LLMOutput *string   `db:"llm_output" json:"llm_output,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ScoredChunk is a similarity-search hit.
type ScoredChunk struct {
	Chunk
	Distance float64 `json:"distance"`
}
