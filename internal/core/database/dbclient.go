package db

import (
	"context"
	"fmt"

	"github.com/markdave123-py/layoutflow/internal/config"
	"github.com/markdave123-py/layoutflow/internal/core"
	"github.com/markdave123-py/layoutflow/internal/models"
)

// DbClient is the persistence contract shared by the Postgres and SQLite stores.
type DbClient = core.DbClient

// Open returns the store selected by cfg.DBDriver.
func Open(ctx context.Context, cfg *config.Config) (DbClient, error) {
	switch cfg.DBDriver {
	case "postgres":
		return NewDatabaseClient(ctx, cfg)
	case "sqlite":
		return NewSQLiteClient(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

func validateEmbedding(emb models.Embedding) error {
	if emb.Dim != len(emb.Vector) {
		return fmt.Errorf("chunk %d: dim %d, vector length %d: %w", emb.ChunkID, emb.Dim, len(emb.Vector), core.ErrDimensionMismatch)
	}
	if emb.Dim == 0 {
		return fmt.Errorf("chunk %d: empty vector: %w", emb.ChunkID, core.ErrDimensionMismatch)
	}
	return nil
}
