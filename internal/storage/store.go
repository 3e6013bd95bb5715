package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"hitmeter/internal/config"
	"hitmeter/internal/model"
)

// Store is a write-behind journal of accepted hits and snapshots. Nothing is
// ever read back into the window; it exists for offline inspection only.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveHit(ctx context.Context, hit model.Hit) error
	SaveSnapshots(ctx context.Context, snapshots []model.GroupSnapshot) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
