package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"hitmeter/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/hitmeter?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS hits (
			id BIGSERIAL PRIMARY KEY,
			received_at TIMESTAMPTZ NOT NULL,
			ts BIGINT NOT NULL,
			group_name TEXT NOT NULL,
			user_name TEXT,
			source TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hits_ts ON hits(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_hits_group ON hits(group_name)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id BIGSERIAL PRIMARY KEY,
			received_at TIMESTAMPTZ NOT NULL,
			as_of BIGINT NOT NULL,
			group_name TEXT NOT NULL,
			count INTEGER NOT NULL,
			window_sec INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_group ON snapshots(group_name, as_of)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SaveHit(ctx context.Context, hit model.Hit) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hits (received_at, ts, group_name, user_name, source)
		VALUES ($1, $2, $3, $4, $5)`,
		nowUTC(),
		hit.Timestamp,
		hit.Group,
		hit.User,
		hit.Source,
	)
	return err
}

func (s *postgresStore) SaveSnapshots(ctx context.Context, snapshots []model.GroupSnapshot) error {
	if s.db == nil || len(snapshots) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshots (received_at, as_of, group_name, count, window_sec)
		VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, snap := range snapshots {
		if _, err := stmt.ExecContext(ctx,
			nowUTC(),
			snap.AsOf,
			snap.Group,
			snap.Count,
			snap.WindowSec,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
