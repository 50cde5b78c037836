package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgSchema holds every document in a single path-keyed table. Paths sort
// lexicographically, which matches the store's ordering contract.
const pgSchema = `
CREATE TABLE IF NOT EXISTS kv_entries (
    path       TEXT PRIMARY KEY,
    value      JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_kv_entries_path ON kv_entries (path text_pattern_ops);
`

// PGStore is a Postgres-backed Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to Postgres and ensures the backing table exists.
func NewPGStore(ctx context.Context, databaseURL string, maxConns, minConns int32) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (p *PGStore) Put(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO kv_entries (path, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		path, raw)
	return err
}

func (p *PGStore) Get(ctx context.Context, path string, dest any) error {
	var raw []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM kv_entries WHERE path = $1`, path).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func (p *PGStore) List(ctx context.Context, prefix string, opts ListOptions) ([]Entry, error) {
	order := "ASC"
	if opts.Descending {
		order = "DESC"
	}
	q := fmt.Sprintf(`SELECT path, value FROM kv_entries WHERE path LIKE $1 || '%%' ORDER BY path %s`, order)
	args := []any{prefix}
	if opts.Limit > 0 {
		q += " LIMIT $2"
		args = append(args, opts.Limit)
	}
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Path, &e.Value); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *PGStore) Delete(ctx context.Context, path string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM kv_entries WHERE path = $1`, path)
	return err
}

func (p *PGStore) Close() error {
	p.pool.Close()
	return nil
}
