// Package postgres provides a Postgres-backed snapshot store.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/libertymp-tools/invcrawler/internal/scraper"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for player rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// SnapshotStore persists player records as JSONB rows. The inverted
// index is not stored; the cache always rebuilds it on load.
//
// Expected schema:
//
//	CREATE TABLE players (
//	    name   TEXT PRIMARY KEY,
//	    record JSONB NOT NULL,
//	    saved_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type SnapshotStore struct {
	pool  pgxPool
	table string
}

// New creates a Postgres-backed SnapshotStore using the provided config.
func New(ctx context.Context, cfg Config) (*SnapshotStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "players"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &SnapshotStore{pool: pool, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool, table string) (*SnapshotStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "players"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SnapshotStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *SnapshotStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveSnapshot replaces the whole players table with the given snapshot
// in one transaction. The index argument is ignored by this store.
func (s *SnapshotStore) SaveSnapshot(
	ctx context.Context,
	players map[string]scraper.PlayerRecord,
	_ map[string]map[string]int,
) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("snapshot store is not configured")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return fmt.Errorf("clear players table: %w", err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (name, record, saved_at) VALUES ($1, $2, $3)", s.table)
	now := time.Now().UTC()
	for name, record := range players {
		recordJSON, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record for %q: %w", name, err)
		}
		if _, err := tx.Exec(ctx, insert, name, recordJSON, now); err != nil {
			return fmt.Errorf("insert player %q: %w", name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

// LoadPlayers reads every player row. An empty table yields an empty map.
func (s *SnapshotStore) LoadPlayers(ctx context.Context) (map[string]scraper.PlayerRecord, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("snapshot store is not configured")
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT name, record FROM %s", s.table))
	if err != nil {
		return nil, fmt.Errorf("select players: %w", err)
	}
	defer rows.Close()

	players := make(map[string]scraper.PlayerRecord)
	for rows.Next() {
		var (
			name       string
			recordJSON []byte
		)
		if err := rows.Scan(&name, &recordJSON); err != nil {
			return nil, fmt.Errorf("scan player row: %w", err)
		}
		var record scraper.PlayerRecord
		if err := json.Unmarshal(recordJSON, &record); err != nil {
			return nil, fmt.Errorf("decode record for %q: %w", name, err)
		}
		players[name] = record
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate player rows: %w", err)
	}
	return players, nil
}
