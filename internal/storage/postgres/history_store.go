// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wrenlabs/quill/internal/faults"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// HistoryStoreConfig controls the Postgres connection pool used for recovery
// history rows.
type HistoryStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// HistoryStore accumulates recovery outcomes in Postgres so the planner's
// re-ranking survives restarts and aggregates across instances.
type HistoryStore struct {
	pool  pgPool
	table string
}

// NewHistoryStore creates a Postgres-backed HistoryStore using the provided config.
func NewHistoryStore(ctx context.Context, cfg HistoryStoreConfig) (*HistoryStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("recovery.history_dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "recovery_outcomes"
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
	return &HistoryStore{pool: pool, table: table}, nil
}

// NewHistoryStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewHistoryStoreWithPool(pool pgPool, table string) (*HistoryStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "recovery_outcomes"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &HistoryStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *HistoryStore) Close() {
	s.pool.Close()
}

// RecordOutcome inserts one attempt row.
func (s *HistoryStore) RecordOutcome(ctx context.Context, category faults.Category, action faults.Action, success bool) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (category, action, success, recorded_at) VALUES ($1, $2, $3, now())`,
		s.table,
	)
	if _, err := s.pool.Exec(ctx, query, string(category), string(action), success); err != nil {
		return fmt.Errorf("insert recovery outcome: %w", err)
	}
	return nil
}

// SuccessRate aggregates the observed rate and sample count for an action.
func (s *HistoryStore) SuccessRate(ctx context.Context, category faults.Category, action faults.Action) (float64, int, error) {
	query := fmt.Sprintf(
		`SELECT count(*), count(*) FILTER (WHERE success) FROM %s WHERE category = $1 AND action = $2`,
		s.table,
	)
	var total, succeeded int
	row := s.pool.QueryRow(ctx, query, string(category), string(action))
	if err := row.Scan(&total, &succeeded); err != nil {
		return 0, 0, fmt.Errorf("query recovery outcomes: %w", err)
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(succeeded) / float64(total), total, nil
}
