package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresConfig struct {
	DSN   string `koanf:"dsn"`
	Table string `koanf:"table"`
}

var validTableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var _ Store = &PostgresStore{}

// PostgresStore stores values in a two-column table, created on startup if it doesn't exist.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

func NewPostgresStore(ctx context.Context, config PostgresConfig) (*PostgresStore, error) {
	if !validTableName.MatchString(config.Table) {
		return nil, fmt.Errorf("invalid table name: %q", config.Table)
	}
	pool, err := pgxpool.New(ctx, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	store := &PostgresStore{pool: pool, table: config.Table}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (p *PostgresStore) migrate(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + p.table + ` (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", p.table, err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM `+p.table+` WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	} else if err != nil {
		return "", fmt.Errorf("postgres get %s: %w", key, err)
	}
	return value, nil
}

func (p *PostgresStore) Set(ctx context.Context, key string, value string) error {
	query := `INSERT INTO ` + p.table + ` (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := p.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("postgres set %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
