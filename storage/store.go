//go:generate mockgen -destination=./store_mock.go -package=storage -source=store.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("key not found")

// Store is a string key-value store. It is not transactional.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Close() error
}

const (
	TypeMemory   = "memory"
	TypeFile     = "file"
	TypeRedis    = "redis"
	TypePostgres = "postgres"
)

// Config selects and configures the store.
type Config struct {
	Type     string         `koanf:"type"`
	Dir      string         `koanf:"dir"`
	Redis    RedisConfig    `koanf:"redis"`
	Postgres PostgresConfig `koanf:"postgres"`
}

func DefaultConfig() Config {
	return Config{
		Type: TypeFile,
		Dir:  "data",
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "bptl:",
		},
		Postgres: PostgresConfig{
			Table: "bptl_kv",
		},
	}
}

func (c Config) Validate() error {
	switch c.Type {
	case TypeMemory:
		return nil
	case TypeFile:
		if c.Dir == "" {
			return errors.New("storage.dir is required for file storage")
		}
	case TypeRedis:
		if c.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required for redis storage")
		}
	case TypePostgres:
		if c.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required for postgres storage")
		}
		if !validTableName.MatchString(c.Postgres.Table) {
			return fmt.Errorf("invalid storage.postgres.table: %q", c.Postgres.Table)
		}
	default:
		return fmt.Errorf("unsupported storage.type: %q", c.Type)
	}
	return nil
}

// New opens the configured store.
func New(ctx context.Context, config Config) (Store, error) {
	switch config.Type {
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeFile:
		return NewFileStore(config.Dir)
	case TypeRedis:
		return NewRedisStore(ctx, config.Redis)
	case TypePostgres:
		return NewPostgresStore(ctx, config.Postgres)
	}
	return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
}

var _ Store = &MemoryStore{}

// MemoryStore keeps values in process memory, e.g. for tests or kiosk deployments.
type MemoryStore struct {
	mux    sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value string) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// Ping checks that the store can be read.
func Ping(ctx context.Context, store Store) error {
	if _, err := store.Get(ctx, "healthcheck"); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
