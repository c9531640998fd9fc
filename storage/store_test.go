package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/SanteonNL/bptrafficlight/lib/test"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Get(ctx, KeyReadings)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, KeyReadings, `[]`))
	require.NoError(t, store.Set(ctx, KeyReadings, `[{"systolic":120}]`))
	value, err := store.Get(ctx, KeyReadings)
	require.NoError(t, err)
	assert.Equal(t, `[{"systolic":120}]`, value)

	require.NoError(t, store.Set(ctx, KeyThresholds, `{}`))
	value, err = store.Get(ctx, KeyReadings)
	require.NoError(t, err)
	assert.Equal(t, `[{"systolic":120}]`, value, "keys are independent")
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	testStore(t, store)

	t.Run("persists across instances", func(t *testing.T) {
		other, err := NewFileStore(dir)
		require.NoError(t, err)
		value, err := other.Get(context.Background(), KeyReadings)
		require.NoError(t, err)
		assert.Equal(t, `[{"systolic":120}]`, value)
	})
	t.Run("no temp files left behind", func(t *testing.T) {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
	t.Run("invalid key", func(t *testing.T) {
		err := store.Set(context.Background(), "../escape", "x")
		assert.ErrorContains(t, err, "invalid storage key")
	})
}

func TestRedisStore(t *testing.T) {
	server := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), RedisConfig{Addr: server.Addr(), Prefix: "test:"})
	require.NoError(t, err)
	defer store.Close()

	testStore(t, store)

	t.Run("keys are prefixed", func(t *testing.T) {
		value, err := server.Get("test:" + KeyReadings)
		require.NoError(t, err)
		assert.Equal(t, `[{"systolic":120}]`, value)
	})
	t.Run("connection error", func(t *testing.T) {
		server.SetError("LOADING")
		defer server.SetError("")
		_, err := store.Get(context.Background(), KeyReadings)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestRedisStore_Unreachable(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{Addr: "127.0.0.1:1"})

	assert.ErrorContains(t, err, "connect to redis")
}

func TestPostgresStore(t *testing.T) {
	dsn := test.SetupPostgres(t)
	store, err := NewPostgresStore(context.Background(), PostgresConfig{DSN: dsn, Table: "bptl_kv"})
	require.NoError(t, err)
	defer store.Close()

	testStore(t, store)

	t.Run("migration is idempotent", func(t *testing.T) {
		other, err := NewPostgresStore(context.Background(), PostgresConfig{DSN: dsn, Table: "bptl_kv"})
		require.NoError(t, err)
		defer other.Close()
		value, err := other.Get(context.Background(), KeyReadings)
		require.NoError(t, err)
		assert.Equal(t, `[{"systolic":120}]`, value)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "default", config: DefaultConfig()},
		{name: "memory", config: Config{Type: TypeMemory}},
		{name: "file without dir", config: Config{Type: TypeFile}, wantErr: "storage.dir"},
		{name: "redis without addr", config: Config{Type: TypeRedis}, wantErr: "storage.redis.addr"},
		{name: "postgres without dsn", config: Config{Type: TypePostgres, Postgres: PostgresConfig{Table: "kv"}}, wantErr: "storage.postgres.dsn"},
		{name: "postgres with bad table", config: Config{Type: TypePostgres, Postgres: PostgresConfig{DSN: "postgres://", Table: "kv; DROP TABLE x"}}, wantErr: "storage.postgres.table"},
		{name: "unknown", config: Config{Type: "s3"}, wantErr: "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestNew(t *testing.T) {
	store, err := New(context.Background(), Config{Type: TypeMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = New(context.Background(), Config{Type: TypeFile, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	_, err = New(context.Background(), Config{Type: "s3"})
	assert.Error(t, err)
}
