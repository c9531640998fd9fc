package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/SanteonNL/bptrafficlight/reading"
	"github.com/SanteonNL/bptrafficlight/threshold"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults when empty", func(t *testing.T) {
		repository := NewRepository(NewMemoryStore())

		readings, err := repository.LoadReadings(ctx)
		require.NoError(t, err)
		assert.NotNil(t, readings)
		assert.Empty(t, readings)

		set, err := repository.LoadThresholds(ctx)
		require.NoError(t, err)
		assert.Equal(t, threshold.DefaultSet(), set)

		lock, err := repository.LoadLock(ctx)
		require.NoError(t, err)
		assert.False(t, lock.Locked)
	})
	t.Run("round trip", func(t *testing.T) {
		store := NewMemoryStore()
		repository := NewRepository(store)
		readings := reading.Collection{{Systolic: 120, Diastolic: 80, DateTime: "2024-10-16T10:15:00.000Z", Source: reading.SourceLocal}}
		set := threshold.Set{Red: threshold.Cutoff{Systolic: 150, Diastolic: 95}, Yellow: threshold.Cutoff{Systolic: 135, Diastolic: 85}}
		lock := threshold.Lock{Locked: true, Password: "$2a$10$hash"}

		require.NoError(t, repository.SaveReadings(ctx, readings))
		require.NoError(t, repository.SaveThresholds(ctx, set))
		require.NoError(t, repository.SaveLock(ctx, lock))

		raw, _ := store.Get(ctx, KeyReadings)
		assert.JSONEq(t, `[{"systolic":120,"diastolic":80,"dateTime":"2024-10-16T10:15:00.000Z","source":"local"}]`, raw)
		raw, _ = store.Get(ctx, KeyThresholds)
		assert.JSONEq(t, `{"red":{"systolic":150,"diastolic":95},"yellow":{"systolic":135,"diastolic":85}}`, raw)
		raw, _ = store.Get(ctx, KeyThresholdLock)
		assert.JSONEq(t, `{"locked":true,"password":"$2a$10$hash"}`, raw)

		actualReadings, err := repository.LoadReadings(ctx)
		require.NoError(t, err)
		assert.Equal(t, readings, actualReadings)
		actualSet, err := repository.LoadThresholds(ctx)
		require.NoError(t, err)
		assert.Equal(t, set, actualSet)
		actualLock, err := repository.LoadLock(ctx)
		require.NoError(t, err)
		assert.Equal(t, lock, actualLock)
	})
	t.Run("nil readings are stored as an empty array", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, NewRepository(store).SaveReadings(ctx, nil))
		raw, _ := store.Get(ctx, KeyReadings)
		assert.Equal(t, "[]", raw)
	})
	t.Run("corrupt document", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Set(ctx, KeyReadings, "{not json"))

		_, err := NewRepository(store).LoadReadings(ctx)

		assert.ErrorContains(t, err, "load bp_readings: invalid JSON")
	})
	t.Run("store errors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := NewMockStore(ctrl)
		store.EXPECT().Get(gomock.Any(), KeyThresholds).Return("", errors.New("connection reset"))
		store.EXPECT().Set(gomock.Any(), KeyThresholdLock, gomock.Any()).Return(errors.New("read-only replica"))
		repository := NewRepository(store)

		_, err := repository.LoadThresholds(ctx)
		assert.ErrorContains(t, err, "connection reset")
		err = repository.SaveLock(ctx, threshold.Lock{})
		assert.ErrorContains(t, err, "read-only replica")
	})
}

func TestPing(t *testing.T) {
	ctx := context.Background()
	t.Run("absent key is healthy", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, NewMemoryStore()))
	})
	t.Run("store error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := NewMockStore(ctrl)
		store.EXPECT().Get(gomock.Any(), "healthcheck").Return("", errors.New("connection refused"))

		assert.EqualError(t, Ping(ctx, store), "connection refused")
	})
}
