package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SanteonNL/bptrafficlight/reading"
	"github.com/SanteonNL/bptrafficlight/threshold"
)

const (
	KeyReadings      = "bp_readings"
	KeyThresholds    = "bp_thresholds"
	KeyThresholdLock = "bp_threshold_lock"
)

// Repository reads and writes the application's persisted state as JSON documents in a Store.
type Repository struct {
	store Store
}

func NewRepository(store Store) *Repository {
	return &Repository{store: store}
}

// LoadReadings returns the stored readings, or an empty collection if none were stored.
func (r *Repository) LoadReadings(ctx context.Context) (reading.Collection, error) {
	result := reading.Collection{}
	if _, err := load(ctx, r.store, KeyReadings, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Repository) SaveReadings(ctx context.Context, readings reading.Collection) error {
	if readings == nil {
		readings = reading.Collection{}
	}
	return save(ctx, r.store, KeyReadings, readings)
}

// LoadThresholds returns the stored threshold set, or the defaults if none was stored.
func (r *Repository) LoadThresholds(ctx context.Context) (threshold.Set, error) {
	var result threshold.Set
	found, err := load(ctx, r.store, KeyThresholds, &result)
	if err != nil {
		return threshold.Set{}, err
	}
	if !found {
		return threshold.DefaultSet(), nil
	}
	return result, nil
}

func (r *Repository) SaveThresholds(ctx context.Context, set threshold.Set) error {
	return save(ctx, r.store, KeyThresholds, set)
}

// LoadLock returns the stored threshold lock. An absent lock is unlocked.
func (r *Repository) LoadLock(ctx context.Context) (threshold.Lock, error) {
	var result threshold.Lock
	if _, err := load(ctx, r.store, KeyThresholdLock, &result); err != nil {
		return threshold.Lock{}, err
	}
	return result, nil
}

func (r *Repository) SaveLock(ctx context.Context, lock threshold.Lock) error {
	return save(ctx, r.store, KeyThresholdLock, lock)
}

func load(ctx context.Context, store Store, key string, target any) (bool, error) {
	value, err := store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(value), target); err != nil {
		return false, fmt.Errorf("load %s: invalid JSON: %w", key, err)
	}
	return true, nil
}

func save(ctx context.Context, store Store, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	if err := store.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
