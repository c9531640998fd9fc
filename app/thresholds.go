package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/SanteonNL/bptrafficlight/lib/coolfhir"
	"github.com/SanteonNL/bptrafficlight/threshold"
)

// SaveThresholds replaces the threshold set. It fails with threshold.ErrLocked while locked.
func (s *Service) SaveThresholds(ctx context.Context, set threshold.Set) (*threshold.Set, error) {
	if err := set.Validate(); err != nil {
		return nil, coolfhir.BadRequestError(err)
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if err := s.state.Lock.CheckWritable(); err != nil {
		return nil, err
	}
	if err := s.repository.SaveThresholds(ctx, set); err != nil {
		return nil, err
	}
	s.state.Thresholds = set
	s.refreshChart(ctx)
	slog.InfoContext(ctx, "Thresholds saved")
	return &set, nil
}

// ResetThresholds restores the default threshold set. It fails with threshold.ErrLocked while locked.
func (s *Service) ResetThresholds(ctx context.Context) (*threshold.Set, error) {
	return s.SaveThresholds(ctx, threshold.DefaultSet())
}

// LockThresholds protects the thresholds with a password.
func (s *Service) LockThresholds(ctx context.Context, password string) error {
	if password == "" {
		return coolfhir.BadRequest("password is required")
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.state.Lock.Locked {
		return threshold.ErrLocked
	}
	lock, err := threshold.NewLock(password)
	if err != nil {
		return err
	}
	if err := s.repository.SaveLock(ctx, lock); err != nil {
		return err
	}
	s.state.Lock = lock
	slog.InfoContext(ctx, "Thresholds locked")
	return nil
}

// UnlockThresholds removes the lock if the password matches.
func (s *Service) UnlockThresholds(ctx context.Context, password string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	lock, err := s.state.Lock.Unlock(password)
	if errors.Is(err, threshold.ErrInvalidPassword) {
		slog.WarnContext(ctx, "Failed attempt to unlock thresholds")
		return err
	} else if err != nil {
		return err
	}
	if err := s.repository.SaveLock(ctx, lock); err != nil {
		return err
	}
	s.state.Lock = lock
	slog.InfoContext(ctx, "Thresholds unlocked")
	return nil
}
