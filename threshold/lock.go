package threshold

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrLocked          = errors.New("thresholds are locked")
	ErrNotLocked       = errors.New("thresholds are not locked")
	ErrInvalidPassword = errors.New("invalid password")
)

// Lock protects the threshold set from being changed. Password holds a bcrypt hash and is only set while locked.
type Lock struct {
	Locked   bool   `json:"locked"`
	Password string `json:"password,omitempty"`
}

// NewLock creates a lock protected by the given password.
func NewLock(password string) (Lock, error) {
	if password == "" {
		return Lock{}, errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Lock{}, fmt.Errorf("hash password: %w", err)
	}
	return Lock{Locked: true, Password: string(hash)}, nil
}

// Unlock returns the cleared lock if password matches.
func (l Lock) Unlock(password string) (Lock, error) {
	if !l.Locked {
		return l, ErrNotLocked
	}
	if err := bcrypt.CompareHashAndPassword([]byte(l.Password), []byte(password)); err != nil {
		return l, ErrInvalidPassword
	}
	return Lock{}, nil
}

// CheckWritable returns ErrLocked while the lock is engaged.
func (l Lock) CheckWritable() error {
	if l.Locked {
		return ErrLocked
	}
	return nil
}
