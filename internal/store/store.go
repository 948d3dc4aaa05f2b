// Package store is the durable key/value persistence used to carry sync
// state and the local event collection across restarts.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCorrupted is returned when a persisted value cannot be decoded.
	ErrCorrupted = errors.New("persisted value is corrupted")
	// ErrUnknownDriver is returned by Open for unsupported drivers.
	ErrUnknownDriver = errors.New("unknown store driver")
)

// Store loads and saves JSON-encodable values under string keys.
type Store interface {
	// Load decodes the value stored under key into v. It reports false,
	// leaving v untouched, when nothing is stored yet.
	Load(ctx context.Context, key string, v any) (bool, error)
	// Save replaces the value stored under key.
	Save(ctx context.Context, key string, v any) error
	Close() error
}

// Open returns the backend selected by driver ("file", "sqlite" or "memory").
func Open(driver, path string) (Store, error) {
	switch strings.ToLower(driver) {
	case "file", "":
		return NewFileStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// Load is a generic convenience wrapper that returns def when key is absent.
func Load[T any](ctx context.Context, s Store, key string, def T) (T, error) {
	var v T
	ok, err := s.Load(ctx, key, &v)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}
