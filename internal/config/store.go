package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// OptionsKey is the store key holding the option document.
const OptionsKey = "notify_options"

// ErrStoreUnavailable wraps any failure of the backing option store.
var ErrStoreUnavailable = errors.New("option store unavailable")

// Store is a key/value option store. Get reports found=false for a key that
// was never written.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// LoadOptions reads the option document and merges it over DefaultOptions.
// A missing document yields the defaults.
func LoadOptions(ctx context.Context, s Store) (Options, error) {
	opts := DefaultOptions()
	b, found, err := s.Get(ctx, OptionsKey)
	if err != nil {
		return opts, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !found || len(b) == 0 {
		return opts, nil
	}
	if err := json.Unmarshal(b, &opts); err != nil {
		return DefaultOptions(), fmt.Errorf("%w: decode %s: %v", ErrStoreUnavailable, OptionsKey, err)
	}
	return opts, nil
}

// SaveOptions writes the full option document.
func SaveOptions(ctx context.Context, s Store, opts Options) error {
	b, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("encode %s: %w", OptionsKey, err)
	}
	if err := s.Set(ctx, OptionsKey, b); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// SeedOptions writes opts only when the store holds no option document yet.
// It reports whether it wrote.
func SeedOptions(ctx context.Context, s Store, opts Options) (bool, error) {
	_, found, err := s.Get(ctx, OptionsKey)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if found {
		return false, nil
	}
	return true, SaveOptions(ctx, s, opts)
}
