package state

import (
	"context"
	"fmt"

	"github.com/mailnotify/mailnotify/internal/config"
)

// Open builds the option store selected by cfg.StoreDriver. The returned
// close function releases the backend's connections.
func Open(ctx context.Context, cfg *config.Config) (config.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.StoreDriver {
	case "", "file":
		return NewFileStore(cfg.StorePath), noop, nil
	case "memory":
		return NewMemoryStore(), noop, nil
	case "redis":
		s, err := NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := OpenPostgresStore(ctx, cfg.PostgresDSN, cfg.PostgresTable)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
