//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package memory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/pgedge-ask-server/internal/config"
)

// Open builds the configured backend. pool is only used by the postgres
// backend and may be nil otherwise.
func Open(ctx context.Context, cfg config.MemoryConfig, pool *pgxpool.Pool) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Backend {
	case config.MemoryFile, "":
		store, err = NewFileStore(cfg.Directory)
	case config.MemoryRedis:
		client, dialErr := DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if dialErr != nil {
			return nil, dialErr
		}
		store = NewRedisStore(client, cfg.RedisKeyPrefix, cfg.RedisTTL)
	case config.MemorySQLite:
		store, err = NewSQLiteStore(cfg.SQLitePath)
	case config.MemoryPostgres:
		if pool == nil {
			return nil, fmt.Errorf("postgres memory backend requires a database connection")
		}
		store, err = NewPostgresStore(ctx, pool)
	case config.MemoryInMemory:
		store = NewInMemoryStore()
	default:
		return nil, fmt.Errorf("unknown memory backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.SerializeAppends {
		return NewLocked(store), nil
	}
	return store, nil
}
