//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package database provides PostgreSQL connectivity and the pgvector
// chunk store used by the postgres retrieval backend.
package database

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/pgedge-ask-server/internal/config"
)

// Pool owns the connection pool shared by the postgres memory and
// retrieval backends.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool connects and pings. The returned pool is ready for use.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	pgCfg, err := pgxpool.ParseConfig(ConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		pgCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Pool{pool: pool}, nil
}

// ConnectionString returns cfg.URL when set. Otherwise it builds a
// keyword/value string from the individual settings, taking the user
// from PGUSER or USER when none is configured.
func ConnectionString(cfg config.DatabaseConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}

	user := cmp.Or(cfg.Username, os.Getenv("PGUSER"), os.Getenv("USER"))
	port := ""
	if cfg.Port != 0 {
		port = strconv.Itoa(cfg.Port)
	}

	var b strings.Builder
	for _, kv := range [][2]string{
		{"host", cfg.Host},
		{"port", port},
		{"dbname", cfg.Database},
		{"user", user},
		{"password", cfg.Password},
		{"sslmode", cfg.SSLMode},
	} {
		if kv[1] == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(kv[0] + "=" + quoteValue(kv[1]))
	}
	return b.String()
}

// quoteValue quotes a keyword value when libpq would otherwise split or
// misread it.
func quoteValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
	return "'" + v + "'"
}

// Ping checks that the database is reachable.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases every connection.
func (p *Pool) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Pool exposes the pgx pool for the stores built on it.
func (p *Pool) Pool() *pgxpool.Pool {
	return p.pool
}
