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
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps history in the chat_messages table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates the table if needed. The pool stays owned by
// the caller.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_messages (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS chat_messages_session_idx ON chat_messages (session_id, id);`)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat_messages table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// History returns the session's turns ordered by insertion.
func (s *PostgresStore) History(ctx context.Context, sessionID string) ([]Turn, error) {
	if !ValidSessionID(sessionID) {
		return nil, ErrInvalidSession
	}
	rows, err := s.pool.Query(ctx,
		`SELECT role, content, created_at FROM chat_messages WHERE session_id = $1 ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return turns, nil
}

// Append inserts all turns in one transaction.
func (s *PostgresStore) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	if !ValidSessionID(sessionID) {
		return ErrInvalidSession
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, t := range turns {
			created := t.CreatedAt
			if created.IsZero() {
				created = time.Now()
			}
			batch.Queue(
				`INSERT INTO chat_messages (session_id, role, content, created_at) VALUES ($1, $2, $3, $4)`,
				sessionID, t.Role, t.Content, created)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}
		return nil
	})
}

// Close does not close the shared pool.
func (s *PostgresStore) Close() error { return nil }
