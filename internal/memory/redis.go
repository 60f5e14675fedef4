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
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisStore keeps each session as a Redis list of JSON turns.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps a client. A zero ttl keeps histories forever.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// History returns the session's turns in insertion order.
func (s *RedisStore) History(ctx context.Context, sessionID string) ([]Turn, error) {
	if !ValidSessionID(sessionID) {
		return nil, ErrInvalidSession
	}
	values, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	turns := make([]Turn, 0, len(values))
	for _, v := range values {
		var rt redisTurn
		if err := json.Unmarshal([]byte(v), &rt); err != nil {
			return nil, fmt.Errorf("failed to parse history entry: %w", err)
		}
		turns = append(turns, Turn(rt))
	}
	return turns, nil
}

// Append pushes all turns with one RPUSH and refreshes the TTL in the
// same transaction.
func (s *RedisStore) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	if !ValidSessionID(sessionID) {
		return ErrInvalidSession
	}
	if len(turns) == 0 {
		return nil
	}

	values := make([]any, len(turns))
	for i, t := range turns {
		data, err := json.Marshal(redisTurn(t))
		if err != nil {
			return fmt.Errorf("failed to encode turn: %w", err)
		}
		values[i] = data
	}

	key := s.key(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
