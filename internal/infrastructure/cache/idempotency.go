// Package cache holds the Redis-backed stores shared by the HTTP surface.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stockflow/internal/core/apperror"
)

const (
	keyPrefix = "stockflow:idem:"

	DefaultResponseTTL = 24 * time.Hour
	DefaultPendingTTL  = 30 * time.Second
)

const (
	statePending   = "pending"
	stateCompleted = "completed"
)

// Replay is a stored response served again for a repeated key.
type Replay struct {
	StatusCode  int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

type entry struct {
	State       string  `json:"state"`
	Operation   string  `json:"operation"`
	RequestHash string  `json:"requestHash"`
	Response    *Replay `json:"response,omitempty"`
}

// IdempotencyStore keeps idempotency keys of mutating requests in Redis.
// A key is first written as pending with a short TTL; the finished response
// replaces it and lives for ResponseTTL.
type IdempotencyStore struct {
	client      *redis.Client
	responseTTL time.Duration
	pendingTTL  time.Duration
}

// NewIdempotencyStore wraps client. Zero TTLs fall back to the defaults.
func NewIdempotencyStore(client *redis.Client, responseTTL, pendingTTL time.Duration) *IdempotencyStore {
	if responseTTL <= 0 {
		responseTTL = DefaultResponseTTL
	}
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingTTL
	}
	return &IdempotencyStore{client: client, responseTTL: responseTTL, pendingTTL: pendingTTL}
}

// NewClient opens a Redis client and checks connectivity.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// StorageKey namespaces a client key by operator so two callers never share one.
func StorageKey(operator, key string) string {
	if operator == "" {
		operator = "anonymous"
	}
	return keyPrefix + operator + ":" + key
}

// Acquire claims key for one request. It returns a replay when the same
// request already completed, nil when the caller should proceed, and an
// idempotency conflict when the key is in flight or was used for a
// different request.
func (s *IdempotencyStore) Acquire(ctx context.Context, key, operation, requestHash string) (*Replay, error) {
	pending, err := json.Marshal(entry{State: statePending, Operation: operation, RequestHash: requestHash})
	if err != nil {
		return nil, fmt.Errorf("encode idempotency entry: %w", err)
	}

	// The existing entry may expire between SetNX and Get; one retry covers it.
	for range 2 {
		ok, err := s.client.SetNX(ctx, key, pending, s.pendingTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if ok {
			return nil, nil
		}

		raw, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read idempotency key: %w", err)
		}
		var existing entry
		if err := json.Unmarshal(raw, &existing); err != nil {
			return nil, fmt.Errorf("decode idempotency entry: %w", err)
		}
		return resolve(key, existing, operation, requestHash)
	}
	return nil, apperror.NewIdempotencyConflict(key)
}

func resolve(key string, existing entry, operation, requestHash string) (*Replay, error) {
	if existing.Operation != operation || existing.RequestHash != requestHash {
		return nil, apperror.NewIdempotencyConflict(key).
			WithDetail("reason", "key was used for a different request")
	}
	if existing.State != stateCompleted || existing.Response == nil {
		return nil, apperror.NewIdempotencyConflict(key).
			WithDetail("reason", "request is still in progress")
	}
	return existing.Response, nil
}

// Complete stores the response for later replay.
func (s *IdempotencyStore) Complete(ctx context.Context, key, operation, requestHash string, replay Replay) error {
	raw, err := json.Marshal(entry{
		State:       stateCompleted,
		Operation:   operation,
		RequestHash: requestHash,
		Response:    &replay,
	})
	if err != nil {
		return fmt.Errorf("encode idempotency entry: %w", err)
	}
	if err := s.client.Set(ctx, key, raw, s.responseTTL).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release drops a pending key so the client may retry.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
