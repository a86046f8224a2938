package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CachedResponse is a completed mutation kept for replay under its Idempotency-Key.
type CachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

type IdempotencyStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewIdempotencyStore(client *goredis.Client, ttlSeconds int) *IdempotencyStore {
	return &IdempotencyStore{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}
}

// Check returns the response stored for (userID, scope, key), nil when there is none.
// scope names the route and its parameters, so one key cannot replay across orders.
func (s *IdempotencyStore) Check(ctx context.Context, userID, scope, key string) (*CachedResponse, error) {
	raw, err := s.client.Get(ctx, idempotencyKey(userID, scope, key)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check idempotency key: %w", err)
	}

	var resp CachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode idempotent response: %w", err)
	}
	return &resp, nil
}

// Set keeps the first response stored for the key; later writes are ignored.
func (s *IdempotencyStore) Set(ctx context.Context, userID, scope, key string, resp CachedResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode idempotent response: %w", err)
	}
	if _, err := s.client.SetNX(ctx, idempotencyKey(userID, scope, key), raw, s.ttl).Result(); err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}

func idempotencyKey(userID, scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s:%s", userID, scope, key)
}
