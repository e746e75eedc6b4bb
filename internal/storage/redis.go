package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexusai/auditoria/internal/model"
)

const redisKeyPrefix = "auditoria:pending:"

// RedisStore keeps pending documents in Redis so they survive restarts and
// are shared between instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. A zero ttl stores keys without
// expiry.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(orderID string) string {
	return redisKeyPrefix + orderID
}

// Put stores the document as JSON.
func (r *RedisStore) Put(ctx context.Context, orderID string, doc *model.PendingDocument) error {
	stored := *doc
	stored.OrderID = orderID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(orderID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get fetches a document without removing it.
func (r *RedisStore) Get(ctx context.Context, orderID string) (*model.PendingDocument, error) {
	data, err := r.client.Get(ctx, redisKey(orderID)).Bytes()
	return decodeRedis(data, err)
}

// Delete removes a document.
func (r *RedisStore) Delete(ctx context.Context, orderID string) error {
	if err := r.client.Del(ctx, redisKey(orderID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Take uses GETDEL, which Redis executes atomically.
func (r *RedisStore) Take(ctx context.Context, orderID string) (*model.PendingDocument, error) {
	data, err := r.client.GetDel(ctx, redisKey(orderID)).Bytes()
	return decodeRedis(data, err)
}

func decodeRedis(data []byte, err error) (*model.PendingDocument, error) {
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var doc model.PendingDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}
