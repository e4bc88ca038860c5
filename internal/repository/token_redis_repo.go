package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/inventory-ledger/internal/models"
	"github.com/redis/go-redis/v9"
)

const redisTokenPrefix = "session:token:"

// RedisTokenRepository stores session tokens in Redis so several server
// processes can share them. Keys carry a TTL matching the token lifetime,
// but expiry is still checked by the session manager on every lookup.
type RedisTokenRepository struct {
	client *redis.Client
	now    func() time.Time
}

type redisToken struct {
	UserID    uint      `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRedisTokenRepository creates a new RedisTokenRepository
func NewRedisTokenRepository(client *redis.Client) *RedisTokenRepository {
	return &RedisTokenRepository{client: client, now: time.Now}
}

func (r *RedisTokenRepository) key(value string) string {
	return redisTokenPrefix + value
}

// Insert persists a new token
func (r *RedisTokenRepository) Insert(ctx context.Context, token *models.Token) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = r.now().UTC()
	}
	data, err := json.Marshal(redisToken{
		UserID:    token.UserID,
		CreatedAt: token.CreatedAt,
		ExpiresAt: token.ExpiresAt,
	})
	if err != nil {
		return err
	}

	// A token that is already expired is kept without TTL; the next
	// validation or sweep removes it.
	ttl := token.ExpiresAt.Sub(r.now())
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(token.Value), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

// Find retrieves a token by its exact value
func (r *RedisTokenRepository) Find(ctx context.Context, value string) (*models.Token, error) {
	data, err := r.client.Get(ctx, r.key(value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("redis get token: %w", err)
	}

	var stored redisToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &models.Token{
		Value:     value,
		UserID:    stored.UserID,
		CreatedAt: stored.CreatedAt,
		ExpiresAt: stored.ExpiresAt,
	}, nil
}

// Delete removes a token; deleting a missing token is not an error
func (r *RedisTokenRepository) Delete(ctx context.Context, value string) error {
	return r.client.Del(ctx, r.key(value)).Err()
}

// DeleteExpired scans all session keys and removes those expired at or before now
func (r *RedisTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	iter := r.client.Scan(ctx, 0, redisTokenPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return removed, err
		}
		var stored redisToken
		if err := json.Unmarshal(data, &stored); err != nil || !now.Before(stored.ExpiresAt) {
			n, err := r.client.Del(ctx, key).Result()
			if err != nil {
				return removed, err
			}
			removed += n
		}
	}
	return removed, iter.Err()
}
