// Package auth issues and resolves the opaque session tokens handed out by
// the login endpoint. Tokens live in Redis with a TTL; there is no signed
// payload, the token is just a key.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-app/custodia/internal/shared"
)

// TokenPayload is the identity stored behind a token.
type TokenPayload struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	RoleName string `json:"role_name"`
}

// TokenManager stores opaque tokens in Redis.
type TokenManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(client *redis.Client, ttl time.Duration) *TokenManager {
	return &TokenManager{client: client, ttl: ttl}
}

// Issue creates a fresh token for the payload.
func (tm *TokenManager) Issue(ctx context.Context, payload TokenPayload) (string, error) {
	token := uuid.NewString()
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("auth: marshal token payload: %w", err)
	}
	if err := tm.client.Set(ctx, tm.key(token), data, tm.ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: store token: %w", err)
	}
	return token, nil
}

// Resolve returns the identity behind a token. Unknown or expired tokens
// resolve to shared.ErrInvalidCredentials.
func (tm *TokenManager) Resolve(ctx context.Context, token string) (TokenPayload, error) {
	if token == "" {
		return TokenPayload{}, shared.ErrInvalidCredentials
	}
	data, err := tm.client.Get(ctx, tm.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return TokenPayload{}, shared.ErrInvalidCredentials
		}
		return TokenPayload{}, fmt.Errorf("auth: load token: %w", err)
	}
	var payload TokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return TokenPayload{}, fmt.Errorf("auth: decode token payload: %w", err)
	}
	return payload, nil
}

// Revoke deletes a token.
func (tm *TokenManager) Revoke(ctx context.Context, token string) error {
	if err := tm.client.Del(ctx, tm.key(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("auth: revoke token: %w", err)
	}
	return nil
}

// TTL exposes the configured token lifetime.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// SweepOrphans drops token keys whose TTL was lost (e.g. after a restore).
// Keys with a healthy TTL are untouched; Redis expiry handles the rest.
func (tm *TokenManager) SweepOrphans(ctx context.Context) (int, error) {
	var removed int
	iter := tm.client.Scan(ctx, 0, "token:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ttl, err := tm.client.TTL(ctx, key).Result()
		if err != nil {
			return removed, fmt.Errorf("auth: ttl %s: %w", key, err)
		}
		if ttl < 0 {
			if err := tm.client.Del(ctx, key).Err(); err != nil {
				return removed, fmt.Errorf("auth: sweep %s: %w", key, err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("auth: scan tokens: %w", err)
	}
	return removed, nil
}

func (tm *TokenManager) key(token string) string {
	return "token:" + token
}
