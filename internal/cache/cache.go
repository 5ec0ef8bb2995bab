// Package cache keeps extracted trading codes in Redis between runs, keyed
// by company profile URL.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "b3crawl:codes:"

// Redis is a code cache backed by a Redis server
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects lazily to addr. Entries expire after ttl; zero keeps them forever.
func NewRedis(addr string, ttl time.Duration) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   0,
		}),
		ttl: ttl,
	}
}

// Key returns the Redis key holding the codes of profileURL
func Key(profileURL string) string {
	sum := sha1.Sum([]byte(profileURL))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Ping checks the server is reachable
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Get returns the cached codes for profileURL and whether there were any
func (r *Redis) Get(ctx context.Context, profileURL string) (string, bool, error) {
	codes, err := r.client.Get(ctx, Key(profileURL)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return codes, codes != "", nil
}

// Set stores codes for profileURL. Empty codes are not cached.
func (r *Redis) Set(ctx context.Context, profileURL, codes string) error {
	if codes == "" {
		return nil
	}
	if err := r.client.Set(ctx, Key(profileURL), codes, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
