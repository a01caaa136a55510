package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dexguard:alert:"

// Deduper suppresses repeated alerts using SET NX with a TTL. The first
// caller for a key inside the window wins; everyone else sees it as a
// duplicate.
type Deduper struct {
	client *redis.Client
}

// NewDeduper creates a de-duplication cache over an existing client.
func NewDeduper(client *redis.Client) *Deduper {
	return &Deduper{client: client}
}

// Open connects to redis and verifies the connection.
func Open(ctx context.Context, addr, password string, db int) (*Deduper, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return &Deduper{client: client}, nil
}

// Seen implements notify.Deduper.
func (d *Deduper) Seen(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, keyPrefix+key, 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}

// Close releases the redis connection.
func (d *Deduper) Close() error { return d.client.Close() }
