// Package cache keeps accepted listings in Redis so identical requests skip
// generation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/valpere/listforge/internal"
)

// DefaultTTL applies when New is given a non-positive ttl.
const DefaultTTL = 24 * time.Hour

type ListingCache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *ListingCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ListingCache{client: client, ttl: ttl}
}

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func Key(fingerprint, lang string) string {
	return "listing:" + lang + ":" + fingerprint
}

func (c *ListingCache) GetCachedListing(ctx context.Context, fingerprint, lang string) (*internal.CachedListing, bool, error) {
	data, err := c.client.Get(ctx, Key(fingerprint, lang)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var l internal.CachedListing
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached listing: %w", err)
	}
	return &l, true, nil
}

func (c *ListingCache) SaveListing(ctx context.Context, l internal.CachedListing) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, Key(l.Fingerprint, l.Language), data, c.ttl).Err()
}

func (c *ListingCache) InvalidateListing(ctx context.Context, fingerprint, lang string) error {
	return c.client.Del(ctx, Key(fingerprint, lang)).Err()
}
