package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const negativeCacheTTL = 60 * time.Second

// Cache is the short-lived negative-lookup cache in front of the
// datastore and pubkey-check webhook: it remembers only "this pubkey is
// blocked", never "this pubkey is admitted", bounding staleness after
// provisioning to negativeCacheTTL.
type Cache struct {
	client *redis.Client
}

// NewCache wraps an existing Redis connection.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func blockedKey(pubkeyHex string) string {
	return fmt.Sprintf("%s:is-blocked", pubkeyHex)
}

// IsBlocked reports whether pubkeyHex was recently resolved as
// not-admitted and should short-circuit without touching the datastore
// or webhook.
func (c *Cache) IsBlocked(ctx context.Context, pubkeyHex string) (bool, error) {
	_, err := c.client.Get(ctx, blockedKey(pubkeyHex)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("users: cache lookup for %s: %w", pubkeyHex, err)
	}
	return true, nil
}

// MarkBlocked records a negative result for pubkeyHex for 60 seconds.
func (c *Cache) MarkBlocked(ctx context.Context, pubkeyHex string) error {
	if err := c.client.Set(ctx, blockedKey(pubkeyHex), "true", negativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("users: cache set for %s: %w", pubkeyHex, err)
	}
	return nil
}
