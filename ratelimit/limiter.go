// Package ratelimit implements the shared sliding-window hit counter the
// admission pipeline consults once per applicable rate-limit rule. The
// window is kept in Redis sorted sets, the same technique the broader
// corpus uses for distributed rate limiting: one member per hit, scored
// by its arrival time, with everything older than the window evicted on
// every call so the set's cardinality is always the live hit count.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Rule is one configured sliding-window record.
type Rule struct {
	Period time.Duration
	Rate   int
}

// redisClient is the slice of redis.Cmdable the limiter actually uses;
// *redis.Client satisfies it, and tests can substitute a fake.
type redisClient interface {
	ZAdd(ctx context.Context, key string, members ...*redis.Z) *redis.IntCmd
	ZRemRangeByScore(ctx context.Context, key, min, max string) *redis.IntCmd
	ZCard(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Limiter answers "did this key exceed rate hits in the last period".
type Limiter struct {
	client redisClient
	now    func() time.Time
}

// New builds a Limiter backed by client.
func New(client *redis.Client) *Limiter {
	return &Limiter{client: client, now: time.Now}
}

// Hit records one hit against key under rule and reports whether the
// resulting count exceeds rule.Rate. The hit is always recorded
// regardless of the outcome, so counters stay consistent across the
// several rules one event may be checked against.
func (l *Limiter) Hit(ctx context.Context, key string, weight int, rule Rule) (bool, error) {
	now := l.now()
	windowStart := now.Add(-rule.Period)

	// Score by unix milliseconds, not nanoseconds: float64 has 53 bits of
	// mantissa, comfortably enough for millisecond epoch values but not
	// for nanosecond ones.
	nowMillis := now.UnixMilli()
	for i := 0; i < weight; i++ {
		member := fmt.Sprintf("%d-%s-%d", nowMillis, uuid.NewString(), i)
		if err := l.client.ZAdd(ctx, key, &redis.Z{Score: float64(nowMillis), Member: member}).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: zadd %s: %w", key, err)
		}
	}

	if err := l.client.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart.UnixMilli(), 10)).Err(); err != nil {
		return false, fmt.Errorf("ratelimit: evict %s: %w", key, err)
	}

	count, err := l.client.ZCard(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: zcard %s: %w", key, err)
	}

	if err := l.client.Expire(ctx, key, rule.Period).Err(); err != nil {
		return false, fmt.Errorf("ratelimit: expire %s: %w", key, err)
	}

	return int(count) > rule.Rate, nil
}

// Key builds the counter key for a pubkey-scoped rate-limit rule. When
// kinds narrows the rule to a subset of event kinds, the key carries a
// stable stringification of that list so distinct kind-scoped rules
// don't share a counter.
func Key(pubkeyHex string, periodMillis int64, kinds []uint16) string {
	if len(kinds) == 0 {
		return fmt.Sprintf("%s:events:%d", pubkeyHex, periodMillis)
	}
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = strconv.FormatUint(uint64(k), 10)
	}
	return fmt.Sprintf("%s:events:%d:[%s]", pubkeyHex, periodMillis, strings.Join(parts, ","))
}
