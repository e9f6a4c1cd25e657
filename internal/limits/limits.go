// Package limits enforces the per-minute rate limit and the monthly quota
// for API keys. Both counters live in the external store, never in process
// memory, so enforcement holds across replicas.
package limits

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/agentcache/agentcache/internal/store"
)

// Tier classifies an API key.
type Tier string

const (
	TierDemo Tier = "demo"
	TierLive Tier = "live"
)

// windowLength is the burst window. Buckets expire a little beyond it so a
// straggling read still sees a dying bucket rather than recreating one.
const (
	windowLength = time.Minute
	bucketTTL    = 90 * time.Second
	// quotaTTL outlives any month so the counter expires on its own.
	quotaTTL = 40 * 24 * time.Hour
)

// Config carries the per-tier limits.
type Config struct {
	DemoPerMinute int
	LivePerMinute int
	DemoMonthly   int64
	LiveMonthly   int64
}

// PerMinute returns the burst limit for a tier.
func (c Config) PerMinute(t Tier) int {
	if t == TierLive {
		return c.LivePerMinute
	}
	return c.DemoPerMinute
}

// Monthly returns the monthly quota for a tier.
func (c Config) Monthly(t Tier) int64 {
	if t == TierLive {
		return c.LiveMonthly
	}
	return c.DemoMonthly
}

// Limiter checks both windows for a key before the request path proceeds.
type Limiter struct {
	store store.Store
	cfg   Config
	now   func() time.Time
}

// New creates a Limiter over the shared store.
func New(st store.Store, cfg Config) *Limiter {
	return &Limiter{store: st, cfg: cfg, now: time.Now}
}

// RateLimitError signals the per-minute burst limit was exceeded.
type RateLimitError struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per minute, resets at %s",
		e.Limit, e.ResetAt.UTC().Format(time.RFC3339))
}

// QuotaError signals the monthly quota was exhausted. A hard cap, distinct
// from the burst limiter.
type QuotaError struct {
	Quota     int64 `json:"quota"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("monthly quota exceeded: %d of %d requests used", e.Used, e.Quota)
}

// Allow counts this request against both windows. The minute bucket is
// checked first; when it rejects, the quota is not consumed (the failed
// increment still counts toward the minute window, nothing else). Store
// faults fail open so a counter outage never blocks traffic.
func (l *Limiter) Allow(ctx context.Context, keyHash string, tier Tier) error {
	now := l.now()
	window := now.UnixMilli() / windowLength.Milliseconds()
	bucket := fmt.Sprintf("rate:%s:%d", keyHash, window)

	n, err := l.store.Incr(ctx, bucket)
	if err != nil {
		return nil
	}
	if n == 1 {
		_ = l.store.Expire(ctx, bucket, bucketTTL)
	}
	limit := l.cfg.PerMinute(tier)
	if n > int64(limit) {
		return &RateLimitError{
			Limit:     limit,
			Remaining: 0,
			ResetAt:   time.UnixMilli((window + 1) * windowLength.Milliseconds()),
		}
	}

	qkey := l.quotaKey(keyHash, now)
	used, err := l.store.HIncrBy(ctx, qkey, "used", 1)
	if err != nil {
		return nil
	}
	if used == 1 {
		_ = l.store.Expire(ctx, qkey, quotaTTL)
	}
	quota := l.cfg.Monthly(tier)
	if used > quota {
		return &QuotaError{Quota: quota, Used: used, Remaining: 0}
	}
	return nil
}

// RecordOutcome attributes a lookup result to the month's analytics
// sub-counts. Best effort.
func (l *Limiter) RecordOutcome(ctx context.Context, keyHash string, hit bool) {
	field := "misses"
	if hit {
		field = "hits"
	}
	_, _ = l.store.HIncrBy(ctx, l.quotaKey(keyHash, l.now()), field, 1)
}

// Usage is the month-to-date consumption for a key.
type Usage struct {
	Used   int64 `json:"used"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Usage reads the current month's counters.
func (l *Limiter) Usage(ctx context.Context, keyHash string) (Usage, error) {
	fields, err := l.store.HGetAll(ctx, l.quotaKey(keyHash, l.now()))
	if err != nil {
		return Usage{}, fmt.Errorf("read quota counters: %w", err)
	}
	return Usage{
		Used:   parseCount(fields["used"]),
		Hits:   parseCount(fields["hits"]),
		Misses: parseCount(fields["misses"]),
	}, nil
}

func (l *Limiter) quotaKey(keyHash string, now time.Time) string {
	return "quota:" + keyHash + ":" + now.UTC().Format("2006-01")
}

func parseCount(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
