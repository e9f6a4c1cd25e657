package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/agentcache/agentcache/internal/audit"
	"github.com/agentcache/agentcache/internal/store"
)

// Criteria selects entries for bulk invalidation. Selectors compose with
// logical AND; at least one of Pattern, Namespace, OlderThanMs or URL must
// be set.
type Criteria struct {
	// Pattern is a glob ('*' wildcards) matched against the literal
	// namespaced key.
	Pattern string `json:"pattern,omitempty"`
	// Namespace restricts to one namespace prefix.
	Namespace string `json:"namespace,omitempty"`
	// OlderThanMs selects entries cached before now-OlderThanMs.
	OlderThanMs int64 `json:"olderThanMs,omitempty"`
	// URL selects entries whose metadata records this source URL.
	URL string `json:"url,omitempty"`

	Reason string `json:"reason"`
	// Actor is the hashed API key (or system component) issuing the call.
	Actor string `json:"actor,omitempty"`
}

func (c Criteria) hasSelector() bool {
	return c.Pattern != "" || c.Namespace != "" || c.OlderThanMs > 0 || c.URL != ""
}

// needsMetadata reports whether matching requires the per-entry side record.
func (c Criteria) needsMetadata() bool {
	return c.OlderThanMs > 0 || c.URL != ""
}

// InvalidationResult summarizes one invalidation call.
type InvalidationResult struct {
	InvalidatedCount    int     `json:"invalidatedCount"`
	EstimatedCostImpact float64 `json:"estimatedCostImpact"`
}

// Invalidate deletes every entry matching the criteria, key by key. There
// is no cross-key atomicity: a concurrent reader sees either the prior
// value or a miss. Exactly one audit record is appended per call.
func (e *Engine) Invalidate(ctx context.Context, c Criteria) (InvalidationResult, error) {
	if !c.hasSelector() {
		return InvalidationResult{}, &ValidationError{
			Msg: "invalidation requires at least one of pattern, namespace, olderThanMs or url",
		}
	}

	keys, err := e.store.Scan(ctx, "entry:"+c.scanPattern())
	if err != nil {
		return InvalidationResult{}, fmt.Errorf("scan for invalidation: %w", err)
	}

	now := e.now()
	var matched int
	for _, raw := range keys {
		key := strings.TrimPrefix(raw, "entry:")
		if !e.matches(ctx, key, c, now.UnixMilli()) {
			continue
		}
		if _, err := e.store.Delete(ctx, entryKey(key), metaKey(key)); err != nil {
			e.log.Warn().Err(err).Str("key", key).Msg("invalidation delete failed")
			continue
		}
		matched++
	}

	rec := audit.Record{
		ID:           uuid.NewString(),
		Timestamp:    now,
		ActorKeyHash: c.Actor,
		Criteria: audit.Criteria{
			Pattern:     c.Pattern,
			Namespace:   c.Namespace,
			OlderThanMs: c.OlderThanMs,
			URL:         c.URL,
		},
		MatchedCount: matched,
		Reason:       c.Reason,
	}
	if err := e.audit.Append(ctx, rec); err != nil {
		// The deletions already happened; losing the record is a logged
		// write failure, not a request failure.
		e.log.Warn().Err(err).Str("reason", c.Reason).Msg("audit append failed")
	}

	e.metrics.Invalidated(ctx, int64(matched))
	e.log.Info().
		Str("reason", c.Reason).
		Str("pattern", c.Pattern).
		Str("namespace", c.Namespace).
		Int("matched", matched).
		Msg("invalidation complete")

	return InvalidationResult{
		InvalidatedCount:    matched,
		EstimatedCostImpact: float64(matched) * e.costPerEntry,
	}, nil
}

// scanPattern gives the narrowest discovery pattern the criteria allow.
func (c Criteria) scanPattern() string {
	if c.Pattern != "" {
		return c.Pattern
	}
	if c.Namespace != "" {
		return c.Namespace + ":*"
	}
	return "*"
}

func (e *Engine) matches(ctx context.Context, key string, c Criteria, nowMs int64) bool {
	if c.Namespace != "" && !strings.HasPrefix(key, c.Namespace+":") {
		return false
	}
	if c.Pattern != "" && !store.Match(c.Pattern, key) {
		return false
	}
	if !c.needsMetadata() {
		return true
	}

	md, err := readMetadata(ctx, e.store, key)
	if err != nil || md == nil {
		// Without metadata an age or URL selector cannot be proven to
		// match; err on the side of keeping the entry.
		return false
	}
	if c.OlderThanMs > 0 && md.CachedAt >= nowMs-c.OlderThanMs {
		return false
	}
	if c.URL != "" && md.SourceURL != c.URL {
		return false
	}
	return true
}
