// Package audit persists invalidation records. Records are write-once:
// nothing in this package updates a row after it is inserted, and the only
// deletion is the retention purge.
package audit

import (
	"context"
	"time"
)

// RetentionPeriod is how long invalidation records are kept.
const RetentionPeriod = 30 * 24 * time.Hour

// Criteria is the snapshot of an invalidation call's selectors.
type Criteria struct {
	Pattern     string `json:"pattern,omitempty"`
	Namespace   string `json:"namespace,omitempty"`
	OlderThanMs int64  `json:"olderThanMs,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Record is one invalidation call's audit trail entry.
type Record struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	ActorKeyHash string    `json:"actorKeyHash"`
	Criteria     Criteria  `json:"criteria"`
	MatchedCount int       `json:"matchedCount"`
	Reason       string    `json:"reason"`
}

// Recorder stores and retrieves invalidation records.
type Recorder interface {
	// Append inserts one record. Never mutates existing records.
	Append(ctx context.Context, rec Record) error

	// Recent returns records with Timestamp >= since, newest first.
	Recent(ctx context.Context, since time.Time) ([]Record, error)

	// Purge deletes records older than before, returning how many.
	Purge(ctx context.Context, before time.Time) (int64, error)
}
