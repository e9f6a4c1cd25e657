package cache

import (
	"math"
	"time"
)

// FreshnessStatus classifies how much of an entry's TTL has elapsed.
type FreshnessStatus string

const (
	StatusFresh   FreshnessStatus = "fresh"
	StatusStale   FreshnessStatus = "stale"
	StatusExpired FreshnessStatus = "expired"
)

// staleFraction is the share of the TTL after which an entry counts as
// stale but still servable.
const staleFraction = 0.75

// Freshness describes an entry's position in its TTL window.
type Freshness struct {
	Status         FreshnessStatus `json:"status"`
	AgeMs          int64           `json:"ageMs"`
	TTLRemainingMs int64           `json:"ttlRemainingMs"`
	// Score is the remaining validity fraction on a 0-100 scale, 0 once
	// expired.
	Score int `json:"score"`
}

// Classify is a pure function of the metadata and the clock. Entries with
// no metadata (written before the metadata side-table existed) are treated
// as fully fresh rather than expired, so legacy values are never
// spuriously invalidated.
func Classify(md *Metadata, now time.Time) Freshness {
	if md == nil {
		return Freshness{Status: StatusFresh, Score: 100}
	}

	age := now.UnixMilli() - md.CachedAt
	if age < 0 {
		age = 0
	}
	remaining := md.TTLMs - age
	if remaining < 0 {
		remaining = 0
	}

	f := Freshness{AgeMs: age, TTLRemainingMs: remaining}
	switch {
	case md.TTLMs <= 0 || age > md.TTLMs:
		f.Status = StatusExpired
		f.Score = 0
	default:
		if float64(age) > staleFraction*float64(md.TTLMs) {
			f.Status = StatusStale
		} else {
			f.Status = StatusFresh
		}
		score := int(math.Round(100 * float64(remaining) / float64(md.TTLMs)))
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		f.Score = score
	}
	return f
}
