package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mdAt(cachedAt time.Time, ttl time.Duration) *Metadata {
	return &Metadata{CachedAt: cachedAt.UnixMilli(), TTLMs: ttl.Milliseconds()}
}

func TestClassifyStatuses(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	md := mdAt(t0, time.Hour)

	fr := Classify(md, t0.Add(10*time.Minute))
	require.Equal(t, StatusFresh, fr.Status)

	// Past the 75% threshold but inside the TTL.
	fr = Classify(md, t0.Add(50*time.Minute))
	require.Equal(t, StatusStale, fr.Status)
	require.Greater(t, fr.Score, 0)

	fr = Classify(md, t0.Add(61*time.Minute))
	require.Equal(t, StatusExpired, fr.Status)
	require.Equal(t, 0, fr.Score)
	require.Equal(t, int64(0), fr.TTLRemainingMs)
}

func TestClassifyScoreMonotonic(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	md := mdAt(t0, time.Hour)

	prev := 101
	for m := 0; m <= 90; m += 5 {
		fr := Classify(md, t0.Add(time.Duration(m)*time.Minute))
		require.LessOrEqual(t, fr.Score, prev, "score must never increase with age")
		require.GreaterOrEqual(t, fr.Score, 0)
		require.LessOrEqual(t, fr.Score, 100)
		prev = fr.Score
	}
	// Stays pinned at zero once expired.
	require.Equal(t, 0, Classify(md, t0.Add(2*time.Hour)).Score)
	require.Equal(t, 0, Classify(md, t0.Add(200*time.Hour)).Score)
}

func TestClassifyBoundaries(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	md := mdAt(t0, time.Hour)

	// age == ttl is not yet expired (expiry requires age > ttl).
	fr := Classify(md, t0.Add(time.Hour))
	require.Equal(t, StatusStale, fr.Status)
	require.Equal(t, 0, fr.Score)

	// age == 0 scores full.
	fr = Classify(md, t0)
	require.Equal(t, StatusFresh, fr.Status)
	require.Equal(t, 100, fr.Score)

	// Clock skew: cachedAt in the future clamps to age zero.
	fr = Classify(md, t0.Add(-time.Minute))
	require.Equal(t, StatusFresh, fr.Status)
	require.Equal(t, 100, fr.Score)
}

func TestClassifyMissingMetadata(t *testing.T) {
	fr := Classify(nil, time.Now())
	require.Equal(t, StatusFresh, fr.Status)
	require.Equal(t, 100, fr.Score)
}
