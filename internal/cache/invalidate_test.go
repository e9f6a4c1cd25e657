package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func seedEntry(t *testing.T, e *Engine, ns, content string) string {
	t.Helper()
	key, err := e.Store(context.Background(), StoreRequest{
		Namespace: ns,
		Provider:  "openai",
		Model:     "gpt-4o",
		Messages:  []Message{{Role: "user", Content: content}},
		Value:     []byte("v:" + content),
		TTL:       time.Hour,
	})
	require.NoError(t, err)
	return key
}

func lookupBy(t *testing.T, e *Engine, ns, content string) LookupResult {
	t.Helper()
	res, err := e.Lookup(context.Background(), LookupRequest{
		Namespace: ns,
		Provider:  "openai",
		Model:     "gpt-4o",
		Messages:  []Message{{Role: "user", Content: content}},
	})
	require.NoError(t, err)
	return res
}

func TestInvalidateRejectsEmptyCriteria(t *testing.T) {
	e, _, rec := newTestEngine(t)

	_, err := e.Invalidate(context.Background(), Criteria{Reason: "oops"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	// Rejected before any store access: no audit record either.
	recs, err := rec.Recent(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestInvalidateByPattern(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	seedEntry(t, e, "ns", "one")
	seedEntry(t, e, "ns", "two")
	seedEntry(t, e, "other", "three")

	res, err := e.Invalidate(ctx, Criteria{Pattern: "ns:*", Reason: "test", Actor: "tester"})
	require.NoError(t, err)
	require.Equal(t, 2, res.InvalidatedCount)
	require.InDelta(t, 0.004, res.EstimatedCostImpact, 1e-9)

	require.False(t, lookupBy(t, e, "ns", "one").Hit)
	require.False(t, lookupBy(t, e, "ns", "two").Hit)
	require.True(t, lookupBy(t, e, "other", "three").Hit, "keys outside the pattern are untouched")
}

func TestInvalidateByNamespace(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	seedEntry(t, e, "ns", "one")
	seedEntry(t, e, "other", "two")

	res, err := e.Invalidate(ctx, Criteria{Namespace: "ns", Reason: "test"})
	require.NoError(t, err)
	require.Equal(t, 1, res.InvalidatedCount)
	require.True(t, lookupBy(t, e, "other", "two").Hit)
}

func TestInvalidateByAge(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	t0 := time.Now()
	e.now = func() time.Time { return t0 }
	seedEntry(t, e, "ns", "old")

	e.now = func() time.Time { return t0.Add(30 * time.Minute) }
	seedEntry(t, e, "ns", "new")

	res, err := e.Invalidate(ctx, Criteria{
		Namespace:   "ns",
		OlderThanMs: (20 * time.Minute).Milliseconds(),
		Reason:      "age sweep",
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.InvalidatedCount)
	require.False(t, lookupBy(t, e, "ns", "old").Hit)
	require.True(t, lookupBy(t, e, "ns", "new").Hit)
}

func TestInvalidateByURL(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	_, err := e.Store(ctx, StoreRequest{
		Namespace: "ns",
		Provider:  "openai",
		Model:     "gpt-4o",
		Messages:  []Message{{Role: "user", Content: "priced"}},
		Value:     []byte("v"),
		TTL:       time.Hour,
		SourceURL: "https://x.test/price",
	})
	require.NoError(t, err)
	seedEntry(t, e, "ns", "unpriced")

	res, err := e.Invalidate(ctx, Criteria{URL: "https://x.test/price", Reason: "url sweep"})
	require.NoError(t, err)
	require.Equal(t, 1, res.InvalidatedCount)
	require.False(t, lookupBy(t, e, "ns", "priced").Hit)
	require.True(t, lookupBy(t, e, "ns", "unpriced").Hit)
}

func TestInvalidateCriteriaComposeWithAND(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	seedEntry(t, e, "ns", "one")
	seedEntry(t, e, "other", "two")

	// Pattern matches both namespaces, namespace narrows it to one.
	res, err := e.Invalidate(ctx, Criteria{Pattern: "*", Namespace: "ns", Reason: "and"})
	require.NoError(t, err)
	require.Equal(t, 1, res.InvalidatedCount)
	require.False(t, lookupBy(t, e, "ns", "one").Hit)
	require.True(t, lookupBy(t, e, "other", "two").Hit)
}

func TestInvalidateAppendsOneAuditRecord(t *testing.T) {
	ctx := context.Background()
	e, _, rec := newTestEngine(t)

	seedEntry(t, e, "ns", "one")
	seedEntry(t, e, "ns", "two")

	_, err := e.Invalidate(ctx, Criteria{Pattern: "ns:*", Reason: "audit me", Actor: "keyhash"})
	require.NoError(t, err)

	recs, err := rec.Recent(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, 2, recs[0].MatchedCount)
	require.Equal(t, "audit me", recs[0].Reason)
	require.Equal(t, "keyhash", recs[0].ActorKeyHash)
	require.Equal(t, "ns:*", recs[0].Criteria.Pattern)
	require.NotEmpty(t, recs[0].ID)

	// A call matching nothing still records once.
	_, err = e.Invalidate(ctx, Criteria{Pattern: "nothing:*", Reason: "empty"})
	require.NoError(t, err)
	recs, err = rec.Recent(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
}
