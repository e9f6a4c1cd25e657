package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/agentcache/agentcache/internal/cache"
)

// maxFetchBytes bounds how much of a monitored page is read.
const maxFetchBytes = 2 << 20

// SweepStats summarizes one sweep over the listener registry.
type SweepStats struct {
	Checked int
	Skipped int
	Changed int
	Failed  int
}

// Sweep checks every due listener once. Listeners are processed with
// bounded concurrency; one listener's failure never aborts the others, so
// the returned error covers only registry-level faults.
func (m *Monitor) Sweep(ctx context.Context) (SweepStats, error) {
	keys, err := m.store.Scan(ctx, "listener:*")
	if err != nil {
		return SweepStats{}, fmt.Errorf("scan listeners: %w", err)
	}

	results := make([]sweepOutcome, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, k := range keys {
		g.Go(func() error {
			results[i] = m.checkOne(gctx, strings.TrimPrefix(k, "listener:"))
			return nil
		})
	}
	_ = g.Wait()

	var stats SweepStats
	for _, r := range results {
		switch r {
		case outcomeSkipped:
			stats.Skipped++
		case outcomeUnchanged:
			stats.Checked++
		case outcomeChanged:
			stats.Checked++
			stats.Changed++
		case outcomeFailed:
			stats.Checked++
			stats.Failed++
		}
	}
	m.log.Info().
		Int("checked", stats.Checked).
		Int("skipped", stats.Skipped).
		Int("changed", stats.Changed).
		Int("failed", stats.Failed).
		Msg("sweep complete")
	return stats, nil
}

type sweepOutcome int

const (
	outcomeSkipped sweepOutcome = iota
	outcomeUnchanged
	outcomeChanged
	outcomeFailed
)

// checkOne runs the Registered -> Checking -> {Unchanged|Changed} cycle for
// a single listener.
func (m *Monitor) checkOne(ctx context.Context, id string) sweepOutcome {
	l, err := m.load(ctx, id)
	if err != nil {
		m.log.Warn().Err(err).Str("listener", id).Msg("listener load failed")
		return outcomeSkipped
	}
	if !l.Enabled {
		return outcomeSkipped
	}
	nowMs := m.now().UnixMilli()
	if l.LastCheckAt > 0 && nowMs-l.LastCheckAt < l.CheckIntervalMs {
		return outcomeSkipped
	}

	body, err := m.fetch(ctx, l.URL)
	if err != nil {
		// Fetch failure: advance lastCheckAt so a dead URL is not
		// hot-looped, keep the hash, trigger nothing.
		m.log.Warn().Err(err).Str("listener", l.ID).Str("url", l.URL).Msg("content fetch failed")
		m.metrics.SweepFailure(ctx)
		l.LastCheckAt = nowMs
		if err := m.save(ctx, *l); err != nil {
			m.log.Warn().Err(err).Str("listener", l.ID).Msg("listener save failed")
		}
		return outcomeFailed
	}

	newHash := SemanticHash(body)
	oldHash := l.LastContentHash
	l.LastContentHash = newHash
	l.LastCheckAt = nowMs
	if err := m.save(ctx, *l); err != nil {
		m.log.Warn().Err(err).Str("listener", l.ID).Msg("listener save failed")
	}

	// First observation seeds the hash; seeing content is not a change.
	if oldHash == "" || oldHash == newHash {
		return outcomeUnchanged
	}

	m.metrics.SweepChange(ctx)
	m.log.Info().
		Str("listener", l.ID).
		Str("url", l.URL).
		Str("oldHash", oldHash).
		Str("newHash", newHash).
		Msg("upstream content changed")

	if l.InvalidateOnChange {
		res, err := m.engine.Invalidate(ctx, cache.Criteria{
			Namespace: l.Namespace,
			Reason:    "url_change:" + l.URL,
			Actor:     "content-monitor",
		})
		if err != nil {
			m.log.Warn().Err(err).Str("listener", l.ID).Msg("change-driven invalidation failed")
		} else {
			m.log.Info().Str("listener", l.ID).Int("invalidated", res.InvalidatedCount).Msg("namespace invalidated")
		}
	}
	if l.WebhookURL != "" {
		m.notify(ctx, l, oldHash, newHash)
	}
	return outcomeChanged
}

func (m *Monitor) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "agentcache-monitor/1.0")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return body, nil
}
