// Package cache implements the consistency and freshness engine: key
// derivation, per-entry metadata, freshness classification, and bulk
// invalidation. It holds no process-local entry state; everything durable
// lives in the external store so any replica can serve any request.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentcache/agentcache/internal/audit"
	"github.com/agentcache/agentcache/internal/observe"
	"github.com/agentcache/agentcache/internal/store"
)

// DefaultTTL applies when a store call carries no TTL.
const DefaultTTL = 604800 * time.Second // 7 days

// Options configures an Engine.
type Options struct {
	Store   store.Store
	Audit   audit.Recorder
	Logger  zerolog.Logger
	Metrics *observe.Metrics

	// DefaultTTL falls back to DefaultTTL when zero.
	DefaultTTL time.Duration
	// CostPerEntryUSD feeds the informational cost impact on invalidation.
	CostPerEntryUSD float64
}

// Engine is the cache consistency and freshness engine.
type Engine struct {
	store        store.Store
	audit        audit.Recorder
	log          zerolog.Logger
	metrics      *observe.Metrics
	defaultTTL   time.Duration
	costPerEntry float64

	now func() time.Time

	// touchWG tracks in-flight best-effort touches so tests can drain them.
	touchWG sync.WaitGroup
}

// New creates an Engine. Store is required; Audit defaults to an in-memory
// recorder.
func New(opts Options) *Engine {
	e := &Engine{
		store:        opts.Store,
		audit:        opts.Audit,
		log:          opts.Logger,
		metrics:      opts.Metrics,
		defaultTTL:   opts.DefaultTTL,
		costPerEntry: opts.CostPerEntryUSD,
		now:          time.Now,
	}
	if e.audit == nil {
		e.audit = audit.NewMemory()
	}
	if e.defaultTTL <= 0 {
		e.defaultTTL = DefaultTTL
	}
	return e
}

// LookupRequest identifies the entry to look up.
type LookupRequest struct {
	Namespace string
	Provider  string
	Model     string
	Messages  []Message
	Params    map[string]any
	// KeyOverride bypasses fingerprinting (still namespace-prefixed).
	KeyOverride string
}

// LookupResult is the outcome of a cache read.
type LookupResult struct {
	Hit       bool      `json:"hit"`
	Key       string    `json:"key"`
	Value     []byte    `json:"value,omitempty"`
	Freshness Freshness `json:"freshness"`
}

// Lookup resolves a request to hit/stale/miss. Store read failures degrade
// to a miss so a cache outage can never fail the caller's request; expired
// entries also read as misses (no eager purge, the TTL on the value reaps
// them).
func (e *Engine) Lookup(ctx context.Context, req LookupRequest) (LookupResult, error) {
	key := DeriveKey(KeyInput{
		Namespace: req.Namespace,
		Provider:  req.Provider,
		Model:     req.Model,
		Messages:  req.Messages,
		Params:    req.Params,
		Override:  req.KeyOverride,
	})
	res := LookupResult{Key: key}

	value, ok, err := e.store.Get(ctx, entryKey(key))
	if err != nil {
		e.log.Warn().Err(err).Str("key", key).Msg("cache read failed, treating as miss")
		e.metrics.Miss(ctx)
		return res, nil
	}
	if !ok {
		e.metrics.Miss(ctx)
		return res, nil
	}

	md, err := readMetadata(ctx, e.store, key)
	if err != nil {
		e.log.Warn().Err(err).Str("key", key).Msg("metadata read failed, treating entry as fresh")
		md = nil
	}

	now := e.now()
	fr := Classify(md, now)
	res.Freshness = fr
	if fr.Status == StatusExpired {
		e.metrics.Miss(ctx)
		return res, nil
	}

	res.Hit = true
	res.Value = value
	e.metrics.Hit(ctx)

	e.touchWG.Add(1)
	go func() {
		defer e.touchWG.Done()
		e.touch(key, now)
	}()

	return res, nil
}

// StoreRequest carries a freshly computed value into the cache.
type StoreRequest struct {
	Namespace   string
	Provider    string
	Model       string
	Messages    []Message
	Params      map[string]any
	KeyOverride string

	Value []byte
	// TTL defaults to the engine's default when zero.
	TTL time.Duration
	// SourceURL links the entry to an upstream page for URL-scoped
	// invalidation.
	SourceURL string
}

// Store writes the value and its metadata. The two writes are not a
// transaction; a racing reader between them sees a value with no metadata,
// which classifies as fresh.
func (e *Engine) Store(ctx context.Context, req StoreRequest) (string, error) {
	key := DeriveKey(KeyInput{
		Namespace: req.Namespace,
		Provider:  req.Provider,
		Model:     req.Model,
		Messages:  req.Messages,
		Params:    req.Params,
		Override:  req.KeyOverride,
	})

	ttl := req.TTL
	if ttl <= 0 {
		ttl = e.defaultTTL
	}
	now := e.now()

	if err := e.store.SetEx(ctx, entryKey(key), req.Value, ttl); err != nil {
		return key, fmt.Errorf("store entry %s: %w", key, err)
	}
	md := Metadata{
		CachedAt:  now.UnixMilli(),
		TTLMs:     ttl.Milliseconds(),
		SourceURL: req.SourceURL,
	}
	if err := writeMetadata(ctx, e.store, key, md, ttl); err != nil {
		return key, fmt.Errorf("store metadata %s: %w", key, err)
	}
	return key, nil
}

// WaitTouches blocks until pending access-count updates finish. Test hook.
func (e *Engine) WaitTouches() {
	e.touchWG.Wait()
}
