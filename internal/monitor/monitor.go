// Package monitor watches registered URLs for upstream content change and
// drives cache invalidation when a change lands. Sweeps are scheduled
// externally (the worker); everything here is idempotent and safe to run
// concurrently across disjoint listeners.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentcache/agentcache/internal/cache"
	"github.com/agentcache/agentcache/internal/observe"
	"github.com/agentcache/agentcache/internal/store"
)

// Listener is a registered URL plus the policy for reacting to change.
type Listener struct {
	ID                 string `json:"id"`
	URL                string `json:"url"`
	CheckIntervalMs    int64  `json:"checkIntervalMs"`
	Namespace          string `json:"namespace"`
	InvalidateOnChange bool   `json:"invalidateOnChange"`
	WebhookURL         string `json:"webhookUrl,omitempty"`
	// Owner scopes listing to the registering key's hash.
	Owner           string `json:"owner,omitempty"`
	LastCheckAt     int64  `json:"lastCheckAt"` // epoch ms, zero before first check
	LastContentHash string `json:"lastContentHash,omitempty"`
	Enabled         bool   `json:"enabled"`
}

// ValidationError reports malformed registration input, rejected before
// any store access.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ErrListenerNotFound is returned for operations on unknown listener IDs.
var ErrListenerNotFound = errors.New("listener not found")

// Invalidator is the slice of the cache engine the monitor needs.
type Invalidator interface {
	Invalidate(ctx context.Context, c cache.Criteria) (cache.InvalidationResult, error)
}

// Options configures a Monitor.
type Options struct {
	Store       store.Store
	Engine      Invalidator
	Logger      zerolog.Logger
	Metrics     *observe.Metrics
	Client      *http.Client
	Concurrency int
}

// Monitor owns the listener registry and the sweep loop body.
type Monitor struct {
	store       store.Store
	engine      Invalidator
	log         zerolog.Logger
	metrics     *observe.Metrics
	client      *http.Client
	concurrency int
	now         func() time.Time
}

const defaultCheckInterval = 5 * time.Minute

// New creates a Monitor. Store and Engine are required.
func New(opts Options) *Monitor {
	m := &Monitor{
		store:       opts.Store,
		engine:      opts.Engine,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		client:      opts.Client,
		concurrency: opts.Concurrency,
		now:         time.Now,
	}
	if m.client == nil {
		m.client = &http.Client{Timeout: 20 * time.Second}
	}
	if m.concurrency <= 0 {
		m.concurrency = 8
	}
	return m
}

// RegisterInput is the registration surface's payload.
type RegisterInput struct {
	URL                string
	IntervalMs         int64
	Namespace          string
	InvalidateOnChange bool
	WebhookURL         string
	Owner              string
}

// Register validates and persists a new listener, returning its ID.
func (m *Monitor) Register(ctx context.Context, in RegisterInput) (string, error) {
	if err := validateURL(in.URL); err != nil {
		return "", err
	}
	if in.WebhookURL != "" {
		if err := validateURL(in.WebhookURL); err != nil {
			return "", err
		}
	}
	if in.Namespace == "" {
		in.Namespace = cache.DefaultNamespace
	}
	if in.IntervalMs <= 0 {
		in.IntervalMs = defaultCheckInterval.Milliseconds()
	}

	l := Listener{
		ID:                 uuid.NewString(),
		URL:                in.URL,
		CheckIntervalMs:    in.IntervalMs,
		Namespace:          in.Namespace,
		InvalidateOnChange: in.InvalidateOnChange,
		WebhookURL:         in.WebhookURL,
		Owner:              in.Owner,
		Enabled:            true,
	}
	if err := m.save(ctx, l); err != nil {
		return "", err
	}
	m.log.Info().Str("listener", l.ID).Str("url", l.URL).Str("namespace", l.Namespace).Msg("listener registered")
	return l.ID, nil
}

// Unregister disables a listener. Disabled is terminal: the record stays
// for auditability but sweeps skip it permanently.
func (m *Monitor) Unregister(ctx context.Context, id string) error {
	l, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	l.Enabled = false
	if err := m.save(ctx, *l); err != nil {
		return err
	}
	m.log.Info().Str("listener", id).Msg("listener disabled")
	return nil
}

// List returns listeners, optionally filtered to one owner scope.
func (m *Monitor) List(ctx context.Context, owner string) ([]Listener, error) {
	keys, err := m.store.Scan(ctx, "listener:*")
	if err != nil {
		return nil, fmt.Errorf("scan listeners: %w", err)
	}
	var out []Listener
	for _, k := range keys {
		b, ok, err := m.store.Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		var l Listener
		if err := json.Unmarshal(b, &l); err != nil {
			m.log.Warn().Err(err).Str("key", k).Msg("corrupt listener record skipped")
			continue
		}
		if owner != "" && l.Owner != owner {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *Monitor) load(ctx context.Context, id string) (*Listener, error) {
	b, ok, err := m.store.Get(ctx, listenerKey(id))
	if err != nil {
		return nil, fmt.Errorf("load listener %s: %w", id, err)
	}
	if !ok {
		return nil, ErrListenerNotFound
	}
	var l Listener
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, fmt.Errorf("decode listener %s: %w", id, err)
	}
	return &l, nil
}

func (m *Monitor) save(ctx context.Context, l Listener) error {
	b, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode listener %s: %w", l.ID, err)
	}
	if err := m.store.SetEx(ctx, listenerKey(l.ID), b, 0); err != nil {
		return fmt.Errorf("save listener %s: %w", l.ID, err)
	}
	return nil
}

func listenerKey(id string) string { return "listener:" + id }

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Msg: fmt.Sprintf("malformed url %q", raw)}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Msg: fmt.Sprintf("url %q must be absolute http(s)", raw)}
	}
	return nil
}
