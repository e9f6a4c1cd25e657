// Package routes wires the engine's operations onto a chi router. The
// router is a thin JSON shell: validation, auth and rate limiting live in
// middleware and the packages under internal; no caching logic lives here.
package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/agentcache/agentcache/internal/audit"
	"github.com/agentcache/agentcache/internal/cache"
	appmw "github.com/agentcache/agentcache/internal/http/middleware"
	"github.com/agentcache/agentcache/internal/limits"
	"github.com/agentcache/agentcache/internal/monitor"
	"github.com/agentcache/agentcache/internal/store"
)

type Server struct {
	Router  *chi.Mux
	Engine  *cache.Engine
	Monitor *monitor.Monitor
	Limiter *limits.Limiter
	Audit   audit.Recorder
	Store   store.Store
	Log     zerolog.Logger
}

type ServerOptions struct {
	Engine  *cache.Engine
	Monitor *monitor.Monitor
	Limiter *limits.Limiter
	Audit   audit.Recorder
	Store   store.Store
	Log     zerolog.Logger
}

func New(opts ServerOptions) *Server {
	s := &Server{
		Router:  chi.NewRouter(),
		Engine:  opts.Engine,
		Monitor: opts.Monitor,
		Limiter: opts.Limiter,
		Audit:   opts.Audit,
		Store:   opts.Store,
		Log:     opts.Log,
	}

	r := s.Router
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(appmw.RequireAPIKey)
		r.Post("/lookup", s.handleLookup)
		r.Post("/store", s.handleStore)
		r.Post("/invalidate", s.handleInvalidate)
		r.Post("/listeners", s.handleRegisterListener)
		r.Get("/listeners", s.handleListListeners)
		r.Delete("/listeners/{id}", s.handleUnregisterListener)
		r.Get("/usage", s.handleUsage)
		r.Get("/audit", s.handleAudit)
	})

	return s
}

type requestBody struct {
	Namespace string          `json:"namespace,omitempty"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	Messages  []cache.Message `json:"messages"`
	Params    map[string]any  `json:"params,omitempty"`
	Key       string          `json:"key,omitempty"`

	// store-only fields
	Value      json.RawMessage `json:"value,omitempty"`
	TTLSeconds int             `json:"ttlSeconds,omitempty"`
	SourceURL  string          `json:"sourceUrl,omitempty"`
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	keyHash := appmw.KeyHash(r.Context())
	if !s.allow(w, r, keyHash) {
		return
	}

	res, err := s.Engine.Lookup(r.Context(), cache.LookupRequest{
		Namespace:   body.Namespace,
		Provider:    body.Provider,
		Model:       body.Model,
		Messages:    body.Messages,
		Params:      body.Params,
		KeyOverride: body.Key,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	s.Limiter.RecordOutcome(r.Context(), keyHash, res.Hit)

	out := map[string]any{
		"hit": res.Hit,
		"key": res.Key,
	}
	if res.Hit {
		out["value"] = json.RawMessage(res.Value)
		out["freshness"] = res.Freshness
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if len(body.Value) == 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "value is required")
		return
	}
	keyHash := appmw.KeyHash(r.Context())
	if !s.allow(w, r, keyHash) {
		return
	}

	key, err := s.Engine.Store(r.Context(), cache.StoreRequest{
		Namespace:   body.Namespace,
		Provider:    body.Provider,
		Model:       body.Model,
		Messages:    body.Messages,
		Params:      body.Params,
		KeyOverride: body.Key,
		Value:       body.Value,
		TTL:         time.Duration(body.TTLSeconds) * time.Second,
		SourceURL:   body.SourceURL,
	})
	if err != nil {
		// The caller already has its freshly computed response; a cache
		// write fault is reported, not fatal.
		s.Log.Warn().Err(err).Msg("cache store failed")
		writeJSON(w, http.StatusOK, map[string]any{"stored": false, "key": key})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"stored": true, "key": key})
}

type invalidateBody struct {
	Pattern     string `json:"pattern,omitempty"`
	Namespace   string `json:"namespace,omitempty"`
	OlderThanMs int64  `json:"olderThanMs,omitempty"`
	URL         string `json:"url,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var body invalidateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	res, err := s.Engine.Invalidate(r.Context(), cache.Criteria{
		Pattern:     body.Pattern,
		Namespace:   body.Namespace,
		OlderThanMs: body.OlderThanMs,
		URL:         body.URL,
		Reason:      body.Reason,
		Actor:       appmw.KeyHash(r.Context()),
	})
	if err != nil {
		var verr *cache.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, "validation_error", verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "invalidate_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type registerListenerBody struct {
	URL                string `json:"url"`
	CheckIntervalMs    int64  `json:"checkIntervalMs,omitempty"`
	Namespace          string `json:"namespace,omitempty"`
	InvalidateOnChange bool   `json:"invalidateOnChange"`
	WebhookURL         string `json:"webhookUrl,omitempty"`
}

func (s *Server) handleRegisterListener(w http.ResponseWriter, r *http.Request) {
	var body registerListenerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	id, err := s.Monitor.Register(r.Context(), monitor.RegisterInput{
		URL:                body.URL,
		IntervalMs:         body.CheckIntervalMs,
		Namespace:          body.Namespace,
		InvalidateOnChange: body.InvalidateOnChange,
		WebhookURL:         body.WebhookURL,
		Owner:              appmw.KeyHash(r.Context()),
	})
	if err != nil {
		var verr *monitor.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, "validation_error", verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "register_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"listenerId": id})
}

func (s *Server) handleListListeners(w http.ResponseWriter, r *http.Request) {
	ls, err := s.Monitor.List(r.Context(), appmw.KeyHash(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	if ls == nil {
		ls = []monitor.Listener{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"listeners": ls})
}

func (s *Server) handleUnregisterListener(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Monitor.Unregister(r.Context(), id); err != nil {
		if errors.Is(err, monitor.ErrListenerNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "unknown listener")
			return
		}
		writeError(w, http.StatusInternalServerError, "unregister_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	u, err := s.Limiter.Usage(r.Context(), appmw.KeyHash(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "usage_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	recs, err := s.Audit.Recent(r.Context(), time.Now().Add(-audit.RetentionPeriod))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit_failed", err.Error())
		return
	}
	if recs == nil {
		recs = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store_unreachable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// allow runs both limit windows, writing the structured 429 body on
// rejection. Returns false when the request must stop.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, keyHash string) bool {
	err := s.Limiter.Allow(r.Context(), keyHash, appmw.Tier(r.Context()))
	if err == nil {
		return true
	}

	var rerr *limits.RateLimitError
	if errors.As(err, &rerr) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":     "rate_limit_exceeded",
			"limit":     rerr.Limit,
			"remaining": rerr.Remaining,
			"resetAt":   rerr.ResetAt.UTC().Format(time.RFC3339),
		})
		return false
	}
	var qerr *limits.QuotaError
	if errors.As(err, &qerr) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":     "quota_exceeded",
			"quota":     qerr.Quota,
			"used":      qerr.Used,
			"remaining": qerr.Remaining,
		})
		return false
	}
	writeError(w, http.StatusInternalServerError, "limiter_failed", err.Error())
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}
