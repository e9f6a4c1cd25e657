package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/agentcache/agentcache/internal/audit"
	"github.com/agentcache/agentcache/internal/cache"
	"github.com/agentcache/agentcache/internal/limits"
	"github.com/agentcache/agentcache/internal/monitor"
	"github.com/agentcache/agentcache/internal/store"
)

func newTestServer(t *testing.T, cfg limits.Config) *Server {
	t.Helper()
	st := store.NewMemory()
	rec := audit.NewMemory()
	engine := cache.New(cache.Options{
		Store:           st,
		Audit:           rec,
		Logger:          zerolog.Nop(),
		CostPerEntryUSD: 0.002,
	})
	mon := monitor.New(monitor.Options{
		Store:  st,
		Engine: engine,
		Logger: zerolog.Nop(),
	})
	return New(ServerOptions{
		Engine:  engine,
		Monitor: mon,
		Limiter: limits.New(st, cfg),
		Audit:   rec,
		Store:   st,
		Log:     zerolog.Nop(),
	})
}

func defaultLimits() limits.Config {
	return limits.Config{
		DemoPerMinute: 100,
		LivePerMinute: 100,
		DemoMonthly:   100000,
		LiveMonthly:   100000,
	}
}

func doJSON(t *testing.T, s *Server, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func lookupBody() map[string]any {
	return map[string]any{
		"namespace": "prod",
		"provider":  "openai",
		"model":     "gpt-4o",
		"messages":  []map[string]string{{"role": "user", "content": "hello"}},
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, defaultLimits())

	w := doJSON(t, s, http.MethodPost, "/v1/lookup", "", lookupBody())
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, s, http.MethodPost, "/v1/lookup", "bogus_key", lookupBody())
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLookupStoreRoundTrip(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	key := "sk_live_abc123"

	w := doJSON(t, s, http.MethodPost, "/v1/lookup", key, lookupBody())
	require.Equal(t, http.StatusOK, w.Code)
	var miss struct {
		Hit bool   `json:"hit"`
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &miss))
	require.False(t, miss.Hit)
	require.NotEmpty(t, miss.Key)

	storeBody := lookupBody()
	storeBody["value"] = map[string]string{"completion": "hi there"}
	storeBody["ttlSeconds"] = 3600
	w = doJSON(t, s, http.MethodPost, "/v1/store", key, storeBody)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, http.MethodPost, "/v1/lookup", key, lookupBody())
	require.Equal(t, http.StatusOK, w.Code)
	var hit struct {
		Hit       bool            `json:"hit"`
		Key       string          `json:"key"`
		Value     json.RawMessage `json:"value"`
		Freshness cache.Freshness `json:"freshness"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hit))
	require.True(t, hit.Hit)
	require.Equal(t, miss.Key, hit.Key)
	require.JSONEq(t, `{"completion":"hi there"}`, string(hit.Value))
	require.Equal(t, cache.StatusFresh, hit.Freshness.Status)
}

func TestInvalidateEndpoint(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	key := "sk_live_abc123"

	storeBody := lookupBody()
	storeBody["value"] = "cached"
	w := doJSON(t, s, http.MethodPost, "/v1/store", key, storeBody)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, http.MethodPost, "/v1/invalidate", key, map[string]any{
		"namespace": "prod",
		"reason":    "deploy",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var res cache.InvalidationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, 1, res.InvalidatedCount)

	w = doJSON(t, s, http.MethodPost, "/v1/lookup", key, lookupBody())
	var miss struct {
		Hit bool `json:"hit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &miss))
	require.False(t, miss.Hit)

	// Audit surface shows the call.
	w = doJSON(t, s, http.MethodGet, "/v1/audit", key, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var auditOut struct {
		Records []audit.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &auditOut))
	require.Len(t, auditOut.Records, 1)
	require.Equal(t, "deploy", auditOut.Records[0].Reason)
}

func TestInvalidateEmptyCriteriaRejected(t *testing.T) {
	s := newTestServer(t, defaultLimits())

	w := doJSON(t, s, http.MethodPost, "/v1/invalidate", "sk_live_abc123", map[string]any{
		"reason": "oops",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "validation_error")
}

func TestRateLimitResponseShape(t *testing.T) {
	cfg := defaultLimits()
	cfg.DemoPerMinute = 2
	s := newTestServer(t, cfg)
	key := "sk_demo_xyz"

	for i := 0; i < 2; i++ {
		w := doJSON(t, s, http.MethodPost, "/v1/lookup", key, lookupBody())
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doJSON(t, s, http.MethodPost, "/v1/lookup", key, lookupBody())
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var body struct {
		Error     string `json:"error"`
		Limit     int    `json:"limit"`
		Remaining int    `json:"remaining"`
		ResetAt   string `json:"resetAt"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "rate_limit_exceeded", body.Error)
	require.Equal(t, 2, body.Limit)
	require.Equal(t, 0, body.Remaining)
	require.NotEmpty(t, body.ResetAt)
}

func TestQuotaResponseShape(t *testing.T) {
	cfg := defaultLimits()
	cfg.DemoMonthly = 1
	s := newTestServer(t, cfg)
	key := "sk_demo_xyz"

	w := doJSON(t, s, http.MethodPost, "/v1/lookup", key, lookupBody())
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPost, "/v1/lookup", key, lookupBody())
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var body struct {
		Error     string `json:"error"`
		Quota     int64  `json:"quota"`
		Used      int64  `json:"used"`
		Remaining int64  `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "quota_exceeded", body.Error)
	require.Equal(t, int64(1), body.Quota)
	require.Equal(t, int64(2), body.Used)
}

func TestListenerLifecycle(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	key := "sk_live_abc123"

	w := doJSON(t, s, http.MethodPost, "/v1/listeners", key, map[string]any{
		"url":                "https://example.com/pricing",
		"namespace":          "prod",
		"invalidateOnChange": true,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ListenerID string `json:"listenerId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ListenerID)

	w = doJSON(t, s, http.MethodGet, "/v1/listeners", key, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Listeners []monitor.Listener `json:"listeners"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Listeners, 1)

	// Another key's scope sees nothing.
	w = doJSON(t, s, http.MethodGet, "/v1/listeners", "sk_live_other", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Empty(t, listed.Listeners)

	w = doJSON(t, s, http.MethodDelete, "/v1/listeners/"+created.ListenerID, key, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, s, http.MethodDelete, "/v1/listeners/nonexistent", key, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListenerValidation(t *testing.T) {
	s := newTestServer(t, defaultLimits())

	w := doJSON(t, s, http.MethodPost, "/v1/listeners", "sk_live_abc", map[string]any{
		"url": "not-a-url",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "validation_error")
}

func TestUsageEndpoint(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	key := "sk_live_abc123"

	doJSON(t, s, http.MethodPost, "/v1/lookup", key, lookupBody())

	w := doJSON(t, s, http.MethodGet, "/v1/usage", key, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var u limits.Usage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	require.Equal(t, int64(1), u.Used)
	require.Equal(t, int64(1), u.Misses)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	w := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
