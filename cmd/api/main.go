// cmd/api/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/otel"

	"github.com/agentcache/agentcache/internal/audit"
	"github.com/agentcache/agentcache/internal/cache"
	"github.com/agentcache/agentcache/internal/config"
	"github.com/agentcache/agentcache/internal/http/routes"
	"github.com/agentcache/agentcache/internal/limits"
	"github.com/agentcache/agentcache/internal/monitor"
	"github.com/agentcache/agentcache/internal/observe"
	"github.com/agentcache/agentcache/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	log.Printf("starting api on :%s", cfg.Port)

	// Shared store
	st := store.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	defer func() { _ = st.Close() }()

	// Audit recorder: Postgres when configured, in-memory otherwise
	var recorder audit.Recorder = audit.NewMemory()
	if cfg.HasAuditDB() {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db error: %v", err)
		}
		defer pool.Close()
		pg := audit.NewPG(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("db schema error: %v", err)
		}
		recorder = pg
	}

	metrics, err := observe.New(otel.Meter("agentcache"))
	if err != nil {
		log.Fatalf("metrics error: %v", err)
	}

	engine := cache.New(cache.Options{
		Store:           st,
		Audit:           recorder,
		Logger:          logger,
		Metrics:         metrics,
		DefaultTTL:      time.Duration(cfg.Cache.DefaultTTLSeconds) * time.Second,
		CostPerEntryUSD: cfg.Cache.CostPerEntryUSD,
	})

	mon := monitor.New(monitor.Options{
		Store:       st,
		Engine:      engine,
		Logger:      logger,
		Metrics:     metrics,
		Client:      &http.Client{Timeout: time.Duration(cfg.Monitor.FetchTimeoutSeconds) * time.Second},
		Concurrency: cfg.Monitor.SweepConcurrency,
	})

	limiter := limits.New(st, limits.Config{
		DemoPerMinute: cfg.Limits.DemoPerMinute,
		LivePerMinute: cfg.Limits.LivePerMinute,
		DemoMonthly:   cfg.Limits.DemoMonthly,
		LiveMonthly:   cfg.Limits.LiveMonthly,
	})

	s := routes.New(routes.ServerOptions{
		Engine:  engine,
		Monitor: mon,
		Limiter: limiter,
		Audit:   recorder,
		Store:   st,
		Log:     logger,
	})
	h := hlog.NewHandler(logger)(s.Router)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	log.Fatal(srv.ListenAndServe())
}
