// cmd/worker/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/agentcache/agentcache/internal/audit"
	"github.com/agentcache/agentcache/internal/cache"
	"github.com/agentcache/agentcache/internal/config"
	"github.com/agentcache/agentcache/internal/jobs"
	"github.com/agentcache/agentcache/internal/monitor"
	"github.com/agentcache/agentcache/internal/observe"
	"github.com/agentcache/agentcache/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	st := store.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	defer func() { _ = st.Close() }()

	var recorder audit.Recorder = audit.NewMemory()
	if cfg.HasAuditDB() {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatal("unable to connect to database:", err)
		}
		defer pool.Close()
		pg := audit.NewPG(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			log.Fatal("audit schema:", err)
		}
		recorder = pg
	}

	engine := cache.New(cache.Options{
		Store:           st,
		Audit:           recorder,
		Logger:          logger,
		Metrics:         observe.NewNop(),
		DefaultTTL:      time.Duration(cfg.Cache.DefaultTTLSeconds) * time.Second,
		CostPerEntryUSD: cfg.Cache.CostPerEntryUSD,
	})
	mon := monitor.New(monitor.Options{
		Store:       st,
		Engine:      engine,
		Logger:      logger,
		Client:      &http.Client{Timeout: time.Duration(cfg.Monitor.FetchTimeoutSeconds) * time.Second},
		Concurrency: cfg.Monitor.SweepConcurrency,
	})
	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    4,
		StrictPriority: false,
		Queues: map[string]int{
			"monitor": 10, // sweeps should not starve behind housekeeping
			"default": 5,
		},
	})
	mux := asynq.NewServeMux()

	mux.HandleFunc(jobs.TaskSweepListeners, func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		stats, err := mon.Sweep(ctx)
		duration := time.Since(start)
		if err != nil {
			if isRetryableError(err) {
				log.Printf("[sweep] retryable error duration=%v: %v", duration, err)
				return err // allow retry
			}
			log.Printf("[sweep] permanent error duration=%v: %v (dropping job)", duration, err)
			return nil
		}
		log.Printf("[sweep] done checked=%d changed=%d failed=%d duration=%v",
			stats.Checked, stats.Changed, stats.Failed, duration)
		return nil
	})

	mux.HandleFunc(jobs.TaskPurgeAudit, func(ctx context.Context, t *asynq.Task) error {
		purged, err := recorder.Purge(ctx, time.Now().Add(-audit.RetentionPeriod))
		if err != nil {
			log.Printf("[purge] error: %v", err)
			return err
		}
		log.Printf("[purge] removed %d expired invalidation records", purged)
		return nil
	})

	scheduler := asynq.NewScheduler(redisOpt, nil)
	if _, err := scheduler.Register("@every 1m",
		asynq.NewTask(jobs.TaskSweepListeners, nil), asynq.Queue("monitor")); err != nil {
		log.Fatal("register sweep schedule:", err)
	}
	if _, err := scheduler.Register("@daily",
		asynq.NewTask(jobs.TaskPurgeAudit, nil)); err != nil {
		log.Fatal("register purge schedule:", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatal("scheduler:", err)
	}
	defer scheduler.Shutdown()

	log.Println("Worker running...")
	log.Fatal(srv.Run(mux))
}

// isRetryableError determines if a sweep failure should trigger a job retry
func isRetryableError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "dns")
}
