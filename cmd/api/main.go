package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"walkforward-backtest/internal/api"
	"walkforward-backtest/internal/config"
	"walkforward-backtest/internal/data"
	"walkforward-backtest/internal/jobs"
	"walkforward-backtest/internal/logging"
	"walkforward-backtest/internal/service"
	"walkforward-backtest/internal/telemetry"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config (optional)")
	maxJobs := flag.Int("max-jobs", 2, "Maximum concurrently running jobs")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *maxJobs, log); err != nil {
		log.Fatal().Err(err).Msg("api server stopped")
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadUnchecked(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, maxJobs int, log zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := telemetry.New(reg)

	store, closeStore, err := openStore(ctx, cfg.Store, rec, log)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer closeStore()

	cacheTTL, err := config.ParseWindow(cfg.Data.CacheTTL)
	if err != nil {
		return fmt.Errorf("data.cache_ttl: %w", err)
	}
	cache := data.NewSeriesCache(cacheTTL)
	if cacheTTL > 0 {
		go cache.Janitor(ctx, cacheTTL/2)
	}

	svc := service.New(cfg, cache, rec, log)
	runner := jobs.NewRunner(store, maxJobs, rec, log)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Config:   cfg,
		Service:  svc,
		Runner:   runner,
		Recorder: rec,
		Gatherer: reg,
		Log:      log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.Store.Backend).Str("env", cfg.Server.Env).Msg("starting api server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("jobs did not finish before shutdown deadline")
	}
	return nil
}

// openStore builds the configured job store. Remote stores sit behind a
// circuit breaker.
func openStore(ctx context.Context, cfg config.StoreConfig, rec *telemetry.Recorder, log zerolog.Logger) (jobs.Store, func(), error) {
	switch cfg.Backend {
	case "redis":
		ttl, err := config.ParseWindow(cfg.JobTTL)
		if err != nil {
			return nil, nil, err
		}
		client, err := jobs.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		store := jobs.NewRedisStore(client, cfg.RedisPrefix, ttl)
		return jobs.NewBreakerStore(store, jobs.DefaultBreakerConfig("redis"), rec, log), func() { _ = client.Close() }, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("store.database_url is required for the postgres backend")
		}
		db, err := jobs.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := jobs.NewPostgresStore(db, 5*time.Second)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return jobs.NewBreakerStore(store, jobs.DefaultBreakerConfig("postgres"), rec, log), func() { _ = db.Close() }, nil
	default:
		return jobs.NewMemoryStore(), func() {}, nil
	}
}
