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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/probelabs/deepscout/internal/activities"
	"github.com/probelabs/deepscout/internal/config"
	"github.com/probelabs/deepscout/internal/db"
	"github.com/probelabs/deepscout/internal/health"
	"github.com/probelabs/deepscout/internal/httpapi"
	"github.com/probelabs/deepscout/internal/llm"
	"github.com/probelabs/deepscout/internal/search"
	"github.com/probelabs/deepscout/internal/streaming"
	"github.com/probelabs/deepscout/internal/workflows"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "deepscout: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to deepscout.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Service.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Optional Postgres persistence.
	var store *db.Client
	if cfg.Postgres.Enabled {
		store, err = db.NewClient(cfg.Postgres, logger)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer store.Close()
		logger.Info("postgres persistence enabled", zap.String("host", cfg.Postgres.Host))
	}

	// Optional Redis event fan-out.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		defer redisClient.Close()
		logger.Info("redis event publishing enabled", zap.String("addr", cfg.Redis.Addr))
	}
	stream := streaming.NewManager(256, redisClient, logger)

	reasoner := llm.NewService(cfg.LLM, logger)
	searcher := search.NewClient(cfg.Search, logger)

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    zapAdapter{logger.Sugar()},
	})
	if err != nil {
		return fmt.Errorf("temporal: %w", err)
	}
	defer temporalClient.Close()

	acts := activities.NewActivities(reasoner, searcher, store, stream, cfg.Research, logger)

	w := worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.ResearchWorkflow)
	w.RegisterActivity(acts.ClarifyQuery)
	w.RegisterActivity(acts.PlanResearch)
	w.RegisterActivity(acts.GenerateSearchQueries)
	w.RegisterActivity(acts.RetrieveSources)
	w.RegisterActivity(acts.SummarizeSource)
	w.RegisterActivity(acts.CombineSummaries)
	w.RegisterActivity(acts.EvaluateProgress)
	w.RegisterActivity(acts.GenerateReport)
	w.RegisterActivity(acts.PersistRun)
	w.RegisterActivity(acts.PersistCycle)
	w.RegisterActivity(acts.EmitResearchEvent)

	if err := w.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer w.Stop()

	mux := http.NewServeMux()
	httpapi.NewHandler(temporalClient, store, stream, cfg, logger).Register(mux)
	health.NewHandler(logger, healthCheckers(temporalClient, store, redisClient)...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("deepscout listening",
			zap.Int("port", cfg.Service.Port),
			zap.String("task_queue", cfg.Temporal.TaskQueue),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serveErr:
		logger.Error("http server failed", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	return nil
}

func healthCheckers(temporalClient client.Client, store *db.Client, redisClient *redis.Client) []health.Checker {
	checkers := []health.Checker{{
		Name:     "temporal",
		Critical: true,
		Check: func(ctx context.Context) error {
			_, err := temporalClient.CheckHealth(ctx, &client.CheckHealthRequest{})
			return err
		},
	}}
	if store != nil {
		checkers = append(checkers, health.Checker{
			Name:  "postgres",
			Check: func(ctx context.Context) error { return store.Ping(ctx) },
		})
	}
	if redisClient != nil {
		checkers = append(checkers, health.Checker{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	return checkers
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// zapAdapter bridges the Temporal SDK logger interface onto zap.
type zapAdapter struct {
	s *zap.SugaredLogger
}

func (z zapAdapter) Debug(msg string, keyvals ...interface{}) { z.s.Debugw(msg, keyvals...) }
func (z zapAdapter) Info(msg string, keyvals ...interface{})  { z.s.Infow(msg, keyvals...) }
func (z zapAdapter) Warn(msg string, keyvals ...interface{})  { z.s.Warnw(msg, keyvals...) }
func (z zapAdapter) Error(msg string, keyvals ...interface{}) { z.s.Errorw(msg, keyvals...) }
