package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/focusflow/splitd/internal/circuitbreaker"
	"github.com/focusflow/splitd/internal/classify"
	cfg "github.com/focusflow/splitd/internal/config"
	"github.com/focusflow/splitd/internal/coordinator"
	"github.com/focusflow/splitd/internal/engine"
	"github.com/focusflow/splitd/internal/httpapi"
	"github.com/focusflow/splitd/internal/reasoning"
	"github.com/focusflow/splitd/internal/store"
	"github.com/focusflow/splitd/internal/streaming"
	"github.com/focusflow/splitd/internal/tree"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	config, err := cfg.Load("")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	repo, closeRepo, err := buildRepository(config, logger)
	if err != nil {
		logger.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer closeRepo()

	leaves := classify.NewKeywordClassifier(logger)
	if path := config.Classifier.KeywordsPath; path != "" {
		if err := leaves.LoadFile(path); err != nil {
			logger.Warn("Keyword file not loaded; using built-in defaults",
				zap.String("path", path),
				zap.Error(err),
			)
		}
		watcher, err := cfg.NewWatcher(path, func() error { return leaves.LoadFile(path) }, logger)
		if err != nil {
			logger.Warn("Keyword hot reload disabled", zap.Error(err))
		} else {
			watcher.Start(ctx)
		}
	}

	reasoner := reasoning.NewHTTPClient(reasoning.ClientConfig{
		BaseURL:      config.Reasoning.BaseURL,
		Timeout:      config.ReasoningTimeout(),
		RateLimitRPS: config.Reasoning.RateLimitRPS,
		RateBurst:    config.Reasoning.RateBurst,
		Breaker: circuitbreaker.Config{
			MaxRequests:      uint32(config.Reasoning.Breaker.HalfOpenRequests),
			Interval:         time.Duration(config.Reasoning.Breaker.IntervalMs) * time.Millisecond,
			Timeout:          time.Duration(config.Reasoning.Breaker.ResetTimeoutMs) * time.Millisecond,
			FailureThreshold: uint32(config.Reasoning.Breaker.FailureThreshold),
			SuccessThreshold: uint32(config.Reasoning.Breaker.SuccessThreshold),
		},
	}, logger)

	eng := engine.New(reasoner, leaves, engine.Policy{
		AtomicMinMinutes:   config.Policy.AtomicMinMinutes,
		AtomicMaxMinutes:   config.Policy.AtomicMaxMinutes,
		MaxEstimateMinutes: config.Policy.MaxEstimateMinutes,
		SimpleMaxFanout:    config.Policy.SimpleMaxFanout,
		MaxFanout:          config.Policy.MaxFanout,
		StubDefaultMinutes: config.Policy.StubDefaultMinutes,
	}, logger)

	events := streaming.NewManager(config.Streaming.RingCapacity)
	coord := coordinator.New(tree.NewRegistry(), eng, repo, events, config.JobTimeout(), logger)

	mux := http.NewServeMux()
	httpapi.NewHandler(coord, logger).RegisterRoutes(mux)
	httpapi.NewStreamHandler(events, logger).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Server.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.Int("port", config.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
}

func buildRepository(config *cfg.Config, logger *zap.Logger) (store.Repository, func(), error) {
	switch config.Storage.Backend {
	case "redis":
		ttl := time.Duration(config.Storage.Redis.TTLHours) * time.Hour
		s, err := store.NewRedisStore(config.Storage.Redis.Addr, config.Storage.Redis.Password, ttl, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		s, err := store.NewPostgresStore(store.PostgresConfig{
			Host:     config.Storage.Postgres.Host,
			Port:     config.Storage.Postgres.Port,
			User:     config.Storage.Postgres.User,
			Password: config.Storage.Postgres.Password,
			Database: config.Storage.Postgres.Database,
			SSLMode:  config.Storage.Postgres.SSLMode,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "sqlite":
		s, err := store.NewSQLiteStore(config.Storage.SQLite.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", config.Storage.Backend)
	}
}
