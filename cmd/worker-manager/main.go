// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fertismart/internal/common/camunda"
	"fertismart/internal/common/config"
	"fertismart/internal/common/database"
	"fertismart/internal/common/inference"
	"fertismart/internal/common/logger"
	"fertismart/internal/common/observability"
	"fertismart/internal/fertilizer"
	"fertismart/pkg/registry"

	fm "fertismart/internal/workers/fertilizer/fetch-metadata"
	pf "fertismart/internal/workers/fertilizer/predict-fertilizer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog, err := logger.Build(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting worker manager...",
		zap.String("inferenceBaseURL", cfg.Inference.BaseURL),
		zap.String("cacheBackend", cfg.Cache.Backend),
	)

	obs, err := observability.New("worker-manager")
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := registry.Default()
	if err != nil {
		zapLog.Fatal("activity registry load failed", zap.Error(err))
	}
	if err := reg.Validate(); err != nil {
		zapLog.Fatal("activity registry invalid", zap.Error(err))
	}

	// --- Init Zeebe Client with retry ---
	zeebe, err := camunda.Connect(ctx, camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		Retry:                  camunda.DefaultRetryConfig,
	}, log)
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}

	// --- Metadata cache ---
	cache, closeCache := buildCache(ctx, cfg, log, zapLog)
	defer closeCache()

	inferenceClient := inference.NewClient(
		inference.Config{BaseURL: cfg.Inference.BaseURL, Timeout: cfg.Inference.RequestTimeout()},
		log,
		inference.WithTracer(obs.Tracer("fertismart/inference")),
	)
	provider := fertilizer.NewMetadataProvider(inferenceClient, cache, log,
		fertilizer.WithFetchTimeout(config.GetDuration(cfg.Inference.MetadataTimeout)),
	)

	// --- Register workers ---
	var workers []worker.JobWorker

	if activity, ok := reg.Find(fm.TaskType); ok && config.IsWorkerEnabled(cfg, fm.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, fm.TaskType)
		handler := fm.NewHandler(
			&fm.Config{
				Timeout: activity.TimeoutDuration(config.GetDuration(cfg.Inference.MetadataTimeout)),
			},
			provider, log,
		).WithContext(ctx)
		workers = append(workers, zeebe.StartWorker(fm.TaskType, wcfg.MaxJobsActive, config.GetDuration(wcfg.Timeout), instrument(obs, fm.TaskType, handler.Handle)))
	}

	if activity, ok := reg.Find(pf.TaskType); ok && config.IsWorkerEnabled(cfg, pf.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, pf.TaskType)
		schema, err := activity.InputValidator()
		if err != nil {
			zapLog.Fatal("predict-fertilizer input schema invalid", zap.Error(err))
		}
		handler := pf.NewHandler(
			&pf.Config{
				Timeout:     activity.TimeoutDuration(config.GetDuration(wcfg.Timeout)),
				StrictCrops: cfg.Inference.StrictCrops,
			},
			inferenceClient, provider, log,
		).WithInputSchema(schema).WithContext(ctx)
		workers = append(workers, zeebe.StartWorker(pf.TaskType, wcfg.MaxJobsActive, config.GetDuration(wcfg.Timeout), instrument(obs, pf.TaskType, handler.Handle)))
	}
	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	// Warm the metadata cache; failures are logged and retried on first use.
	go func() {
		warmCtx, cancel := context.WithTimeout(ctx, config.GetDuration(cfg.Inference.MetadataTimeout))
		defer cancel()
		if _, err := provider.Get(warmCtx); err != nil {
			zapLog.Warn("metadata warm-up failed", zap.Error(err))
		}
	}()

	// --- Health & Metrics Server ---
	var ready atomic.Bool
	ready.Store(true)
	server := &http.Server{Addr: cfg.Server.Address, Handler: healthMux(&ready, zeebe.HealthCheck)}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	ready.Store(false)
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Close()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// buildCache returns the metadata cache selected by configuration and a
// function releasing its resources.
func buildCache(ctx context.Context, cfg *config.Config, log logger.Logger, zapLog *zap.Logger) (fertilizer.MetadataCache, func()) {
	if cfg.Cache.Backend != config.CacheBackendRedis {
		return fertilizer.NewMemoryCache(), func() {}
	}

	var redis *database.RedisClient
	err := camunda.Retry(ctx, camunda.DefaultRetryConfig, log, "Redis connection", func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		if err := redis.Ping(ctx); err != nil {
			redis.Close()
			return err
		}
		return nil
	})
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	zapLog.Info("Redis connected successfully")

	cache := fertilizer.NewRedisCache(redis.Client, cfg.Cache.Key, config.GetDuration(cfg.Cache.TTL), log)
	return cache, func() { redis.Close() }
}

// instrument records job metrics through OpenTelemetry around a handler.
func instrument(obs *observability.Observability, taskType string, handle worker.JobHandler) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		ctx, span := obs.StartSpan(context.Background(), taskType)
		defer span.End()

		start := time.Now()
		handle(client, job)
		obs.RecordJobProcessed(ctx, taskType, "handled")
		obs.RecordJobDuration(ctx, taskType, time.Since(start), "handled")
	}
}

// healthMux serves liveness, readiness and metrics. Readiness also checks
// the broker when check is set.
func healthMux(ready *atomic.Bool, check func(context.Context) error) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		if check != nil {
			if err := check(r.Context()); err != nil {
				writeStatus(w, http.StatusServiceUnavailable, "broker unavailable")
				return
			}
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}
