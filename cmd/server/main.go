// Command server boots the deferred-event queue, cron-style scheduler, and
// priority job dispatcher as one process: the periodic driver loop plus a
// thin HTTP surface for health and metrics. Registering event handlers,
// cron task factories, and job targets is a collaborator's job (spec §9's
// registry design note); this file wires the substrate's own components and
// leaves the registry for whoever owns the domain logic to populate before
// Run is called.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reactorcore/substrate/internal/cache"
	"github.com/reactorcore/substrate/internal/config"
	"github.com/reactorcore/substrate/internal/driver"
	"github.com/reactorcore/substrate/internal/event"
	"github.com/reactorcore/substrate/internal/jobs"
	"github.com/reactorcore/substrate/internal/kv"
	"github.com/reactorcore/substrate/internal/logging"
	"github.com/reactorcore/substrate/internal/metrics"
	"github.com/reactorcore/substrate/internal/registry"
	"github.com/reactorcore/substrate/internal/scheduler"
)

const (
	serviceName    = "substrate"
	serviceVersion = "1.0.0"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, serviceVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log)
	logger.Info("starting substrate", "service", serviceName, "version", serviceVersion, "env", cfg.Env)

	metricsSink := metrics.New()
	reg := registry.New()

	adapter, closeAdapter := buildKVAdapter(*cfg, logger)
	if closeAdapter != nil {
		defer closeAdapter()
	}

	eventStore := buildEventStore(*cfg, adapter, logger)
	sched := buildScheduler(*cfg, adapter, reg, logger, metricsSink)
	dispatcher := buildDispatcher(*cfg, reg, logger, metricsSink)
	cacheBackend := buildCache(*cfg, adapter, metricsSink)

	// Registry population for this deployment's event handlers, cron tasks,
	// and job targets happens here, against dispatcher/cacheBackend, before
	// the driver starts. None are registered in this substrate-only build.
	_ = dispatcher
	_ = cacheBackend

	drv := driver.New(eventStore, sched, reg, driver.Config{
		EventPollInterval: cfg.Events.PollingInterval,
		CronPollInterval:  cfg.Cron.PollingInterval,
	}, logger)
	drv.SetMetrics(metricsSink)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	mux.Handle("/metrics", metricsSink.Handler())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Application.Port),
		Handler: logging.Middleware(logger)(metricsSink.Middleware(mux)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go drv.Run(ctx)

	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}

	if qd, ok := dispatcher.(*jobs.QueueDispatcher); ok {
		qd.Stop()
	}

	<-drv.Done()
	logger.Info("substrate stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// buildKVAdapter dials the configured external store, but only if some
// component actually needs it: a deployment running events/cron/cache all
// off redis (e.g. a single-node dev build on "immediate"/"null"/"memory")
// never opens a connection. The returned func closes the client; nil when
// no connection was opened.
func buildKVAdapter(cfg config.Config, logger *slog.Logger) (kv.Adapter, func()) {
	needsRedis := cfg.Events.Backend == "redis" || cfg.Cron.Backend == "redis" || cfg.Cache.Backend == "redis"
	if !needsRedis {
		return nil, nil
	}

	adapter := kv.NewRedisAdapter(kv.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		DB:       cfg.Redis.DB,
		Timeout:  cfg.Redis.Timeout,
		PoolSize: 10,
	}, logger)

	return adapter, func() {
		if err := adapter.Close(); err != nil {
			logger.Error("kv adapter close failed", "error", err)
		}
	}
}

func buildEventStore(cfg config.Config, adapter kv.Adapter, logger *slog.Logger) event.Store {
	switch cfg.Events.Backend {
	case "redis":
		return event.NewRedisStore(adapter, logger)
	case "immediate":
		return event.NewImmediateStore(time.Now)
	default:
		return event.NullStore{}
	}
}

func buildScheduler(cfg config.Config, adapter kv.Adapter, reg *registry.Registry, logger *slog.Logger, m *metrics.Metrics) scheduler.Scheduler {
	if cfg.Cron.Backend != "redis" {
		return scheduler.NullScheduler{}
	}
	s := scheduler.New(adapter, reg, cfg.Cron.Tasks, logger)
	s.SetMetrics(m)
	return s
}

func buildDispatcher(cfg config.Config, reg *registry.Registry, logger *slog.Logger, m *metrics.Metrics) jobs.Dispatcher {
	if cfg.Jobs.Backend == "immediate" {
		return jobs.NewImmediateDispatcher(reg)
	}

	d := jobs.NewQueueDispatcher(reg, jobs.QueueDispatcherConfig{
		Workers:   cfg.Jobs.Workers,
		QueueSize: cfg.Jobs.QueueSize,
	}, logger)
	d.SetMetrics(m)
	d.Start(cfg.Jobs.Workers)
	return d
}

func buildCache(cfg config.Config, adapter kv.Adapter, m *metrics.Metrics) cache.Cache {
	switch cfg.Cache.Backend {
	case "redis":
		store := cache.New(adapter, cfg.Cache.Timeout())
		store.SetMetrics(m)
		return store
	case "memory":
		mem := cache.NewMemory(time.Now)
		mem.SetMetrics(m)
		return mem
	default:
		return cache.Null{}
	}
}
