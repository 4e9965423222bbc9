// Command tradepulsed runs the task scheduling and event routing daemon
// behind the paper-trading dashboard: multi-queue executors under a
// coordinator, declarative event triggers chaining queues together, per-queue
// circuit breakers, and an operational HTTP surface with Prometheus metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/tradepulse/engine/core/coordinator"
	"github.com/tradepulse/engine/core/event"
	"github.com/tradepulse/engine/core/health"
	"github.com/tradepulse/engine/core/metrics"
	"github.com/tradepulse/engine/core/queue"
	"github.com/tradepulse/engine/core/server"
	"github.com/tradepulse/engine/integration/database/pg"
	"github.com/tradepulse/engine/integration/database/redis"
	"github.com/tradepulse/engine/pkg/broadcast"
)

func main() {
	if err := run(); err != nil {
		slog.Error("daemon exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	broadcaster, err := buildBroadcaster(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = broadcaster.Close() }()

	registry := queue.NewRegistry()
	if err := registerTradingHandlers(registry, logger); err != nil {
		return fmt.Errorf("failed to register handlers: %w", err)
	}

	if err := seedQueues(ctx, stores.storage); err != nil {
		return fmt.Errorf("failed to seed queues: %w", err)
	}
	if err := seedTriggers(ctx, stores.triggers); err != nil {
		return fmt.Errorf("failed to seed triggers: %w", err)
	}

	enqueuer, err := queue.NewEnqueuer(stores.storage)
	if err != nil {
		return err
	}

	router, err := event.NewRouter(stores.events, stores.triggers, enqueuer,
		event.WithBroadcaster(broadcaster),
		event.WithRouterLogger(logger))
	if err != nil {
		return err
	}

	// Task results flow executor -> metrics -> event log, and the router is
	// woken as soon as a result lands.
	publisher, err := event.NewTaskResultPublisher(stores.events, router)
	if err != nil {
		return err
	}
	collector := metrics.NewCollector(publisher)

	gate := health.NewBreakerGate(cfg.BreakerFailureThreshold, cfg.BreakerCooldown,
		health.WithBreakerLogger(logger))

	coord, err := coordinator.New(stores.storage, registry, stores.states, stores.history,
		coordinator.WithMode(coordinator.ExecutionMode(strings.ToUpper(cfg.ExecutionMode))),
		coordinator.WithMaxConcurrentQueues(cfg.MaxConcurrentQueues),
		coordinator.WithResultPublisher(collector),
		coordinator.WithAdmissionGate(gate),
		coordinator.WithLogger(logger))
	if err != nil {
		return err
	}

	monitor, err := health.NewMonitor(stores.health, stores.historySource, stores.storage,
		health.WithBreakerGate(gate),
		health.WithHeartbeatSource(stores.states, cfg.StaleHeartbeatAfter),
		health.WithMonitorLogger(logger))
	if err != nil {
		return err
	}

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}
	defer func() {
		if err := coord.Stop(); err != nil && !errors.Is(err, coordinator.ErrNotStarted) {
			logger.Error("coordinator stop failed", slog.String("error", err.Error()))
		}
	}()

	if err := scheduleEntryPoints(coord, cfg); err != nil {
		return fmt.Errorf("failed to install schedules: %w", err)
	}

	srv, err := server.NewFromConfig(cfg.Server, server.WithLogger(logger))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(router.Run(gctx))
	g.Go(monitor.Run(gctx))
	g.Go(collector.RunQueueDepthCollector(gctx, stores.storage, cfg.QueueDepthInterval))
	g.Go(srv.Run(gctx, opsHandler(collector, router, coord, stores)))

	logger.Info("daemon started",
		slog.String("storage", cfg.StorageDriver),
		slog.String("mode", string(coord.Mode())),
		slog.String("addr", cfg.Server.Addr))

	return g.Wait()
}

func newLogger(cfg Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// stores bundles the persistence backends behind their domain interfaces so
// the rest of the wiring is driver-agnostic.
type stores struct {
	storage       queue.Storage
	events        event.Store
	triggers      event.TriggerRepository
	states        coordinator.StateStore
	history       coordinator.HistoryStore
	historySource health.HistorySource
	health        health.Store
	healthcheck   func(context.Context) error
}

func buildStores(ctx context.Context, cfg Config, logger *slog.Logger) (*stores, func(), error) {
	switch strings.ToLower(cfg.StorageDriver) {
	case "postgres":
		var pgCfg pg.Config
		if err := env.Parse(&pgCfg); err != nil {
			return nil, nil, fmt.Errorf("failed to parse postgres config: %w", err)
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx, pool, pgCfg, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}

		eventStore := pg.NewEventStore(pool)
		historyStore := pg.NewHistoryStore(pool)
		return &stores{
			storage:       pg.NewStorage(pool),
			events:        eventStore,
			triggers:      eventStore,
			states:        pg.NewStateStore(pool),
			history:       historyStore,
			historySource: historyStore,
			health:        pg.NewHealthStore(pool),
			healthcheck:   pg.Healthcheck(pool),
		}, pool.Close, nil

	case "memory":
		eventStore := event.NewMemoryStore()
		historyStore := coordinator.NewMemoryHistoryStore(1000)
		return &stores{
			storage:       queue.NewMemoryStorage(),
			events:        eventStore,
			triggers:      eventStore,
			states:        coordinator.NewMemoryStateStore(),
			history:       historyStore,
			historySource: historyStore,
			health:        health.NewMemoryStore(100),
			healthcheck:   func(context.Context) error { return nil },
		}, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func buildBroadcaster(ctx context.Context, cfg Config, logger *slog.Logger) (broadcast.Broadcaster[event.Event], error) {
	if cfg.RedisURL == "" {
		return broadcast.NewMemoryBroadcaster[event.Event](64), nil
	}

	client, err := redis.Connect(ctx, redis.Config{ConnectionURL: cfg.RedisURL})
	if err != nil {
		return nil, err
	}
	return redis.NewBroadcaster[event.Event](client, cfg.EventChannel,
		redis.WithLogger(logger)), nil
}

func scheduleEntryPoints(coord *coordinator.Coordinator, cfg Config) error {
	schedules := []struct {
		spec     string
		queue    string
		taskType string
		payload  any
	}{
		{cfg.QuotesCron, queueDataFetcher, "fetch_quotes", quoteRequest{Symbols: defaultWatchlist}},
		{cfg.NewsCron, queueDataFetcher, "fetch_news", newsRequest{}},
		{cfg.PortfolioSyncCron, queuePortfolioSync, "sync_positions", nil},
	}
	for _, s := range schedules {
		if _, err := coord.Schedule(s.spec, s.queue, s.taskType, s.payload); err != nil {
			return err
		}
	}
	return nil
}

// opsHandler builds the operational HTTP surface: Prometheus metrics,
// liveness, queue stats, execution history, and dead-lettered events.
func opsHandler(collector *metrics.Collector, router *event.Router, coord *coordinator.Coordinator, st *stores) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", collector.Handler())

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := errors.Join(coord.Healthcheck(r.Context()), router.Healthcheck(r.Context()), st.healthcheck(r.Context())); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /queues/{name}", func(w http.ResponseWriter, r *http.Request) {
		stats, err := coord.QueueStatus(r.Context(), r.PathValue("name"))
		if err != nil {
			if errors.Is(err, queue.ErrQueueNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, stats)
	})

	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		records, err := coord.History(r.Context(), r.URL.Query().Get("queue"), 100)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, records)
	})

	mux.HandleFunc("GET /events/dead-letters", func(w http.ResponseWriter, r *http.Request) {
		events, err := st.events.DeadLettered(r.Context(), 100)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, events)
	})

	mux.HandleFunc("GET /health/queues", func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := st.health.Snapshot(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, snapshot)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
