package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/tradepulse/engine/core/event"
	"github.com/tradepulse/engine/core/queue"
)

// quoteRequest is the payload for fetch_quotes tasks.
type quoteRequest struct {
	Symbols []string `json:"symbols,omitempty"`
}

// newsRequest is the payload for fetch_news tasks.
type newsRequest struct {
	Topics []string `json:"topics,omitempty"`
}

var defaultWatchlist = []string{"AAPL", "NVDA", "MSFT", "TSLA"}

// registerTradingHandlers wires the demo paper-trading pipeline. The handlers
// simulate work; real market-data and AI integrations plug in behind the same
// task types.
func registerTradingHandlers(registry *queue.Registry, logger *slog.Logger) error {
	return registry.RegisterAll(
		queue.NewTaskHandler("fetch_quotes", func(ctx context.Context, p quoteRequest) error {
			symbols := p.Symbols
			if len(symbols) == 0 {
				symbols = defaultWatchlist
			}
			simulateWork(ctx, 150*time.Millisecond)
			logger.InfoContext(ctx, "fetched quotes", slog.Int("symbols", len(symbols)))
			return nil
		}),
		queue.NewTaskHandler("fetch_news", func(ctx context.Context, p newsRequest) error {
			simulateWork(ctx, 300*time.Millisecond)
			logger.InfoContext(ctx, "fetched news", slog.Int("topics", len(p.Topics)))
			return nil
		}),
		queue.NewTaskHandler("run_analysis", func(ctx context.Context, p event.TaskEventPayload) error {
			simulateWork(ctx, 500*time.Millisecond)
			logger.InfoContext(ctx, "analysis complete",
				slog.String("source_task", p.TaskID.String()),
				slog.String("source_type", p.TaskType))
			return nil
		}),
		queue.NewTaskHandler("sync_positions", func(ctx context.Context, p json.RawMessage) error {
			simulateWork(ctx, 200*time.Millisecond)
			logger.InfoContext(ctx, "portfolio synchronized")
			return nil
		}),
	)
}

// simulateWork sleeps for a jittered duration while honoring cancellation.
func simulateWork(ctx context.Context, base time.Duration) {
	d := base + rand.N(base/2)
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// seedQueues ensures the pipeline queues exist. Upserts are idempotent, so a
// restart reconciles configuration drift without touching task rows.
func seedQueues(ctx context.Context, repo queue.QueueRepository) error {
	configs := []*queue.QueueConfig{
		{
			Name:     queueDataFetcher,
			Kind:     "market_data",
			Priority: queue.PriorityMedium,
			Timeout:  2 * time.Minute,
			Retry: queue.RetryPolicy{
				MaxRetries:        3,
				InitialDelay:      5 * time.Second,
				BackoffMultiplier: 2.0,
				MaxDelay:          2 * time.Minute,
			},
			IsActive: true,
		},
		{
			Name:     queueAIAnalysis,
			Kind:     "analysis",
			Priority: queue.PriorityHigh,
			Timeout:  10 * time.Minute,
			Retry: queue.RetryPolicy{
				MaxRetries:        2,
				InitialDelay:      30 * time.Second,
				BackoffMultiplier: 2.0,
				MaxDelay:          5 * time.Minute,
			},
			IsActive: true,
		},
		{
			Name:     queuePortfolioSync,
			Kind:     "portfolio",
			Priority: queue.PriorityMax,
			Timeout:  time.Minute,
			Retry: queue.RetryPolicy{
				MaxRetries:        5,
				InitialDelay:      2 * time.Second,
				BackoffMultiplier: 2.0,
				MaxDelay:          time.Minute,
			},
			IsActive: true,
		},
	}

	for _, cfg := range configs {
		if err := repo.UpsertQueue(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

// seedTriggers installs the declarative routing rules chaining the pipeline:
// fetched data feeds analysis, finished analysis feeds portfolio sync.
func seedTriggers(ctx context.Context, repo event.TriggerRepository) error {
	triggers := []event.Trigger{
		{
			ID:          "analyze-fetched-data",
			EventType:   event.TypeTaskCompleted,
			SourceQueue: queueDataFetcher,
			TargetQueue: queueAIAnalysis,
			TaskType:    "run_analysis",
			Condition: &event.Condition{
				TaskTypes: []string{"fetch_quotes", "fetch_news"},
			},
			Priority:   queue.PriorityHigh,
			MaxRetries: 2,
			IsActive:   true,
		},
		{
			ID:          "sync-after-analysis",
			EventType:   event.TypeTaskCompleted,
			SourceQueue: queueAIAnalysis,
			TargetQueue: queuePortfolioSync,
			TaskType:    "sync_positions",
			Priority:    queue.PriorityMax,
			MaxRetries:  3,
			IsActive:    true,
		},
	}

	for _, trg := range triggers {
		if err := repo.UpsertTrigger(ctx, trg); err != nil {
			return err
		}
	}
	return nil
}
