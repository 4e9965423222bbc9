package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tradepulse/engine/core/queue"
)

// Collector exposes scheduling metrics on its own Prometheus registry. It
// implements queue.ResultPublisher so it can sit in front of the event
// publisher: every task result is observed here and then forwarded.
type Collector struct {
	registry *prometheus.Registry
	next     queue.ResultPublisher

	tasksProcessed *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	queueDepth     *prometheus.GaugeVec
}

var _ queue.ResultPublisher = (*Collector)(nil)

// NewCollector creates a collector with its own registry. next may be nil
// when task results should only be counted, not forwarded.
func NewCollector(next queue.ResultPublisher) *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		next:     next,

		tasksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_tasks_processed_total",
			Help: "The total number of processed tasks",
		}, []string{"queue", "type", "status"}),

		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradepulse_task_duration_seconds",
			Help:    "Duration of task execution",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue", "type"}),

		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradepulse_queue_depth",
			Help: "Number of tasks per queue and status",
		}, []string{"queue", "status"}),
	}
}

// Registry returns the collector's Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// PublishResult observes one task result and forwards it to the wrapped
// publisher.
func (c *Collector) PublishResult(ctx context.Context, result queue.TaskResult) error {
	c.tasksProcessed.WithLabelValues(result.Queue, result.TaskType, string(result.Status)).Inc()
	c.taskDuration.WithLabelValues(result.Queue, result.TaskType).Observe(result.Duration.Seconds())

	if c.next != nil {
		return c.next.PublishResult(ctx, result)
	}
	return nil
}

// UpdateQueueDepth refreshes the depth gauges from stored task counts.
func (c *Collector) UpdateQueueDepth(ctx context.Context, storage queue.Storage) error {
	queues, err := storage.ListQueues(ctx)
	if err != nil {
		return err
	}

	for _, cfg := range queues {
		stats, err := storage.QueueStats(ctx, cfg.Name)
		if err != nil {
			return err
		}
		c.queueDepth.WithLabelValues(cfg.Name, string(queue.TaskStatusPending)).Set(float64(stats.Pending))
		c.queueDepth.WithLabelValues(cfg.Name, string(queue.TaskStatusRunning)).Set(float64(stats.Running))
		c.queueDepth.WithLabelValues(cfg.Name, string(queue.TaskStatusRetrying)).Set(float64(stats.Retrying))
		c.queueDepth.WithLabelValues(cfg.Name, string(queue.TaskStatusCompleted)).Set(float64(stats.Completed))
		c.queueDepth.WithLabelValues(cfg.Name, string(queue.TaskStatusFailed)).Set(float64(stats.Failed))
	}
	return nil
}

// RunQueueDepthCollector refreshes the depth gauges on a fixed interval until
// ctx is cancelled. Intended to run in its own goroutine or errgroup.
func (c *Collector) RunQueueDepthCollector(ctx context.Context, storage queue.Storage, interval time.Duration) func() error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				// Depth refresh is best effort; stats come back next tick.
				_ = c.UpdateQueueDepth(ctx, storage)
			}
		}
	}
}
