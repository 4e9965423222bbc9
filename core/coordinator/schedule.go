package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tradepulse/engine/core/queue"
)

// Schedule registers a recurring enqueue on a standard 5-field cron
// expression. The schedule fires only while the coordinator is started; the
// enqueued task then flows through the queue's normal eligibility rules.
func (c *Coordinator) Schedule(cronSpec, queueName, taskType string, payload any, opts ...queue.EnqueueOption) (cron.EntryID, error) {
	return c.cron.AddFunc(cronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		task, err := c.enqueuer.Enqueue(ctx, queueName, taskType, payload, opts...)
		if err != nil {
			c.logger.Error("scheduled enqueue failed",
				slog.String("queue", queueName),
				slog.String("task_type", taskType),
				slog.String("error", err.Error()))
			return
		}

		c.logger.Debug("scheduled task enqueued",
			slog.String("queue", queueName),
			slog.String("task_type", taskType),
			slog.String("task_id", task.ID.String()))
	})
}

// Unschedule removes a recurring enqueue registered with Schedule.
func (c *Coordinator) Unschedule(id cron.EntryID) {
	c.cron.Remove(id)
}
