package main

import (
	"time"

	"github.com/tradepulse/engine/core/server"
)

// Queue names for the paper-trading pipeline.
const (
	queueDataFetcher   = "data_fetcher"
	queueAIAnalysis    = "ai_analysis"
	queuePortfolioSync = "portfolio_sync"
)

// Config holds daemon settings, populated from the environment. A .env file
// in the working directory is loaded first when present.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// StorageDriver selects the task/event persistence backend: "memory" for
	// local development, "postgres" for durable deployments.
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"`

	// RedisURL, when set, switches event broadcasting to Redis pub/sub so
	// dashboard processes outside this daemon receive delivered events.
	RedisURL     string `env:"REDIS_URL"`
	EventChannel string `env:"EVENT_CHANNEL" envDefault:"tradepulse:events"`

	ExecutionMode       string `env:"EXECUTION_MODE" envDefault:"CONCURRENT"`
	MaxConcurrentQueues int    `env:"MAX_CONCURRENT_QUEUES" envDefault:"3"`

	BreakerFailureThreshold uint32        `env:"BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	BreakerCooldown         time.Duration `env:"BREAKER_COOLDOWN" envDefault:"1m"`
	StaleHeartbeatAfter     time.Duration `env:"STALE_HEARTBEAT_AFTER" envDefault:"2m"`

	QueueDepthInterval time.Duration `env:"QUEUE_DEPTH_INTERVAL" envDefault:"15s"`

	// Cron schedules for the periodic pipeline entry points.
	QuotesCron        string `env:"QUOTES_CRON" envDefault:"@every 1m"`
	NewsCron          string `env:"NEWS_CRON" envDefault:"@every 10m"`
	PortfolioSyncCron string `env:"PORTFOLIO_SYNC_CRON" envDefault:"@every 5m"`

	Server server.Config
}
