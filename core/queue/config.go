package queue

import "time"

// Config holds executor and enqueuer defaults.
// Designed for environment-based configuration using popular env parsing libraries.
type Config struct {
	PollInterval    time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	ShutdownTimeout time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	TaskTimeout     time.Duration `env:"QUEUE_TASK_TIMEOUT" envDefault:"5m"`
	DefaultPriority Priority      `env:"QUEUE_DEFAULT_PRIORITY" envDefault:"5"`
	MaxRetries      int8          `env:"QUEUE_MAX_RETRIES" envDefault:"3"`
	RetryInitial    time.Duration `env:"QUEUE_RETRY_INITIAL_DELAY" envDefault:"5s"`
	RetryMultiplier float64       `env:"QUEUE_RETRY_MULTIPLIER" envDefault:"2.0"`
	RetryMaxDelay   time.Duration `env:"QUEUE_RETRY_MAX_DELAY" envDefault:"5m"`
	StaleTaskAge    time.Duration `env:"QUEUE_STALE_TASK_AGE" envDefault:"15m"`
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		PollInterval:    time.Second,
		ShutdownTimeout: 30 * time.Second,
		TaskTimeout:     5 * time.Minute,
		DefaultPriority: PriorityDefault,
		MaxRetries:      3,
		RetryInitial:    5 * time.Second,
		RetryMultiplier: 2.0,
		RetryMaxDelay:   5 * time.Minute,
		StaleTaskAge:    15 * time.Minute,
	}
}

// RetryPolicy builds the retry policy described by the configuration.
func (c Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        c.MaxRetries,
		InitialDelay:      c.RetryInitial,
		BackoffMultiplier: c.RetryMultiplier,
		MaxDelay:          c.RetryMaxDelay,
	}
}
