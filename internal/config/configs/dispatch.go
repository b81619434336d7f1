package configs

import "time"

// Dispatch configures the dispatch engine. WorkerConcurrency bounds how
// many sends can be in flight at once, while MinSendInterval is the
// pool-wide minimum spacing between any two dispatch attempts regardless
// of pool size. The hourly limits are rolling-hour quotas: GlobalHourly
// caps all senders together, SenderHourly caps each sender on its own.
// MaxAttempts and BackoffBase drive the delay queue's retry policy.
type Dispatch struct {
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY" envDefault:"5"`
	MinSendInterval   time.Duration `env:"MIN_SEND_INTERVAL" envDefault:"2s"`
	GlobalHourly      int           `env:"MAX_PER_HOUR" envDefault:"200"`
	SenderHourly      int           `env:"MAX_PER_HOUR_PER_SENDER" envDefault:"50"`
	MaxAttempts       int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	BackoffBase       time.Duration `env:"BACKOFF_BASE" envDefault:"5s"`
}
