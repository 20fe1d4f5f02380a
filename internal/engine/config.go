package engine

import "time"

// Defaults applied when corresponding Config fields are unset.
const (
	defaultJobTimeout    = 60 * time.Second
	defaultMaxQueueDepth = 8
	defaultMaxWait       = 30 * time.Second
	defaultWarmupTimeout = 10 * time.Second
)

// Config encapsulates all tunables for Engine construction.
type Config struct {
	// Hard ceiling per job; exceeding it auto-cancels with StatusTimeout.
	JobTimeout time.Duration
	// Admission queue depth for callers waiting behind the in-flight job.
	MaxQueueDepth int
	// How long an admission waits before reporting too-busy.
	MaxWait time.Duration
	// Warm-up budget for Worker.Start.
	WarmupTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = defaultMaxQueueDepth
	}
	if c.MaxWait <= 0 {
		c.MaxWait = defaultMaxWait
	}
	if c.WarmupTimeout <= 0 {
		c.WarmupTimeout = defaultWarmupTimeout
	}
	return c
}
