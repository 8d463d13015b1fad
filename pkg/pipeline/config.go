package pipeline

import "time"

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultBatchSize is how many packages are enriched concurrently.
	DefaultBatchSize = 2

	// DefaultMaxAttempts bounds the attempts per package, first try included.
	DefaultMaxAttempts = 2

	// DefaultBatchPause is the pause between two batches.
	DefaultBatchPause = time.Second

	// DefaultForbiddenDelay is the wait before retrying a 403.
	DefaultForbiddenDelay = 2 * time.Second

	// DefaultServerErrorDelay is the wait before retrying a 5xx.
	DefaultServerErrorDelay = time.Second

	// DefaultNetworkDelay is the wait before retrying a transport error.
	DefaultNetworkDelay = time.Second

	// DefaultSaveTimeout bounds the background snapshot save.
	DefaultSaveTimeout = 10 * time.Second
)

// =============================================================================
// Config
// =============================================================================

// Config tunes a session. Zero fields take the defaults above, except
// PackageLimit where zero means unlimited.
type Config struct {
	BatchSize        int
	MaxAttempts      int
	BatchPause       time.Duration
	ForbiddenDelay   time.Duration
	ServerErrorDelay time.Duration
	NetworkDelay     time.Duration
	SaveTimeout      time.Duration

	// PackageLimit caps how many packages a search keeps.
	PackageLimit int
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		BatchSize:        DefaultBatchSize,
		MaxAttempts:      DefaultMaxAttempts,
		BatchPause:       DefaultBatchPause,
		ForbiddenDelay:   DefaultForbiddenDelay,
		ServerErrorDelay: DefaultServerErrorDelay,
		NetworkDelay:     DefaultNetworkDelay,
		SaveTimeout:      DefaultSaveTimeout,
	}
}

// withDefaults fills zero fields. Negative durations mean "no wait" and are
// clamped to zero.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	c.BatchPause = durationOr(c.BatchPause, d.BatchPause)
	c.ForbiddenDelay = durationOr(c.ForbiddenDelay, d.ForbiddenDelay)
	c.ServerErrorDelay = durationOr(c.ServerErrorDelay, d.ServerErrorDelay)
	c.NetworkDelay = durationOr(c.NetworkDelay, d.NetworkDelay)
	c.SaveTimeout = durationOr(c.SaveTimeout, d.SaveTimeout)
	if c.PackageLimit < 0 {
		c.PackageLimit = 0
	}
	return c
}

func durationOr(v, def time.Duration) time.Duration {
	switch {
	case v < 0:
		return 0
	case v == 0:
		return def
	default:
		return v
	}
}
