package worker

import "time"

// SweeperConfig controls the expiration sweep loop.
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
	LockTTL   time.Duration
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:  time.Minute,
		BatchSize: 500,
		LockTTL:   time.Minute,
	}
}

func (c SweeperConfig) withDefaults() SweeperConfig {
	defaults := DefaultSweeperConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

// RelayConfig controls the issuance relay loop.
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	Lease        time.Duration
	RetryBackoff time.Duration
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		PollInterval: 2 * time.Second,
		BatchSize:    50,
		MaxAttempts:  5,
		Lease:        30 * time.Second,
		RetryBackoff: 10 * time.Second,
	}
}

func (c RelayConfig) withDefaults() RelayConfig {
	defaults := DefaultRelayConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.Lease <= 0 {
		c.Lease = defaults.Lease
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaults.RetryBackoff
	}
	return c
}

// ProjectorConfig names the consumer group the ledger projector joins.
type ProjectorConfig struct {
	GroupID string
}

func DefaultProjectorConfig() ProjectorConfig {
	return ProjectorConfig{GroupID: "purchase-protection.ledger"}
}
