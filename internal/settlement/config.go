package settlement

import "time"

// Config controls the settlement worker loops.
type Config struct {
	BatchSize        int
	ReleaseInterval  time.Duration
	EscalateInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:        50,
		ReleaseInterval:  30 * time.Minute,
		EscalateInterval: 30 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.ReleaseInterval <= 0 {
		c.ReleaseInterval = defaults.ReleaseInterval
	}
	if c.EscalateInterval <= 0 {
		c.EscalateInterval = defaults.EscalateInterval
	}
	return c
}
