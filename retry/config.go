package retry

import "time"

// Config bounds one retry session. Unset fields are replaced with defaults
// when a session starts, so a caller can set only what it cares about.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt; an
	// always-failing operation runs MaxRetries+1 times. Zero is a valid
	// setting (single attempt, no retries); negative means unset.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// DelayMultiplierBps is the per-attempt growth factor for the
	// exponential strategy, in basis points (20000 = 2.0x).
	DelayMultiplierBps uint32
	// JitterBps caps the additive random jitter applied to computed delays
	// (1000 = up to +10%).
	JitterBps uint32
	Strategy  string
}

var defaultConfig = Config{
	MaxRetries:         3,
	BaseDelay:          time.Second,
	MaxDelay:           30 * time.Second,
	DelayMultiplierBps: 20_000,
	JitterBps:          1_000,
	Strategy:           StrategyExponential,
}

func (c Config) withDefaults() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = defaultConfig.MaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultConfig.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultConfig.MaxDelay
	}
	if c.DelayMultiplierBps == 0 {
		c.DelayMultiplierBps = defaultConfig.DelayMultiplierBps
	}
	if c.JitterBps == 0 {
		c.JitterBps = defaultConfig.JitterBps
	}
	if c.Strategy == "" {
		c.Strategy = defaultConfig.Strategy
	}
	return c
}
