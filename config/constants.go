package config

import "time"

const (
	// DefaultBaseTimeout is the first timed round's deadline when a chain
	// config leaves it unset.
	DefaultBaseTimeout = 10 * time.Second

	// DefaultTimeoutIncrement extends each later round's deadline.
	DefaultTimeoutIncrement = 1 * time.Second

	// DefaultFallbackDuration is how long an unskippable bundle may wait
	// before fallback owners take over.
	DefaultFallbackDuration = 24 * time.Hour

	// DefaultLivenessInterval is how often the node checks round deadlines
	// and fallback aging across its tracked chains.
	DefaultLivenessInterval = 1 * time.Second
)

// ApplyDefaults fills the zero-valued timeout fields of a chain config.
func (cc *ChainConfig) ApplyDefaults() {
	if cc.BaseTimeout == 0 {
		cc.BaseTimeout = DefaultBaseTimeout
	}
	if cc.TimeoutIncrement == 0 {
		cc.TimeoutIncrement = DefaultTimeoutIncrement
	}
	if cc.FallbackDuration == 0 {
		cc.FallbackDuration = DefaultFallbackDuration
	}
}
