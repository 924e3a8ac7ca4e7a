package audit

import (
	"errors"
	"fmt"
	"time"
)

// Config represents the audit emission configuration.
type Config struct {
	// Enabled enables audit emission.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Output specifies the sink destination (stdout, stderr, file path).
	Output string `yaml:"output,omitempty" json:"output,omitempty"`

	// Breaker configures circuit breaking for the sink.
	Breaker *BreakerConfig `yaml:"breaker,omitempty" json:"breaker,omitempty"`
}

// BreakerConfig configures the sink circuit breaker. When the breaker is
// open, records are diverted to the local fallback logger instead of the
// sink, so a persistently failing sink cannot slow down requests.
type BreakerConfig struct {
	// Enabled enables the breaker.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Threshold is the number of consecutive delivery failures that trips
	// the breaker.
	Threshold int `yaml:"threshold,omitempty" json:"threshold,omitempty"`

	// Timeout is how long the breaker stays open before probing the sink
	// again.
	Timeout time.Duration `yaml:"-" json:"-"`
}

// Validate validates the audit configuration.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	if c.Breaker != nil {
		if err := c.Breaker.Validate(); err != nil {
			return fmt.Errorf("breaker: %w", err)
		}
	}

	return nil
}

// Validate validates the breaker configuration.
func (c *BreakerConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	if c.Threshold < 0 {
		return errors.New("threshold must be non-negative")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must be non-negative")
	}

	return nil
}

// DefaultConfig returns a default audit configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Output:  "stdout",
		Breaker: &BreakerConfig{
			Enabled:   true,
			Threshold: 5,
			Timeout:   30 * time.Second,
		},
	}
}

// GetEffectiveOutput returns the effective sink destination.
func (c *Config) GetEffectiveOutput() string {
	if c != nil && c.Output != "" {
		return c.Output
	}
	return "stdout"
}
