package suspicion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/vigilops/camgate/internal/audit"
	"github.com/vigilops/camgate/internal/observability"
	"github.com/vigilops/camgate/internal/reqctx"
)

// Config configures suspicious-activity detection.
type Config struct {
	// Enabled toggles detection.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Threshold is the failure count within one window that triggers a
	// suspicious_activity event.
	Threshold int64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`

	// Window is the rolling window over which failures are counted.
	Window time.Duration `yaml:"-" json:"-"`

	// Redis configures the shared store. Nil selects the in-memory store.
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// Validate validates the detection configuration.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.Threshold < 0 {
		return errors.New("threshold must not be negative")
	}
	if c.Redis != nil && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is configured")
	}
	return nil
}

// DefaultConfig returns the default detection configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Threshold: 5,
		Window:    time.Minute,
	}
}

// GetEffectiveThreshold returns the effective failure threshold.
func (c *Config) GetEffectiveThreshold() int64 {
	if c != nil && c.Threshold > 0 {
		return c.Threshold
	}
	return 5
}

// GetEffectiveWindow returns the effective counting window.
func (c *Config) GetEffectiveWindow() time.Duration {
	if c != nil && c.Window > 0 {
		return c.Window
	}
	return time.Minute
}

// Tracker counts authentication failures per origin IP and emits one
// suspicious_activity event when an origin crosses the threshold within the
// window. It satisfies the auth gateway's failure hook and never fails the
// request path: store errors are logged and swallowed.
type Tracker struct {
	config  *Config
	store   Store
	emitter audit.Emitter
	logger  observability.Logger

	// alertLimiter caps event emission under a sustained distributed
	// attack, where thousands of origins can cross the threshold in the
	// same window.
	alertLimiter *rate.Limiter
}

// TrackerOption is a functional option for the tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the logger.
func WithTrackerLogger(logger observability.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithTrackerStore sets the failure count store, overriding the one built
// from configuration.
func WithTrackerStore(store Store) TrackerOption {
	return func(t *Tracker) {
		t.store = store
	}
}

// WithAlertLimiter sets the emission rate limiter.
func WithAlertLimiter(limiter *rate.Limiter) TrackerOption {
	return func(t *Tracker) {
		t.alertLimiter = limiter
	}
}

// NewTracker creates a suspicious-activity tracker.
func NewTracker(config *Config, emitter audit.Emitter, opts ...TrackerOption) (*Tracker, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if emitter == nil {
		return nil, errors.New("emitter is required")
	}

	t := &Tracker{
		config:  config,
		emitter: emitter,
		logger:  observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.store == nil {
		if config.Redis != nil {
			store, err := NewRedisStore(config.Redis)
			if err != nil {
				return nil, err
			}
			t.store = store
		} else {
			t.store = NewMemoryStore()
		}
	}

	if t.alertLimiter == nil {
		t.alertLimiter = rate.NewLimiter(rate.Every(time.Second), 10)
	}

	return t, nil
}

// RecordFailure counts one authentication failure for the request's origin.
func (t *Tracker) RecordFailure(ctx context.Context, rc *reqctx.RequestContext) {
	if !t.config.Enabled || rc == nil || rc.IPAddress == "" {
		return
	}

	window := t.config.GetEffectiveWindow()
	count, err := t.store.Incr(ctx, rc.IPAddress, window)
	if err != nil {
		t.logger.WithContext(ctx).Warn("failure count store unavailable",
			observability.String("ip_address", rc.IPAddress),
			observability.Error(err),
		)
		return
	}

	// Exactly-at-threshold keeps the event to one per origin per window;
	// counts above it belong to the window already reported.
	if count != t.config.GetEffectiveThreshold() {
		return
	}

	if !t.alertLimiter.Allow() {
		t.logger.WithContext(ctx).Warn("suspicious activity alert suppressed by rate limit",
			observability.String("ip_address", rc.IPAddress),
		)
		return
	}

	t.emitter.SuspiciousActivity(ctx, rc,
		fmt.Sprintf("%d authentication failures within %s", count, window),
		map[string]interface{}{
			"failure_count":  count,
			"window_seconds": int64(window.Seconds()),
		},
	)
}

// Close releases the underlying store.
func (t *Tracker) Close() error {
	return t.store.Close()
}
