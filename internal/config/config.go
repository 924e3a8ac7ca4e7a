// Package config loads and validates the gateway configuration: one YAML
// file with environment variable substitution, section conversion into the
// packages that consume it, and hot reload via a file watcher.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/vigilops/camgate/internal/audit"
	"github.com/vigilops/camgate/internal/auth/token"
	"github.com/vigilops/camgate/internal/observability"
	"github.com/vigilops/camgate/internal/secrets"
	"github.com/vigilops/camgate/internal/suspicion"
	"github.com/vigilops/camgate/internal/userstore"
)

// Config is the top-level gateway configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server" json:"server"`
	Logging   LoggingConfig    `yaml:"logging" json:"logging"`
	Auth      AuthConfig       `yaml:"auth" json:"auth"`
	Audit     AuditConfig      `yaml:"audit" json:"audit"`
	Suspicion SuspicionConfig  `yaml:"suspicion" json:"suspicion"`
	Users     userstore.Config `yaml:"users" json:"users"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// ListenAddr is the listen address. Defaults to ":8080".
	ListenAddr string `yaml:"listenAddr,omitempty" json:"listenAddr,omitempty"`

	// MetricsNamespace prefixes all Prometheus metrics. Defaults to
	// "camgate".
	MetricsNamespace string `yaml:"metricsNamespace,omitempty" json:"metricsNamespace,omitempty"`

	ReadTimeout     Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	IdleTimeout     Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`

	// MaxIngestBytes caps the accepted ingest payload size.
	MaxIngestBytes int64 `yaml:"maxIngestBytes,omitempty" json:"maxIngestBytes,omitempty"`
}

// GetEffectiveListenAddr returns the effective listen address.
func (c *ServerConfig) GetEffectiveListenAddr() string {
	if c != nil && c.ListenAddr != "" {
		return c.ListenAddr
	}
	return ":8080"
}

// GetEffectiveMetricsNamespace returns the effective metrics namespace.
func (c *ServerConfig) GetEffectiveMetricsNamespace() string {
	if c != nil && c.MetricsNamespace != "" {
		return c.MetricsNamespace
	}
	return "camgate"
}

// GetEffectiveShutdownTimeout returns the effective shutdown timeout.
func (c *ServerConfig) GetEffectiveShutdownTimeout() time.Duration {
	if c != nil && c.ShutdownTimeout > 0 {
		return c.ShutdownTimeout.Duration()
	}
	return 15 * time.Second
}

// GetEffectiveMaxIngestBytes returns the effective ingest payload cap.
func (c *ServerConfig) GetEffectiveMaxIngestBytes() int64 {
	if c != nil && c.MaxIngestBytes > 0 {
		return c.MaxIngestBytes
	}
	return 32 << 20
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// ToLogConfig converts the section into the logger's configuration.
func (c *LoggingConfig) ToLogConfig() observability.LogConfig {
	cfg := observability.DefaultLogConfig()
	if c == nil {
		return cfg
	}
	if c.Level != "" {
		cfg.Level = c.Level
	}
	if c.Format != "" {
		cfg.Format = c.Format
	}
	if c.Output != "" {
		cfg.Output = c.Output
	}
	return cfg
}

// AuthConfig configures credential evaluation.
type AuthConfig struct {
	// SecretHeader is the shared-secret header name. Defaults to
	// X-Secret-Key.
	SecretHeader string `yaml:"secretHeader,omitempty" json:"secretHeader,omitempty"`

	// Secret selects the shared-secret backend.
	Secret SecretSourceConfig `yaml:"secret" json:"secret"`

	// Token configures bearer token verification.
	Token TokenConfig `yaml:"token" json:"token"`
}

// SecretSourceConfig selects exactly one shared-secret backend.
type SecretSourceConfig struct {
	// Value is an inline secret, typically injected via ${VAR}
	// substitution at load time.
	Value string `yaml:"value,omitempty" json:"value,omitempty"`

	// Env names an environment variable holding the secret.
	Env string `yaml:"env,omitempty" json:"env,omitempty"`

	// Vault reads the secret from a Vault KV v2 field.
	Vault *VaultSection `yaml:"vault,omitempty" json:"vault,omitempty"`
}

// Validate validates the secret source selection.
func (c *SecretSourceConfig) Validate() error {
	if c == nil {
		return errors.New("shared secret source is required")
	}

	configured := 0
	if c.Value != "" {
		configured++
	}
	if c.Env != "" {
		configured++
	}
	if c.Vault != nil {
		configured++
	}

	switch configured {
	case 0:
		return errors.New("one of value, env, or vault is required")
	case 1:
		if c.Vault != nil {
			return c.Vault.ToVaultConfig().Validate()
		}
		return nil
	default:
		return errors.New("value, env, and vault are mutually exclusive")
	}
}

// Source builds the configured secret source.
func (c *SecretSourceConfig) Source() (secrets.Source, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch {
	case c.Vault != nil:
		return secrets.NewVaultSource(c.Vault.ToVaultConfig())
	case c.Env != "":
		return secrets.NewEnvSource(c.Env), nil
	default:
		return secrets.NewStaticSource(c.Value), nil
	}
}

// VaultSection is the YAML form of the Vault secret source.
type VaultSection struct {
	Address string   `yaml:"address" json:"address"`
	Token   string   `yaml:"token,omitempty" json:"token,omitempty"`
	Mount   string   `yaml:"mount,omitempty" json:"mount,omitempty"`
	Path    string   `yaml:"path" json:"path"`
	Field   string   `yaml:"field,omitempty" json:"field,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ToVaultConfig converts the section into the secrets package configuration.
func (s *VaultSection) ToVaultConfig() *secrets.VaultConfig {
	if s == nil {
		return nil
	}
	return &secrets.VaultConfig{
		Address: s.Address,
		Token:   s.Token,
		Mount:   s.Mount,
		Path:    s.Path,
		Field:   s.Field,
		Timeout: s.Timeout.Duration(),
	}
}

// TokenConfig is the YAML form of bearer token verification settings.
type TokenConfig struct {
	Issuer     string   `yaml:"issuer,omitempty" json:"issuer,omitempty"`
	Audience   string   `yaml:"audience,omitempty" json:"audience,omitempty"`
	HMACSecret string   `yaml:"hmacSecret,omitempty" json:"hmacSecret,omitempty"`
	JWKSURL    string   `yaml:"jwksUrl,omitempty" json:"jwksUrl,omitempty"`
	RoleClaim  string   `yaml:"roleClaim,omitempty" json:"roleClaim,omitempty"`
	ClockSkew  Duration `yaml:"clockSkew,omitempty" json:"clockSkew,omitempty"`
}

// ToTokenConfig converts the section into the token package configuration.
func (c *TokenConfig) ToTokenConfig() *token.Config {
	if c == nil {
		return nil
	}
	return &token.Config{
		Issuer:     c.Issuer,
		Audience:   c.Audience,
		HMACSecret: c.HMACSecret,
		JWKSURL:    c.JWKSURL,
		RoleClaim:  c.RoleClaim,
		ClockSkew:  c.ClockSkew.Duration(),
	}
}

// AuditConfig is the YAML form of audit emission settings.
type AuditConfig struct {
	Enabled bool            `yaml:"enabled" json:"enabled"`
	Output  string          `yaml:"output,omitempty" json:"output,omitempty"`
	Breaker *BreakerSection `yaml:"breaker,omitempty" json:"breaker,omitempty"`
}

// BreakerSection is the YAML form of the audit sink circuit breaker.
type BreakerSection struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Threshold int      `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Timeout   Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ToAuditConfig converts the section into the audit package configuration.
func (c *AuditConfig) ToAuditConfig() *audit.Config {
	if c == nil {
		return audit.DefaultConfig()
	}
	cfg := &audit.Config{
		Enabled: c.Enabled,
		Output:  c.Output,
	}
	if c.Breaker != nil {
		cfg.Breaker = &audit.BreakerConfig{
			Enabled:   c.Breaker.Enabled,
			Threshold: c.Breaker.Threshold,
			Timeout:   c.Breaker.Timeout.Duration(),
		}
	}
	return cfg
}

// SuspicionConfig is the YAML form of suspicious-activity detection.
type SuspicionConfig struct {
	Enabled   bool                   `yaml:"enabled" json:"enabled"`
	Threshold int64                  `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Window    Duration               `yaml:"window,omitempty" json:"window,omitempty"`
	Redis     *suspicion.RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// ToSuspicionConfig converts the section into the suspicion package
// configuration.
func (c *SuspicionConfig) ToSuspicionConfig() *suspicion.Config {
	if c == nil {
		return &suspicion.Config{Enabled: false}
	}
	return &suspicion.Config{
		Enabled:   c.Enabled,
		Threshold: c.Threshold,
		Window:    c.Window.Duration(),
		Redis:     c.Redis,
	}
}

// DefaultConfig returns the default gateway configuration. The shared
// secret and token verification settings have no defaults and must come
// from the configuration file.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			IdleTimeout:     Duration(60 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Audit: AuditConfig{
			Enabled: true,
			Output:  "stdout",
			Breaker: &BreakerSection{
				Enabled:   true,
				Threshold: 5,
				Timeout:   Duration(30 * time.Second),
			},
		},
		Suspicion: SuspicionConfig{
			Enabled:   true,
			Threshold: 5,
			Window:    Duration(time.Minute),
		},
	}
}

// Validate validates the whole configuration.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if err := c.Auth.Secret.Validate(); err != nil {
		return fmt.Errorf("auth.secret: %w", err)
	}
	if err := c.Auth.Token.ToTokenConfig().Validate(); err != nil {
		return fmt.Errorf("auth.token: %w", err)
	}
	if err := c.Audit.ToAuditConfig().Validate(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if err := c.Suspicion.ToSuspicionConfig().Validate(); err != nil {
		return fmt.Errorf("suspicion: %w", err)
	}
	if err := c.Users.Validate(); err != nil {
		return fmt.Errorf("users: %w", err)
	}

	return nil
}
