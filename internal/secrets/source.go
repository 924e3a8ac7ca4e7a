// Package secrets resolves the gateway's shared secret from its configured
// backend: an inline/static value, an environment variable, or a HashiCorp
// Vault KV v2 field.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vigilops/camgate/internal/observability"
)

// Common errors for secret resolution.
var (
	// ErrSecretNotFound is returned when the backend holds no value.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrSecretEmpty is returned when the resolved value is empty.
	ErrSecretEmpty = errors.New("secret is empty")
)

// Source loads the shared secret from its backend.
type Source interface {
	// Load resolves the current secret value.
	Load(ctx context.Context) (string, error)
}

// StaticSource returns a fixed value, typically inlined in configuration
// (possibly via env substitution at load time).
type StaticSource struct {
	value string
}

// NewStaticSource creates a static source.
func NewStaticSource(value string) *StaticSource {
	return &StaticSource{value: value}
}

// Load returns the configured value.
func (s *StaticSource) Load(_ context.Context) (string, error) {
	if s.value == "" {
		return "", ErrSecretEmpty
	}
	return s.value, nil
}

// EnvSource reads the secret from an environment variable.
type EnvSource struct {
	name string
}

// NewEnvSource creates an environment variable source.
func NewEnvSource(name string) *EnvSource {
	return &EnvSource{name: name}
}

// Load reads the environment variable.
func (s *EnvSource) Load(_ context.Context) (string, error) {
	value, ok := os.LookupEnv(s.name)
	if !ok {
		return "", fmt.Errorf("%w: environment variable %s", ErrSecretNotFound, s.name)
	}
	if value == "" {
		return "", ErrSecretEmpty
	}
	return value, nil
}

// VaultConfig configures the Vault KV v2 source.
type VaultConfig struct {
	// Address is the Vault server address.
	Address string `yaml:"address" json:"address"`

	// Token is the Vault token. AppRole and Kubernetes auth are handled
	// by the Vault agent sidecar in the deployments this gateway targets.
	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	// Mount is the KV v2 secrets engine mount point.
	Mount string `yaml:"mount,omitempty" json:"mount,omitempty"`

	// Path is the secret path under the mount.
	Path string `yaml:"path" json:"path"`

	// Field is the field within the secret data holding the value.
	Field string `yaml:"field,omitempty" json:"field,omitempty"`

	// Timeout bounds each Vault request.
	Timeout time.Duration `yaml:"-" json:"-"`
}

// Validate validates the Vault source configuration.
func (c *VaultConfig) Validate() error {
	if c == nil {
		return nil
	}
	if c.Address == "" {
		return errors.New("address is required")
	}
	if c.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

// VaultSource reads the secret from a Vault KV v2 field.
type VaultSource struct {
	client *vaultapi.Client
	mount  string
	path   string
	field  string
	logger observability.Logger
}

// VaultSourceOption is a functional option for the Vault source.
type VaultSourceOption func(*VaultSource)

// WithVaultSourceLogger sets the logger.
func WithVaultSourceLogger(logger observability.Logger) VaultSourceOption {
	return func(s *VaultSource) {
		s.logger = logger
	}
}

// NewVaultSource creates a Vault KV v2 source.
func NewVaultSource(cfg *VaultConfig, opts ...VaultSourceOption) (*VaultSource, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = cfg.Address
	if cfg.Timeout > 0 {
		apiConfig.Timeout = cfg.Timeout
	}

	client, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}
	field := cfg.Field
	if field == "" {
		field = "value"
	}

	s := &VaultSource{
		client: client,
		mount:  mount,
		path:   cfg.Path,
		field:  field,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Load reads the configured field from the KV v2 secret.
func (s *VaultSource) Load(ctx context.Context) (string, error) {
	secret, err := s.client.KVv2(s.mount).Get(ctx, s.path)
	if err != nil {
		return "", fmt.Errorf("vault read %s/%s: %w", s.mount, s.path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: %s/%s", ErrSecretNotFound, s.mount, s.path)
	}

	value, ok := secret.Data[s.field].(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q at %s/%s", ErrSecretNotFound, s.field, s.mount, s.path)
	}
	if value == "" {
		return "", ErrSecretEmpty
	}

	s.logger.Debug("shared secret loaded from vault",
		observability.String("mount", s.mount),
		observability.String("path", s.path),
	)

	return value, nil
}

// Holder caches the current secret value for lock-free reads on the
// request path. Reload replaces the value atomically, so in-flight
// requests observe either the old or the new secret, never a torn value.
type Holder struct {
	mu     sync.Mutex
	source Source
	value  atomic.Value
}

// NewHolder creates a holder over the given source and performs the
// initial load.
func NewHolder(ctx context.Context, source Source) (*Holder, error) {
	h := &Holder{source: source}
	if err := h.Reload(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Reload re-resolves the secret from the source.
func (h *Holder) Reload(ctx context.Context) error {
	h.mu.Lock()
	source := h.source
	h.mu.Unlock()

	value, err := source.Load(ctx)
	if err != nil {
		return err
	}
	h.value.Store(value)
	return nil
}

// SwapSource replaces the backend and loads from it. On load failure the
// previous source and value stay in effect. Used by configuration hot
// reload.
func (h *Holder) SwapSource(ctx context.Context, source Source) error {
	value, err := source.Load(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.source = source
	h.mu.Unlock()

	h.value.Store(value)
	return nil
}

// Value returns the cached secret.
func (h *Holder) Value() string {
	if v, ok := h.value.Load().(string); ok {
		return v
	}
	return ""
}

// Ensure implementations satisfy the interface.
var (
	_ Source = (*StaticSource)(nil)
	_ Source = (*EnvSource)(nil)
	_ Source = (*VaultSource)(nil)
)
