// Package token verifies bearer tokens and exposes the verified claim set
// the gateway needs: the caller's identity and role. Signature, expiry,
// issuer, and audience checks happen here; everything downstream trusts
// the returned claims.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vigilops/camgate/internal/observability"
)

// Common errors for token verification.
var (
	// ErrTokenInvalid indicates a token that failed signature, expiry,
	// issuer, or audience verification.
	ErrTokenInvalid = errors.New("token verification failed")

	// ErrMissingRoleClaim indicates a verified token without a role claim.
	ErrMissingRoleClaim = errors.New("token carries no role claim")

	// ErrRefreshUnavailable indicates that no token issuer is wired for
	// refresh.
	ErrRefreshUnavailable = errors.New("token refresh unavailable")
)

// Claims is the verified claim set consumed by the principal factory.
type Claims struct {
	// Identity is the token subject (username).
	Identity string

	// Role is the raw role claim value.
	Role string
}

// Validator verifies a bearer token and returns its claims.
type Validator interface {
	// Validate verifies the token. Any failure, including a verification
	// timeout, must be treated by the caller as an invalid token.
	Validate(ctx context.Context, token string) (*Claims, error)
}

// Refresher exchanges a still-valid token for a fresh one. Token issuance
// belongs to the external issuer; this capability is consumed, not
// implemented, by the gateway.
type Refresher interface {
	// Refresh returns a fresh token for the presented one.
	Refresh(ctx context.Context, token string) (string, error)
}

// Config configures token verification.
type Config struct {
	// Issuer is the required token issuer. Empty skips the check.
	Issuer string `yaml:"issuer,omitempty" json:"issuer,omitempty"`

	// Audience is the required audience. Empty skips the check.
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty"`

	// HMACSecret verifies HS256 tokens when set.
	HMACSecret string `yaml:"hmacSecret,omitempty" json:"hmacSecret,omitempty"`

	// JWKSURL fetches verification keys from the issuer's JWKS endpoint.
	JWKSURL string `yaml:"jwksUrl,omitempty" json:"jwksUrl,omitempty"`

	// RoleClaim is the claim carrying the caller's role. Defaults to
	// "role".
	RoleClaim string `yaml:"roleClaim,omitempty" json:"roleClaim,omitempty"`

	// ClockSkew is the acceptable clock skew for expiry checks.
	ClockSkew time.Duration `yaml:"-" json:"-"`
}

// Validate validates the token configuration.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.HMACSecret == "" && c.JWKSURL == "" {
		return errors.New("either hmacSecret or jwksUrl is required")
	}
	return nil
}

// GetEffectiveRoleClaim returns the effective role claim name.
func (c *Config) GetEffectiveRoleClaim() string {
	if c != nil && c.RoleClaim != "" {
		return c.RoleClaim
	}
	return "role"
}

// validator implements the Validator interface using jwx.
type validator struct {
	config  *Config
	hmacKey jwk.Key
	keySet  jwk.Set
	logger  observability.Logger
}

// ValidatorOption is a functional option for the validator.
type ValidatorOption func(*validator)

// WithValidatorLogger sets the logger.
func WithValidatorLogger(logger observability.Logger) ValidatorOption {
	return func(v *validator) {
		v.logger = logger
	}
}

// WithKeySet sets a pre-built verification key set, bypassing JWKS
// fetching. Intended for tests.
func WithKeySet(set jwk.Set) ValidatorOption {
	return func(v *validator) {
		v.keySet = set
	}
}

// NewValidator creates a token validator from configuration.
func NewValidator(ctx context.Context, config *Config, opts ...ValidatorOption) (Validator, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	v := &validator{
		config: config,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(v)
	}

	if config.HMACSecret != "" {
		key, err := jwk.FromRaw([]byte(config.HMACSecret))
		if err != nil {
			return nil, fmt.Errorf("failed to build HMAC key: %w", err)
		}
		v.hmacKey = key
	}

	if v.keySet == nil && config.JWKSURL != "" {
		cache := jwk.NewCache(ctx)
		if err := cache.Register(config.JWKSURL); err != nil {
			return nil, fmt.Errorf("failed to register JWKS endpoint: %w", err)
		}
		v.keySet = jwk.NewCachedSet(cache, config.JWKSURL)
	}

	return v, nil
}

// Validate verifies the token signature, expiry, issuer, and audience,
// then extracts the identity and role claims.
func (v *validator) Validate(ctx context.Context, token string) (*Claims, error) {
	options := []jwt.ParseOption{
		jwt.WithContext(ctx),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.config.ClockSkew),
	}

	switch {
	case v.keySet != nil:
		options = append(options, jwt.WithKeySet(v.keySet))
	case v.hmacKey != nil:
		options = append(options, jwt.WithKey(jwa.HS256, v.hmacKey))
	default:
		return nil, ErrTokenInvalid
	}

	if v.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		options = append(options, jwt.WithAudience(v.config.Audience))
	}

	parsed, err := jwt.Parse([]byte(token), options...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if parsed.Subject() == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	roleValue, ok := parsed.Get(v.config.GetEffectiveRoleClaim())
	if !ok {
		return nil, ErrMissingRoleClaim
	}
	role, ok := roleValue.(string)
	if !ok || role == "" {
		return nil, ErrMissingRoleClaim
	}

	return &Claims{
		Identity: parsed.Subject(),
		Role:     role,
	}, nil
}

// NopRefresher is a Refresher for deployments without a wired issuer;
// every refresh attempt fails with ErrRefreshUnavailable.
type NopRefresher struct{}

// Refresh always fails.
func (NopRefresher) Refresh(context.Context, string) (string, error) {
	return "", ErrRefreshUnavailable
}

// Ensure implementations satisfy their interfaces.
var (
	_ Validator = (*validator)(nil)
	_ Refresher = NopRefresher{}
)
