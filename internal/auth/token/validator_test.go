package token

import (
	"context"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type tokenSpec struct {
	subject  string
	role     string
	issuer   string
	audience string
	expiry   time.Time
	secret   string
}

func signToken(t *testing.T, spec tokenSpec) string {
	t.Helper()

	builder := jwt.NewBuilder()
	if spec.subject != "" {
		builder = builder.Subject(spec.subject)
	}
	if spec.role != "" {
		builder = builder.Claim("role", spec.role)
	}
	if spec.issuer != "" {
		builder = builder.Issuer(spec.issuer)
	}
	if spec.audience != "" {
		builder = builder.Audience([]string{spec.audience})
	}
	if spec.expiry.IsZero() {
		spec.expiry = time.Now().Add(time.Hour)
	}
	builder = builder.Expiration(spec.expiry).IssuedAt(time.Now())

	tok, err := builder.Build()
	require.NoError(t, err)

	secret := spec.secret
	if secret == "" {
		secret = testSecret
	}
	key, err := jwk.FromRaw([]byte(secret))
	require.NoError(t, err)

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, key))
	require.NoError(t, err)
	return string(signed)
}

func newHMACValidator(t *testing.T, cfg *Config) Validator {
	t.Helper()

	if cfg == nil {
		cfg = &Config{HMACSecret: testSecret}
	}
	v, err := NewValidator(context.Background(), cfg)
	require.NoError(t, err)
	return v
}

func TestValidator_ValidToken(t *testing.T) {
	t.Parallel()

	v := newHMACValidator(t, nil)
	signed := signToken(t, tokenSpec{subject: "alice", role: "admin"})

	claims, err := v.Validate(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Identity)
	assert.Equal(t, "admin", claims.Role)
}

func TestValidator_WrongKey(t *testing.T) {
	t.Parallel()

	v := newHMACValidator(t, nil)
	signed := signToken(t, tokenSpec{subject: "alice", role: "viewer", secret: "another-secret-another-secret!!!"})

	_, err := v.Validate(context.Background(), signed)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidator_ExpiredToken(t *testing.T) {
	t.Parallel()

	v := newHMACValidator(t, nil)
	signed := signToken(t, tokenSpec{
		subject: "alice",
		role:    "viewer",
		expiry:  time.Now().Add(-time.Hour),
	})

	_, err := v.Validate(context.Background(), signed)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidator_ClockSkewTolerance(t *testing.T) {
	t.Parallel()

	v := newHMACValidator(t, &Config{HMACSecret: testSecret, ClockSkew: 2 * time.Minute})
	signed := signToken(t, tokenSpec{
		subject: "alice",
		role:    "viewer",
		expiry:  time.Now().Add(-30 * time.Second),
	})

	_, err := v.Validate(context.Background(), signed)
	require.NoError(t, err)
}

func TestValidator_IssuerAudienceChecks(t *testing.T) {
	t.Parallel()

	v := newHMACValidator(t, &Config{
		HMACSecret: testSecret,
		Issuer:     "camgate-issuer",
		Audience:   "camgate",
	})

	good := signToken(t, tokenSpec{
		subject: "alice", role: "viewer",
		issuer: "camgate-issuer", audience: "camgate",
	})
	_, err := v.Validate(context.Background(), good)
	require.NoError(t, err)

	badIssuer := signToken(t, tokenSpec{
		subject: "alice", role: "viewer",
		issuer: "someone-else", audience: "camgate",
	})
	_, err = v.Validate(context.Background(), badIssuer)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidator_MissingClaims(t *testing.T) {
	t.Parallel()

	v := newHMACValidator(t, nil)

	noRole := signToken(t, tokenSpec{subject: "alice"})
	_, err := v.Validate(context.Background(), noRole)
	assert.ErrorIs(t, err, ErrMissingRoleClaim)

	noSubject := signToken(t, tokenSpec{role: "viewer"})
	_, err = v.Validate(context.Background(), noSubject)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidator_Deterministic(t *testing.T) {
	t.Parallel()

	v := newHMACValidator(t, nil)
	signed := signToken(t, tokenSpec{subject: "alice", role: "viewer"})

	first, err := v.Validate(context.Background(), signed)
	require.NoError(t, err)
	second, err := v.Validate(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestValidator_Garbage(t *testing.T) {
	t.Parallel()

	v := newHMACValidator(t, nil)
	_, err := v.Validate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, (*Config)(nil).Validate())
	assert.Error(t, (&Config{}).Validate())
	assert.NoError(t, (&Config{HMACSecret: testSecret}).Validate())
	assert.NoError(t, (&Config{JWKSURL: "https://issuer.example/jwks"}).Validate())
}

func TestNewValidator_RequiresConfig(t *testing.T) {
	t.Parallel()

	_, err := NewValidator(context.Background(), nil)
	require.Error(t, err)
}

func TestNopRefresher(t *testing.T) {
	t.Parallel()

	_, err := NopRefresher{}.Refresh(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrRefreshUnavailable)
}
