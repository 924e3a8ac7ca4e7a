package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/vigilops/camgate/internal/secrets"
)

// Header and scheme constants for credential extraction.
const (
	// HeaderAuthorization is the Authorization header name.
	HeaderAuthorization = "Authorization"

	// DefaultSecretHeader is the default shared-secret header name.
	DefaultSecretHeader = "X-Secret-Key"

	// SchemeBearer is the Bearer authentication scheme prefix.
	SchemeBearer = "Bearer "
)

// CredentialKind tags the credential union.
type CredentialKind string

// Credential kinds.
const (
	CredentialNone         CredentialKind = "none"
	CredentialBearer       CredentialKind = "bearer"
	CredentialSharedSecret CredentialKind = "shared_secret"
)

// Credential is the tagged union of accepted credential schemes. It is
// never persisted and never logged.
type Credential struct {
	Kind CredentialKind

	// Token is the opaque bearer token; set only for CredentialBearer.
	Token string
}

// Resolver inspects request headers and produces exactly one of Bearer,
// SharedSecret, or None.
type Resolver struct {
	secretHeader string
	secret       *secrets.Holder
}

// NewResolver creates a credential resolver. The header name defaults to
// X-Secret-Key when empty.
func NewResolver(secretHeader string, secret *secrets.Holder) *Resolver {
	if secretHeader == "" {
		secretHeader = DefaultSecretHeader
	}
	return &Resolver{
		secretHeader: secretHeader,
		secret:       secret,
	}
}

// Resolve applies the scheme precedence: a present shared-secret header is
// evaluated first and a mismatch is a hard ErrInvalidSharedSecret — it
// never falls through to the bearer check. Only when the secret header is
// absent is the Authorization header consulted. No credential at all
// resolves to CredentialNone without error; the gateway maps that to
// ErrMissingCredential.
func (r *Resolver) Resolve(req *http.Request) (Credential, error) {
	if presented := req.Header.Get(r.secretHeader); presented != "" {
		if !r.secretMatches(presented) {
			return Credential{Kind: CredentialNone}, ErrInvalidSharedSecret
		}
		return Credential{Kind: CredentialSharedSecret}, nil
	}

	if authz := req.Header.Get(HeaderAuthorization); authz != "" {
		if len(authz) > len(SchemeBearer) && strings.EqualFold(authz[:len(SchemeBearer)], SchemeBearer) {
			if token := strings.TrimSpace(authz[len(SchemeBearer):]); token != "" {
				return Credential{Kind: CredentialBearer, Token: token}, nil
			}
		}
	}

	return Credential{Kind: CredentialNone}, nil
}

// secretMatches compares the presented value against the configured
// secret. Both sides are hashed before the constant-time comparison so
// that neither content nor length differences are observable through
// timing.
func (r *Resolver) secretMatches(presented string) bool {
	configured := r.secret.Value()
	if configured == "" {
		return false
	}

	presentedHash := sha256.Sum256([]byte(presented))
	configuredHash := sha256.Sum256([]byte(configured))

	return subtle.ConstantTimeCompare(presentedHash[:], configuredHash[:]) == 1
}
