package auth

import (
	"errors"

	"github.com/vigilops/camgate/internal/audit"
)

// Sentinel errors for authentication outcomes. All three map to an
// unauthorized response; authorization denials on a validated Principal
// live in the authz package and map to forbidden.
var (
	// ErrMissingCredential indicates that no credential was presented.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidSharedSecret indicates a shared-secret header whose value
	// does not match the configured secret.
	ErrInvalidSharedSecret = errors.New("invalid shared secret")

	// ErrInvalidToken indicates a bearer token that failed verification,
	// including expiry and verification timeouts.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// FailureReason maps an authentication error to its audit failure reason.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return audit.ReasonMissingCredential
	case errors.Is(err, ErrInvalidSharedSecret):
		return audit.ReasonInvalidSharedSecret
	default:
		return audit.ReasonInvalidToken
	}
}
