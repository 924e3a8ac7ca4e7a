// Package authz enforces role requirements on authenticated requests.
//
// Authentication and authorization answer different questions and get
// different status codes: a request with no valid Principal is rejected by
// the auth gateway as unauthorized before it reaches this package; a
// request with a valid Principal whose role is insufficient is rejected
// here as forbidden.
package authz

import (
	"encoding/json"
	"net/http"

	"github.com/vigilops/camgate/internal/auth"
	"github.com/vigilops/camgate/internal/observability"
)

const msgForbidden = "insufficient privileges"

// Enforcer applies role requirements to routes.
type Enforcer struct {
	logger observability.Logger
}

// EnforcerOption is a functional option for the enforcer.
type EnforcerOption func(*Enforcer)

// WithEnforcerLogger sets the logger.
func WithEnforcerLogger(logger observability.Logger) EnforcerOption {
	return func(e *Enforcer) {
		e.logger = logger
	}
}

// NewEnforcer creates a role enforcer.
func NewEnforcer(opts ...EnforcerOption) *Enforcer {
	e := &Enforcer{
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RequireRole returns middleware that admits only principals whose role
// satisfies the required one. System principals satisfy admin requirements.
// A request without a Principal in its context reached this middleware
// without passing the auth gateway and is rejected as unauthorized.
func (e *Enforcer) RequireRole(required auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				auth.WriteUnauthorized(w, auth.ErrMissingCredential)
				return
			}

			if !principal.Role.Satisfies(required) {
				e.logger.WithContext(r.Context()).Warn("authorization denied",
					observability.String("identity", principal.Identity),
					observability.String("role", string(principal.Role)),
					observability.String("required_role", string(required)),
					observability.String("path", r.URL.Path),
				)
				WriteForbidden(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WriteForbidden renders an authorization denial as a JSON error response
// with the forbidden status.
func WriteForbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": msgForbidden,
	})
}
