package auth

import (
	"context"
	"errors"
	"fmt"
)

// Role is the authorization role carried by a Principal.
type Role string

// Roles, weakest first. System is the synthetic role of shared-secret
// callers and is privilege-equivalent to admin everywhere admin access is
// required.
const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// SystemIdentity is the fixed identity of shared-secret callers.
const SystemIdentity = "system"

// roleRank orders roles for privilege comparison.
func (r Role) rank() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleAdmin:
		return 2
	case RoleSystem:
		return 3
	default:
		return 0
	}
}

// Satisfies reports whether the role grants at least the privilege of the
// required role. System satisfies admin.
func (r Role) Satisfies(required Role) bool {
	return r.rank() >= required.rank()
}

// Valid reports whether the role is a known member of the enumeration.
func (r Role) Valid() bool {
	return r.rank() > 0
}

// ParseRole parses a role string.
func ParseRole(s string) (Role, error) {
	role := Role(s)
	if !role.Valid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return role, nil
}

// Source identifies which credential scheme produced a Principal.
type Source string

// Credential sources.
const (
	SourceBearer       Source = "bearer"
	SourceSharedSecret Source = "shared_secret"
)

// Principal is the resolved identity attached to an authorized request.
// It lives for the duration of one request and is never persisted.
type Principal struct {
	// Identity is the username, or SystemIdentity for shared-secret
	// callers.
	Identity string `json:"identity"`

	// Role is the authorization role.
	Role Role `json:"role"`

	// Source is the credential scheme that authenticated the caller.
	Source Source `json:"source"`
}

// NewPrincipal builds a Principal from a verified bearer claim. The claim
// must already have passed signature and expiry verification.
func NewPrincipal(identity string, role Role) (*Principal, error) {
	if identity == "" {
		return nil, errors.New("identity is required")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role: %q", role)
	}
	return &Principal{
		Identity: identity,
		Role:     role,
		Source:   SourceBearer,
	}, nil
}

// SystemPrincipal returns the fixed principal for callers that presented
// the matching shared secret.
func SystemPrincipal() *Principal {
	return &Principal{
		Identity: SystemIdentity,
		Role:     RoleSystem,
		Source:   SourceSharedSecret,
	}
}

// principalContextKey is the context key for the request's Principal.
type principalContextKey struct{}

// ContextWithPrincipal attaches a Principal to the context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the Principal from the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok && p != nil
}
