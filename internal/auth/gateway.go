package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vigilops/camgate/internal/audit"
	"github.com/vigilops/camgate/internal/auth/token"
	"github.com/vigilops/camgate/internal/observability"
	"github.com/vigilops/camgate/internal/reqctx"
)

// Rejection messages. The missing-credential message names both accepted
// schemes so legitimate integrators can self-correct; the invalid message
// never states which part of a credential was wrong.
const (
	msgMissingCredential = "authentication required: provide a bearer token or a secret key header"
	msgInvalidCredential = "invalid credentials"
)

// FailureTracker observes authentication failures for suspicious-pattern
// detection. Implementations must never fail the request path.
type FailureTracker interface {
	RecordFailure(ctx context.Context, rc *reqctx.RequestContext)
}

// Gateway evaluates authentication for inbound requests: it resolves the
// presented credential, constructs a Principal, emits exactly one audit
// event per outcome, and either attaches the Principal to the request
// context or rejects with unauthorized.
type Gateway struct {
	resolver *Resolver
	tokens   token.Validator
	emitter  audit.Emitter
	tracker  FailureTracker
	logger   observability.Logger
	metrics  *Metrics
}

// GatewayOption is a functional option for the gateway.
type GatewayOption func(*Gateway)

// WithGatewayLogger sets the logger.
func WithGatewayLogger(logger observability.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithGatewayMetrics sets the metrics.
func WithGatewayMetrics(metrics *Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = metrics
	}
}

// WithFailureTracker sets the failure tracker consulted on every
// authentication failure.
func WithFailureTracker(tracker FailureTracker) GatewayOption {
	return func(g *Gateway) {
		g.tracker = tracker
	}
}

// NewGateway creates an authentication gateway. The emitter is required:
// auditing is part of the gateway's contract, not an optional add-on
// (use audit.NewNoopEmitter in tests that don't assert on events).
func NewGateway(
	resolver *Resolver,
	tokens token.Validator,
	emitter audit.Emitter,
	opts ...GatewayOption,
) (*Gateway, error) {
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if emitter == nil {
		return nil, errors.New("emitter is required")
	}

	g := &Gateway{
		resolver: resolver,
		tokens:   tokens,
		emitter:  emitter,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.metrics == nil {
		g.metrics = NewMetrics("camgate")
	}

	return g, nil
}

// Authenticate evaluates one request. The returned error is one of the
// package sentinels; an audit event has already been emitted for the
// outcome by the time Authenticate returns.
func (g *Gateway) Authenticate(r *http.Request) (*Principal, error) {
	start := time.Now()
	ctx := r.Context()

	rc, ok := reqctx.FromContext(ctx)
	if !ok {
		rc = reqctx.FromRequest(r)
	}

	cred, err := g.resolver.Resolve(r)
	if err != nil {
		// A wrong shared secret is a hard rejection; the bearer path is
		// never consulted.
		return nil, g.reject(ctx, rc, string(CredentialSharedSecret), "", err, start)
	}

	switch cred.Kind {
	case CredentialSharedSecret:
		principal := SystemPrincipal()
		g.accept(ctx, rc, principal, start)
		return principal, nil

	case CredentialBearer:
		claims, err := g.tokens.Validate(ctx, cred.Token)
		if err != nil {
			// Expired, malformed, or verification timeout: all collapse
			// to the same rejection.
			return nil, g.reject(ctx, rc, string(CredentialBearer), "", ErrInvalidToken, start)
		}

		role, err := ParseRole(claims.Role)
		if err != nil {
			return nil, g.reject(ctx, rc, string(CredentialBearer), claims.Identity, ErrInvalidToken, start)
		}

		principal, err := NewPrincipal(claims.Identity, role)
		if err != nil {
			return nil, g.reject(ctx, rc, string(CredentialBearer), claims.Identity, ErrInvalidToken, start)
		}

		g.accept(ctx, rc, principal, start)
		return principal, nil

	default:
		return nil, g.reject(ctx, rc, string(CredentialNone), "", ErrMissingCredential, start)
	}
}

// accept records a successful authentication.
func (g *Gateway) accept(ctx context.Context, rc *reqctx.RequestContext, p *Principal, start time.Time) {
	g.metrics.RecordAttempt(string(p.Source), "success", time.Since(start))
	g.emitter.AuthSuccess(ctx, rc, p.Identity, map[string]interface{}{
		"source": string(p.Source),
		"role":   string(p.Role),
	})
}

// reject records a failed authentication and returns the sentinel error.
func (g *Gateway) reject(
	ctx context.Context,
	rc *reqctx.RequestContext,
	scheme, username string,
	err error,
	start time.Time,
) error {
	reason := FailureReason(err)

	g.metrics.RecordAttempt(scheme, "failure", time.Since(start))
	g.metrics.RecordFailure(scheme, reason)

	g.logger.WithContext(ctx).Warn("authentication failed",
		observability.String("scheme", scheme),
		observability.String("reason", reason),
		observability.String("path", rc.Path),
	)

	g.emitter.AuthFailed(ctx, rc, username, reason, nil)

	if g.tracker != nil {
		g.tracker.RecordFailure(ctx, rc)
	}

	return err
}

// Middleware intercepts every request: authorized requests continue with
// the Principal attached to their context; rejected requests are answered
// with unauthorized and proceed no further.
func (g *Gateway) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := g.Authenticate(r)
			if err != nil {
				WriteUnauthorized(w, err)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteUnauthorized renders an authentication failure as a JSON error
// response with the unauthorized status. Authorization-policy denials are
// rendered by the authz package as forbidden; the two stay distinguishable
// end to end.
func WriteUnauthorized(w http.ResponseWriter, err error) {
	message := msgInvalidCredential
	if errors.Is(err, ErrMissingCredential) {
		message = msgMissingCredential
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
