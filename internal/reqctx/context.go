// Package reqctx extracts caller-identifying metadata from inbound requests.
//
// A RequestContext is built once per request and threaded explicitly through
// authentication and audit emission, so that every security event produced
// while handling one request carries the same correlation id.
package reqctx

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/vigilops/camgate/internal/observability"
)

// Header names consulted during extraction.
const (
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderXRequestID    = "X-Request-ID"
)

// UnknownUserAgent is the sentinel recorded when a request carries no
// User-Agent header.
const UnknownUserAgent = "unknown"

// RequestContext holds caller-identifying metadata for one inbound request.
// It is ephemeral: created when the request arrives and discarded with it.
type RequestContext struct {
	IPAddress     string `json:"ip_address"`
	UserAgent     string `json:"user_agent"`
	CorrelationID string `json:"correlation_id"`
	Method        string `json:"method"`
	Path          string `json:"path"`
}

// FromRequest builds a RequestContext from an inbound HTTP request.
//
// IP resolution prefers X-Forwarded-For; a comma-separated proxy chain
// yields its first entry, trimmed. Otherwise the transport peer address is
// used with the port stripped. The correlation id is reused when the
// surrounding framework already attached one (request context or
// X-Request-ID header); otherwise a fresh UUID is minted.
func FromRequest(r *http.Request) *RequestContext {
	ua := r.UserAgent()
	if ua == "" {
		ua = UnknownUserAgent
	}

	return &RequestContext{
		IPAddress:     clientIP(r),
		UserAgent:     ua,
		CorrelationID: correlationID(r),
		Method:        r.Method,
		Path:          r.URL.Path,
	}
}

// clientIP resolves the originating client address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get(HeaderXForwardedFor); xff != "" {
		first := xff
		if idx := strings.Index(xff, ","); idx >= 0 {
			first = xff[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return stripPort(r.RemoteAddr)
}

// correlationID returns the request-scoped id, minting one when absent.
func correlationID(r *http.Request) string {
	if id := observability.CorrelationIDFromContext(r.Context()); id != "" {
		return id
	}
	if id := r.Header.Get(HeaderXRequestID); id != "" {
		return id
	}
	return uuid.New().String()
}

// stripPort removes the port from an address string. Handles both IPv4
// ("192.168.1.1:8080") and IPv6 ("[::1]:8080") formats.
func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// requestContextKey is the context key for the extracted RequestContext.
type requestContextKey struct{}

// ContextWith attaches a RequestContext to the context.
func ContextWith(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext extracts the RequestContext from the context.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}

// Middleware extracts a RequestContext for every request, attaches it and
// its correlation id to the request context, and echoes the correlation id
// on the response so clients can join their logs with the gateway's.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := FromRequest(r)

			ctx := observability.ContextWithCorrelationID(r.Context(), rc.CorrelationID)
			ctx = ContextWith(ctx, rc)

			w.Header().Set(HeaderXRequestID, rc.CorrelationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
