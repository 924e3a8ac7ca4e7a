package reqctx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilops/camgate/internal/observability"
)

func newRequest(t *testing.T, headers map[string]string) *http.Request {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", nil)
	r.RemoteAddr = "192.0.2.10:51234"
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestFromRequest_ForwardedForChain(t *testing.T) {
	t.Parallel()

	r := newRequest(t, map[string]string{
		HeaderXForwardedFor: "203.0.113.5, 10.0.0.1",
	})

	rc := FromRequest(r)
	assert.Equal(t, "203.0.113.5", rc.IPAddress)
}

func TestFromRequest_ForwardedForSingle(t *testing.T) {
	t.Parallel()

	r := newRequest(t, map[string]string{
		HeaderXForwardedFor: "  198.51.100.7  ",
	})

	rc := FromRequest(r)
	assert.Equal(t, "198.51.100.7", rc.IPAddress)
}

func TestFromRequest_RemoteAddrFallback(t *testing.T) {
	t.Parallel()

	rc := FromRequest(newRequest(t, nil))
	assert.Equal(t, "192.0.2.10", rc.IPAddress)
}

func TestFromRequest_IPv6RemoteAddr(t *testing.T) {
	t.Parallel()

	r := newRequest(t, nil)
	r.RemoteAddr = "[::1]:8080"

	rc := FromRequest(r)
	assert.Equal(t, "::1", rc.IPAddress)
}

func TestFromRequest_UserAgentSentinel(t *testing.T) {
	t.Parallel()

	rc := FromRequest(newRequest(t, nil))
	assert.Equal(t, UnknownUserAgent, rc.UserAgent)

	r := newRequest(t, map[string]string{"User-Agent": "camctl/1.2"})
	rc = FromRequest(r)
	assert.Equal(t, "camctl/1.2", rc.UserAgent)
}

func TestFromRequest_CorrelationID(t *testing.T) {
	t.Parallel()

	t.Run("minted when absent", func(t *testing.T) {
		t.Parallel()

		rc := FromRequest(newRequest(t, nil))
		assert.NotEmpty(t, rc.CorrelationID)
	})

	t.Run("reused from header", func(t *testing.T) {
		t.Parallel()

		r := newRequest(t, map[string]string{HeaderXRequestID: "req-42"})
		rc := FromRequest(r)
		assert.Equal(t, "req-42", rc.CorrelationID)
	})

	t.Run("context takes precedence over header", func(t *testing.T) {
		t.Parallel()

		r := newRequest(t, map[string]string{HeaderXRequestID: "req-42"})
		r = r.WithContext(observability.ContextWithCorrelationID(r.Context(), "ctx-99"))
		rc := FromRequest(r)
		assert.Equal(t, "ctx-99", rc.CorrelationID)
	})
}

func TestFromRequest_MethodPath(t *testing.T) {
	t.Parallel()

	rc := FromRequest(newRequest(t, nil))
	assert.Equal(t, http.MethodPost, rc.Method)
	assert.Equal(t, "/api/v1/ingest", rc.Path)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var seen *RequestContext
	handler := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, ok := FromContext(r.Context())
		require.True(t, ok)
		seen = rc

		assert.Equal(t, rc.CorrelationID, observability.CorrelationIDFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(t, map[string]string{HeaderXRequestID: "req-7"}))

	require.NotNil(t, seen)
	assert.Equal(t, "req-7", seen.CorrelationID)
	assert.Equal(t, "req-7", rec.Header().Get(HeaderXRequestID))
}

func TestMiddleware_StableIDPerRequest(t *testing.T) {
	t.Parallel()

	var ids []string
	handler := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, _ := FromContext(r.Context())
		ids = append(ids, rc.CorrelationID)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), newRequest(t, nil))
	handler.ServeHTTP(httptest.NewRecorder(), newRequest(t, nil))

	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
}
