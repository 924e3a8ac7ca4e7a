package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilops/camgate/internal/reqctx"
)

func testRequestContext() *reqctx.RequestContext {
	return &reqctx.RequestContext{
		IPAddress:     "203.0.113.5",
		UserAgent:     "camctl/1.2",
		CorrelationID: "corr-1",
		Method:        "POST",
		Path:          "/api/v1/ingest",
	}
}

func TestEventType_Severity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		eventType EventType
		want      Severity
	}{
		{EventAuthSuccess, SeverityInfo},
		{EventPasswordChanged, SeverityInfo},
		{EventRoleChanged, SeverityInfo},
		{EventUserDeactivated, SeverityInfo},
		{EventAuthFailed, SeverityWarning},
		{EventTokenRefreshFailed, SeverityWarning},
		{EventSuspiciousActivity, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.eventType.Severity())
		})
	}
}

func TestEventType_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, EventAuthFailed.Valid())
	assert.True(t, EventSuspiciousActivity.Valid())
	assert.False(t, EventType("login").Valid())
	assert.False(t, EventType("").Valid())
}

func TestNewRecord_Flattening(t *testing.T) {
	t.Parallel()

	record := newRecord(EventAuthSuccess, testRequestContext(),
		map[string]interface{}{"username": "alice"},
		map[string]interface{}{"camera_id": "cam-7"},
	)

	assert.Equal(t, "auth_success", record["event_type"])
	assert.Equal(t, "info", record["severity"])
	assert.Equal(t, "corr-1", record["correlation_id"])
	assert.Equal(t, "203.0.113.5", record["ip_address"])
	assert.Equal(t, "camctl/1.2", record["user_agent"])
	assert.Equal(t, "POST", record["method"])
	assert.Equal(t, "/api/v1/ingest", record["path"])
	assert.Equal(t, "alice", record["username"])
	assert.Equal(t, "cam-7", record["camera_id"])
	assert.NotEmpty(t, record["event_id"])
}

func TestNewRecord_TimestampUTCMillis(t *testing.T) {
	t.Parallel()

	record := newRecord(EventAuthFailed, testRequestContext(), nil, nil)

	ts, ok := record["timestamp"].(string)
	require.True(t, ok)

	parsed, err := time.Parse(timestampLayout, ts)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), parsed, time.Minute)
	assert.Equal(t, time.UTC, parsed.Location())
}

func TestNewRecord_ExtrasNeverShadowEnvelope(t *testing.T) {
	t.Parallel()

	record := newRecord(EventAuthFailed, testRequestContext(),
		map[string]interface{}{"failure_reason": ReasonInvalidToken},
		map[string]interface{}{
			"event_type":     "forged",
			"severity":       "info",
			"correlation_id": "forged",
			"failure_reason": "forged",
		},
	)

	assert.Equal(t, "auth_failed", record["event_type"])
	assert.Equal(t, "warning", record["severity"])
	assert.Equal(t, "corr-1", record["correlation_id"])
	assert.Equal(t, ReasonInvalidToken, record["failure_reason"])
}

func TestNewRecord_MintsCorrelationIDWithoutContext(t *testing.T) {
	t.Parallel()

	record := newRecord(EventSuspiciousActivity, nil, nil, nil)

	id, ok := record["correlation_id"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, id)
}
