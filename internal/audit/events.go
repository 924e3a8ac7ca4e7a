package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/vigilops/camgate/internal/reqctx"
)

// EventType identifies a member of the security event taxonomy.
type EventType string

// The taxonomy is a closed set: extend only by adding members, never by
// repurposing existing ones.
const (
	EventAuthFailed         EventType = "auth_failed"
	EventAuthSuccess        EventType = "auth_success"
	EventPasswordChanged    EventType = "password_changed"
	EventTokenRefreshFailed EventType = "token_refresh_failed"
	EventRoleChanged        EventType = "role_changed"
	EventUserDeactivated    EventType = "user_deactivated"
	EventSuspiciousActivity EventType = "suspicious_activity"
)

// Severity is the severity attached to an emitted event.
type Severity string

// Severities.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Severity returns the fixed severity for the event type.
func (t EventType) Severity() Severity {
	switch t {
	case EventAuthFailed, EventTokenRefreshFailed, EventSuspiciousActivity:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Valid reports whether the event type is a member of the taxonomy.
func (t EventType) Valid() bool {
	switch t {
	case EventAuthFailed, EventAuthSuccess, EventPasswordChanged,
		EventTokenRefreshFailed, EventRoleChanged, EventUserDeactivated,
		EventSuspiciousActivity:
		return true
	default:
		return false
	}
}

// Failure reasons recorded on auth_failed and token_refresh_failed events.
const (
	ReasonMissingCredential   = "missing_credential"
	ReasonInvalidSharedSecret = "invalid_shared_secret"
	ReasonInvalidToken        = "invalid_token"
)

// timestampLayout renders UTC timestamps with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Record is one flat security event record as delivered to the sink.
// All context and event fields sit at the top level; there is no nested
// envelope.
type Record map[string]interface{}

// Reserved record keys. Event-specific and extra fields may never shadow
// them.
const (
	keyEventID       = "event_id"
	keyEventType     = "event_type"
	keyTimestamp     = "timestamp"
	keySeverity      = "severity"
	keyCorrelationID = "correlation_id"
)

// newRecord assembles a flat record for one event. Extra fields are merged
// first, then the request context, then the event's fixed fields, then the
// envelope, so later layers win on key collisions.
func newRecord(
	eventType EventType,
	rc *reqctx.RequestContext,
	fields map[string]interface{},
	extra map[string]interface{},
) Record {
	record := make(Record, len(extra)+len(fields)+8)

	for k, v := range extra {
		record[k] = v
	}

	if rc != nil {
		record["ip_address"] = rc.IPAddress
		record["user_agent"] = rc.UserAgent
		record["method"] = rc.Method
		record["path"] = rc.Path
		record[keyCorrelationID] = rc.CorrelationID
	}

	for k, v := range fields {
		record[k] = v
	}

	record[keyEventID] = uuid.New().String()
	record[keyEventType] = string(eventType)
	record[keyTimestamp] = time.Now().UTC().Format(timestampLayout)
	record[keySeverity] = string(eventType.Severity())

	// Every record carries a non-empty correlation id, even when the
	// caller could not supply a request context.
	if id, ok := record[keyCorrelationID].(string); !ok || id == "" {
		record[keyCorrelationID] = uuid.New().String()
	}

	return record
}
