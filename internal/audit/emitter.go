package audit

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/trace"

	"github.com/vigilops/camgate/internal/observability"
	"github.com/vigilops/camgate/internal/reqctx"
)

// Emitter emits security events. One operation per taxonomy member; each
// merges its event-specific fields and the optional extra map over the
// request context into one flat record and hands it to the sink.
//
// Emission never returns an error: delivery failure is recorded locally and
// swallowed, because audit delivery must never fail the operation it is
// recording.
type Emitter interface {
	AuthSuccess(ctx context.Context, rc *reqctx.RequestContext, username string, extra map[string]interface{})
	AuthFailed(ctx context.Context, rc *reqctx.RequestContext, username, reason string, extra map[string]interface{})
	PasswordChanged(ctx context.Context, rc *reqctx.RequestContext, targetUsername, changedBy string, extra map[string]interface{})
	TokenRefreshFailed(ctx context.Context, rc *reqctx.RequestContext, username, reason string, extra map[string]interface{})
	RoleChanged(ctx context.Context, rc *reqctx.RequestContext, targetUsername, oldRole, newRole, changedBy string, extra map[string]interface{})
	UserDeactivated(ctx context.Context, rc *reqctx.RequestContext, targetUsername, changedBy string, extra map[string]interface{})
	SuspiciousActivity(ctx context.Context, rc *reqctx.RequestContext, description string, extra map[string]interface{})

	// Close closes the underlying sink.
	Close() error
}

// emitter implements the Emitter interface.
type emitter struct {
	config  *Config
	sink    Sink
	logger  observability.Logger
	metrics *Metrics
}

// EmitterOption is a functional option for the emitter.
type EmitterOption func(*emitter)

// WithEmitterLogger sets the local diagnostic logger used as the delivery
// fallback.
func WithEmitterLogger(logger observability.Logger) EmitterOption {
	return func(e *emitter) {
		e.logger = logger
	}
}

// WithEmitterMetrics sets the metrics.
func WithEmitterMetrics(metrics *Metrics) EmitterOption {
	return func(e *emitter) {
		e.metrics = metrics
	}
}

// WithEmitterSink sets the sink.
func WithEmitterSink(sink Sink) EmitterOption {
	return func(e *emitter) {
		e.sink = sink
	}
}

// NewEmitter creates a new audit emitter. When no sink is provided, one is
// built from the configuration, breaker-wrapped when the breaker is
// enabled.
func NewEmitter(config *Config, opts ...EmitterOption) (Emitter, error) {
	if config == nil {
		config = DefaultConfig()
	}

	e := &emitter{
		config: config,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		e.metrics = NewMetrics("camgate")
	}

	if e.sink == nil {
		sink, err := NewSink(config.GetEffectiveOutput())
		if err != nil {
			return nil, err
		}
		if config.Breaker != nil && config.Breaker.Enabled {
			sink = NewBreakerSink(sink, config.Breaker.Threshold, config.Breaker.Timeout)
		}
		e.sink = sink
	}

	return e, nil
}

// emit assembles the flat record and delivers it. A failing sink degrades
// to the local diagnostic logger; the authentication decision already made
// by the caller is never affected.
func (e *emitter) emit(
	ctx context.Context,
	eventType EventType,
	rc *reqctx.RequestContext,
	fields map[string]interface{},
	extra map[string]interface{},
) {
	if !e.config.Enabled {
		return
	}

	record := newRecord(eventType, rc, fields, extra)

	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		record["trace_id"] = sc.TraceID().String()
		if sc.HasSpanID() {
			record["span_id"] = sc.SpanID().String()
		}
	}

	e.metrics.RecordEvent(eventType)

	data, err := json.Marshal(record)
	if err != nil {
		e.logger.Error("failed to marshal security event",
			observability.String("event_type", string(eventType)),
			observability.Error(err),
		)
		return
	}

	if err := e.sink.Write(ctx, data); err != nil {
		e.metrics.RecordDeliveryFailure()
		e.logger.Warn("audit sink delivery failed, record kept locally",
			observability.String("event_type", string(eventType)),
			observability.String("record", string(data)),
			observability.Error(err),
		)
	}
}

// AuthSuccess emits an auth_success event.
func (e *emitter) AuthSuccess(
	ctx context.Context,
	rc *reqctx.RequestContext,
	username string,
	extra map[string]interface{},
) {
	e.emit(ctx, EventAuthSuccess, rc, map[string]interface{}{
		"username": username,
	}, extra)
}

// AuthFailed emits an auth_failed event. Username may be empty when the
// failure occurred before any identity was presented.
func (e *emitter) AuthFailed(
	ctx context.Context,
	rc *reqctx.RequestContext,
	username, reason string,
	extra map[string]interface{},
) {
	fields := map[string]interface{}{
		"failure_reason": reason,
	}
	if username != "" {
		fields["username"] = username
	}
	e.emit(ctx, EventAuthFailed, rc, fields, extra)
}

// PasswordChanged emits a password_changed event.
func (e *emitter) PasswordChanged(
	ctx context.Context,
	rc *reqctx.RequestContext,
	targetUsername, changedBy string,
	extra map[string]interface{},
) {
	e.emit(ctx, EventPasswordChanged, rc, map[string]interface{}{
		"target_username": targetUsername,
		"changed_by":      changedBy,
	}, extra)
}

// TokenRefreshFailed emits a token_refresh_failed event.
func (e *emitter) TokenRefreshFailed(
	ctx context.Context,
	rc *reqctx.RequestContext,
	username, reason string,
	extra map[string]interface{},
) {
	fields := map[string]interface{}{
		"failure_reason": reason,
	}
	if username != "" {
		fields["username"] = username
	}
	e.emit(ctx, EventTokenRefreshFailed, rc, fields, extra)
}

// RoleChanged emits a role_changed event.
func (e *emitter) RoleChanged(
	ctx context.Context,
	rc *reqctx.RequestContext,
	targetUsername, oldRole, newRole, changedBy string,
	extra map[string]interface{},
) {
	e.emit(ctx, EventRoleChanged, rc, map[string]interface{}{
		"target_username": targetUsername,
		"old_role":        oldRole,
		"new_role":        newRole,
		"changed_by":      changedBy,
	}, extra)
}

// UserDeactivated emits a user_deactivated event.
func (e *emitter) UserDeactivated(
	ctx context.Context,
	rc *reqctx.RequestContext,
	targetUsername, changedBy string,
	extra map[string]interface{},
) {
	e.emit(ctx, EventUserDeactivated, rc, map[string]interface{}{
		"target_username": targetUsername,
		"changed_by":      changedBy,
	}, extra)
}

// SuspiciousActivity emits a suspicious_activity event.
func (e *emitter) SuspiciousActivity(
	ctx context.Context,
	rc *reqctx.RequestContext,
	description string,
	extra map[string]interface{},
) {
	e.emit(ctx, EventSuspiciousActivity, rc, map[string]interface{}{
		"description": description,
	}, extra)
}

// Close closes the sink.
func (e *emitter) Close() error {
	return e.sink.Close()
}

// noopEmitter discards all events.
type noopEmitter struct{}

// NewNoopEmitter creates an emitter that discards all events.
func NewNoopEmitter() Emitter {
	return &noopEmitter{}
}

func (noopEmitter) AuthSuccess(context.Context, *reqctx.RequestContext, string, map[string]interface{}) {
}

func (noopEmitter) AuthFailed(context.Context, *reqctx.RequestContext, string, string, map[string]interface{}) {
}

func (noopEmitter) PasswordChanged(context.Context, *reqctx.RequestContext, string, string, map[string]interface{}) {
}

func (noopEmitter) TokenRefreshFailed(context.Context, *reqctx.RequestContext, string, string, map[string]interface{}) {
}

func (noopEmitter) RoleChanged(context.Context, *reqctx.RequestContext, string, string, string, string, map[string]interface{}) {
}

func (noopEmitter) UserDeactivated(context.Context, *reqctx.RequestContext, string, string, map[string]interface{}) {
}

func (noopEmitter) SuspiciousActivity(context.Context, *reqctx.RequestContext, string, map[string]interface{}) {
}

func (noopEmitter) Close() error { return nil }

// Ensure implementations satisfy the interface.
var (
	_ Emitter = (*emitter)(nil)
	_ Emitter = (*noopEmitter)(nil)
)
