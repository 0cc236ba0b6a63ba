package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventCodeRequested        ActivityEventType = "login.code.requested"
	ActivityEventCodeRejected         ActivityEventType = "login.code.rejected"
	ActivityEventRegistrationRequired ActivityEventType = "login.registration.required"
	ActivityEventCodeInvalid          ActivityEventType = "login.code.invalid"
	ActivityEventStepChanged          ActivityEventType = "login.step.changed"
	ActivityEventLoginSuccess         ActivityEventType = "login.success"
	ActivityEventLoginFailure         ActivityEventType = "login.failure"
	ActivityEventAdminLoginSuccess    ActivityEventType = "admin.login.success"
	ActivityEventAdminLoginFailure    ActivityEventType = "admin.login.failure"
	ActivityEventSessionEstablished   ActivityEventType = "session.established"
	ActivityEventSessionCleared       ActivityEventType = "session.cleared"
	ActivityEventSessionRestored      ActivityEventType = "session.restored"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	FlowID     string
	Identity   IdentityKind
	AccountID  string
	FromStep   Step
	ToStep     Step
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity emits an event and logs sink failures.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if ctx == nil {
		ctx = context.Background()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink failed", "event", event.EventType, "error", err)
	}
}
