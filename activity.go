package ucenter

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAccountStatusChanged ActivityEventType = "account.status.changed"
	ActivityEventAccountRegistered    ActivityEventType = "account.registered"
	ActivityEventAccountCreated       ActivityEventType = "account.created"
	ActivityEventPasswordChanged      ActivityEventType = "account.password.changed"
	ActivityEventLoginSuccess         ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure         ActivityEventType = "auth.login.failure"
	ActivityEventRealnameSubmitted    ActivityEventType = "realname.submitted"
	ActivityEventRealnameReviewed     ActivityEventType = "realname.reviewed"
	ActivityEventOpenAccountBound     ActivityEventType = "open_account.bound"
	ActivityEventOpenAccountUnbound   ActivityEventType = "open_account.unbound"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	AccountID  int64
	FromStatus AccountStatus
	ToStatus   AccountStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Sinks run best effort, failures are logged and never fail the operation.
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

// activityRecorder stamps and forwards events, logging sink failures.
type activityRecorder struct {
	sink   ActivitySink
	now    func() time.Time
	logger Logger
}

func (r activityRecorder) record(ctx context.Context, event ActivityEvent) {
	if r.sink == nil {
		return
	}
	if event.OccurredAt.IsZero() && r.now != nil {
		event.OccurredAt = r.now().UTC()
	}
	if err := r.sink.Record(ctx, event); err != nil && r.logger != nil {
		r.logger.Warn("activity sink failed", "event", event.EventType, "uid", event.AccountID, "error", err)
	}
}
