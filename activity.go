package household

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSessionChanged   ActivityEventType = "session.state.changed"
	ActivityEventSignInSuccess    ActivityEventType = "session.signin.success"
	ActivityEventSignInFailure    ActivityEventType = "session.signin.failure"
	ActivityEventSignUpSuccess    ActivityEventType = "session.signup.success"
	ActivityEventSignUpFailure    ActivityEventType = "session.signup.failure"
	ActivityEventGuestSignIn      ActivityEventType = "session.guest.signin"
	ActivityEventSignOut          ActivityEventType = "session.signout"
	ActivityEventProfileHydrated  ActivityEventType = "profile.hydrated"
	ActivityEventProfileUpdated   ActivityEventType = "profile.updated"
	ActivityEventAccessDenied     ActivityEventType = "access.denied"
	ActivityEventHydrationFailure ActivityEventType = "profile.hydration.failure"
)

// ActivityEvent captures audit-friendly information about a session or
// access decision.
type ActivityEvent struct {
	EventType   ActivityEventType
	SubjectID   string
	HouseholdID string
	Role        Role
	FromState   SessionState
	ToState     SessionState
	Metadata    map[string]any
	OccurredAt  time.Time
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

// recordActivity emits best effort, sink failures are only logged
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if sink == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := sink.Record(ctx, event); err != nil && logger != nil {
		logger.Warn("activity sink failed", "event", event.EventType, "error", err)
	}
}
