package magiclink

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventTokenIssued     ActivityEventType = "magiclink.token.issued"
	ActivityEventIssueFailure    ActivityEventType = "magiclink.token.issue_failure"
	ActivityEventTokenVerified   ActivityEventType = "magiclink.token.verified"
	ActivityEventVerifyFailure   ActivityEventType = "magiclink.token.verify_failure"
	ActivityEventSessionDegraded ActivityEventType = "magiclink.session.degraded"
	ActivityEventSessionExpired  ActivityEventType = "magiclink.session.expired"
)

// ActivityEvent captures audit-friendly information about an action. Events
// from the degraded path always say so; a locally simulated identity must be
// distinguishable from a backend-verified one in any audit trail.
type ActivityEvent struct {
	EventType  ActivityEventType
	Email      string
	DeviceID   string
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
