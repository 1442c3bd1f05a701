// Package audit records moderation actions and configuration changes.
// Events are emitted from domain logic through a Publisher and persisted by
// a worker; publishing is best-effort and never blocks moderation.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"doorman/pkg/domain"
)

// Action names the audited operation.
type Action string

const (
	ActionVerificationPassed   Action = "verification_passed"
	ActionVerificationTimedOut Action = "verification_timed_out"
	ActionMemberKicked         Action = "member_kicked"
	ActionMemberMuted          Action = "member_muted"
	ActionMemberBanned         Action = "member_banned"
	ActionSettingChanged       Action = "setting_changed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Timestamp time.Time
	Group     domain.GroupID
	// Actor is the admin who triggered the action; zero for actions the
	// controller took on its own (timeouts).
	Actor   domain.UserID
	Subject domain.UserID
	Action  Action
	Detail  string
}

// NewEvent stamps an event with an id and timestamp.
func NewEvent(group domain.GroupID, actor, subject domain.UserID, action Action, detail string) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Group:     group,
		Actor:     actor,
		Subject:   subject,
		Action:    action,
		Detail:    detail,
	}
}

// Publisher emits audit events for security-relevant operations.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
