package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeUserRegistered         Type = "user.registered"
	TypeSessionStarted         Type = "session.started"
	TypeSessionRefreshed       Type = "session.refreshed"
	TypeSessionEnded           Type = "session.ended"
	TypePasswordChanged        Type = "password.changed"
	TypePasswordResetRequested Type = "password.reset_requested"
	TypePasswordResetCompleted Type = "password.reset_completed"
	TypeUserDeleted            Type = "user.deleted"
)

// Event describes a session lifecycle transition. It never carries secrets.
type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	UserID    string `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

func New(t Type, userID string, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		UserID:    userID,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
