// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type SessionKey string
type SessionID string
type TurnID string
type EventID string
type ApprovalID string
type InvocationID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

func NewEventID() EventID {
	return EventID(uuid.New().String())
}

func NewApprovalID() ApprovalID {
	return ApprovalID(uuid.New().String())
}

// NewSessionKey builds the durable session identity from its parts:
// app name, user id, and the operator-chosen session name.
func NewSessionKey(parts ...string) SessionKey {
	return SessionKey(strings.Join(parts, ":"))
}
