// internal/gateway/turn.go

package gateway

import (
	"context"
	"time"

	"github.com/user/labkeeper/internal/types"
)

// TurnStatus represents the lifecycle state of a Turn.
type TurnStatus string

const (
	TurnStatusQueued   TurnStatus = "queued"
	TurnStatusRunning  TurnStatus = "running"
	TurnStatusComplete TurnStatus = "complete"
	TurnStatusFailed   TurnStatus = "failed"
)

// Turn tracks a single execution of a user message against a session.
type Turn struct {
	ID         types.TurnID
	SessionID  types.SessionID
	UserID     string
	Text       string
	Status     TurnStatus
	CreatedAt  time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time
	Error      error
	OnComplete func(result string)

	// Ctx is assigned by the queue when the turn begins processing.
	Ctx context.Context
}

// NewTurn creates a Turn in the Queued state.
func NewTurn(sessionID types.SessionID, userID, text string) *Turn {
	return &Turn{
		ID:        types.NewTurnID(),
		SessionID: sessionID,
		UserID:    userID,
		Text:      text,
		Status:    TurnStatusQueued,
		CreatedAt: time.Now(),
	}
}
