// internal/types/interfaces.go
package types

import (
	"context"
	"errors"
)

// ErrNoPendingApproval is returned when a resume arrives without a matching
// pending approval, or when the approval was already consumed.
var ErrNoPendingApproval = errors.New("no pending approval for session")

type SessionStore interface {
	ResolveOrCreate(ctx context.Context, key SessionKey, app, userID string) (SessionID, error)
	Get(ctx context.Context, id SessionID) (*SessionIndex, error)
	List(ctx context.Context) ([]*SessionIndex, error)
	Update(ctx context.Context, session *SessionIndex) error
	Delete(ctx context.Context, id SessionID) error
}

type EventStore interface {
	Append(ctx context.Context, event *Event) error
	Tail(ctx context.Context, sessionID SessionID, limit int) ([]*Event, error)
	Count(ctx context.Context, sessionID SessionID) (int64, error)
}

// PendingStore persists at most one pending approval per session.
// Consume removes the approval exactly once; a second Consume with the same
// approval id fails with ErrNoPendingApproval, which is what makes a
// duplicate resume unable to trigger a second deletion.
type PendingStore interface {
	Put(ctx context.Context, approval *PendingApproval) error
	Get(ctx context.Context, sessionID SessionID) (*PendingApproval, error)
	Consume(ctx context.Context, sessionID SessionID, approvalID ApprovalID) (*PendingApproval, error)
}
