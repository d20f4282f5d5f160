// internal/types/models.go
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind is the closed set of event types produced during a turn.
// Code that inspects the event stream switches on this enum rather than
// probing payloads for magic tool names.
type EventKind string

const (
	EventUserMessage         EventKind = "user_message"
	EventAssistantMessage    EventKind = "assistant_message"
	EventToolCall            EventKind = "tool_call"
	EventToolResult          EventKind = "tool_result"
	EventConfirmationRequest EventKind = "confirmation_request"
	EventConfirmationAnswer  EventKind = "confirmation_answer"
	EventError               EventKind = "error"
)

type Event struct {
	ID        EventID         `json:"id"`
	SessionID SessionID       `json:"session_id"`
	TurnID    TurnID          `json:"turn_id,omitempty"`
	Seq       int64           `json:"seq"`
	Kind      EventKind       `json:"kind"`
	At        time.Time       `json:"at"`
	Payload   json.RawMessage `json:"payload"`
}

// TextPayload carries user and assistant messages.
type TextPayload struct {
	Text string `json:"text"`
}

// ToolCallPayload records a tool invocation requested by the model.
type ToolCallPayload struct {
	Tool      string          `json:"tool"`
	CallID    string          `json:"call_id"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResultPayload records the outcome of a tool invocation.
type ToolResultPayload struct {
	Tool   string `json:"tool"`
	CallID string `json:"call_id"`
	Result string `json:"result"`
}

// ConfirmationRequestPayload is emitted when a tool suspends awaiting an
// explicit human approve/deny decision. Payload holds the exact arguments
// needed to re-invoke the tool on resume.
type ConfirmationRequestPayload struct {
	ApprovalID   ApprovalID      `json:"approval_id"`
	InvocationID InvocationID    `json:"invocation_id"`
	Tool         string          `json:"tool"`
	Hint         string          `json:"hint"`
	Payload      json.RawMessage `json:"payload"`
}

// ConfirmationAnswerPayload records the operator's decision for an approval.
type ConfirmationAnswerPayload struct {
	ApprovalID ApprovalID `json:"approval_id"`
	Confirmed  bool       `json:"confirmed"`
}

// ErrorPayload carries a turn-level failure surfaced to the operator.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewEvent marshals payload and wraps it in an Event for the session/turn.
func NewEvent(sessionID SessionID, turnID TurnID, kind EventKind, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Event{
		ID:        NewEventID(),
		SessionID: sessionID,
		TurnID:    turnID,
		Kind:      kind,
		At:        time.Now(),
		Payload:   raw,
	}, nil
}

// PendingApproval captures a suspended tool invocation awaiting an operator
// decision. It is persisted so a paused turn can be resumed in a fresh
// process with the same approval_id/invocation_id pair.
type PendingApproval struct {
	ApprovalID   ApprovalID      `json:"approval_id"`
	InvocationID InvocationID    `json:"invocation_id"`
	SessionID    SessionID       `json:"session_id"`
	Tool         string          `json:"tool"`
	Hint         string          `json:"hint"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
}

type SessionIndex struct {
	SessionID    SessionID  `json:"session_id"`
	SessionKey   SessionKey `json:"session_key"`
	App          string     `json:"app"`
	UserID       string     `json:"user_id"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastTurnID   TurnID     `json:"last_turn_id,omitempty"`
	LastEventSeq int64      `json:"last_event_seq"`
}
