// internal/workflow/orchestrator.go

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/labkeeper/internal/runtime"
	"github.com/user/labkeeper/internal/types"
)

// Status is the terminal state of a turn.
type Status string

const (
	// StatusCompletedApproved means the turn paused for approval and the
	// operator approved; the destructive operation committed.
	StatusCompletedApproved Status = "completed_approved"
	// StatusCompletedDenied means the turn paused for approval and the
	// operator denied; nothing was mutated.
	StatusCompletedDenied Status = "completed_denied"
	// StatusCompletedNoApproval means the turn finished without any
	// confirmation request.
	StatusCompletedNoApproval Status = "completed_without_approval"
)

// ErrNestedApproval is returned when a resumed turn raises a second
// confirmation request. One approval cycle per turn is a hard limit.
var ErrNestedApproval = errors.New("workflow: nested approval request during resume")

// Runner executes turns against the model and tools. Satisfied by
// *runtime.Runtime.
type Runner interface {
	ProcessTurn(ctx context.Context, sessionID types.SessionID, turnID types.TurnID, userID, userText string, sink runtime.Sink) error
	ResumeTurn(ctx context.Context, sessionID types.SessionID, approvalID types.ApprovalID, confirmed bool, userID string, sink runtime.Sink) error
}

// Orchestrator runs one user turn through the full lifecycle:
// running, awaiting approval (if a tool pauses), resuming, completed.
// Ask blocks indefinitely; a paused turn survives until answered.
type Orchestrator struct {
	runner     Runner
	controller *Controller
	operator   Operator
	logger     *zap.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(runner Runner, controller *Controller, operator Operator, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		runner:     runner,
		controller: controller,
		operator:   operator,
		logger:     logger,
	}
}

// RunTurn submits userText for the session and drives the turn to a
// terminal status. Events are forwarded to the operator as they are
// produced, not batched at the end.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID types.SessionID, userID, userText string) (Status, error) {
	turnID := types.NewTurnID()
	o.logger.Info("turn started",
		zap.String("session_id", string(sessionID)),
		zap.String("turn_id", string(turnID)))

	var events []*types.Event
	sink := func(event *types.Event) {
		events = append(events, event)
		o.forward(event)
	}
	if err := o.runner.ProcessTurn(ctx, sessionID, turnID, userID, userText, sink); err != nil {
		return "", fmt.Errorf("process turn: %w", err)
	}

	pending := o.controller.Detect(events)
	if pending == nil {
		return StatusCompletedNoApproval, nil
	}

	answer, err := o.operator.Ask(pending.Hint)
	if err != nil {
		return "", fmt.Errorf("read operator answer: %w", err)
	}
	message, approved := o.controller.BuildResumeMessage(pending.ApprovalID, answer)

	var resumeEvents []*types.Event
	resumeSink := func(event *types.Event) {
		resumeEvents = append(resumeEvents, event)
		o.forward(event)
	}
	if err := o.runner.ResumeTurn(ctx, sessionID, message.ApprovalID, message.Confirmed, userID, resumeSink); err != nil {
		if errors.Is(err, runtime.ErrNestedApproval) {
			return "", ErrNestedApproval
		}
		return "", fmt.Errorf("resume turn: %w", err)
	}
	if second := o.controller.Detect(resumeEvents); second != nil {
		return "", ErrNestedApproval
	}

	if approved {
		return StatusCompletedApproved, nil
	}
	return StatusCompletedDenied, nil
}

// forward surfaces user-facing events to the operator. Tool traffic is
// logged but not printed.
func (o *Orchestrator) forward(event *types.Event) {
	switch event.Kind {
	case types.EventAssistantMessage:
		var payload types.TextPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return
		}
		o.operator.Print("agent > " + payload.Text)
	case types.EventError:
		var payload types.ErrorPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return
		}
		o.operator.Print("error > " + payload.Error)
	case types.EventToolCall, types.EventToolResult:
		o.logger.Debug("tool event",
			zap.String("event_id", string(event.ID)),
			zap.String("kind", string(event.Kind)))
	}
}
