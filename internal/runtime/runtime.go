package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	ctxengine "github.com/user/labkeeper/internal/context"
	"github.com/user/labkeeper/internal/types"
	"github.com/user/labkeeper/pkg/llm"
)

// ErrNestedApproval is returned when a resumed call produces a second
// confirmation request. Recursive approval chains are out of scope; the
// condition is reported, never silently looped.
var ErrNestedApproval = errors.New("confirmation requested while resuming a confirmed call")

const historyLimit = 100

// Sink receives each event as soon as it is recorded, so operator-facing
// text surfaces in arrival order rather than after the turn completes.
type Sink func(*types.Event)

// Runtime implements the agentic turn loop with confirmation-aware tool
// execution. A tool that requests confirmation suspends the turn; the
// pending approval is persisted so the turn can resume in a fresh process.
type Runtime struct {
	provider  llm.Provider
	engine    *ctxengine.Engine
	sessions  types.SessionStore
	events    types.EventStore
	pending   types.PendingStore
	registry  *Registry
	maxRounds int
	logger    *zap.Logger
}

// New creates a Runtime with the given dependencies.
func New(
	provider llm.Provider,
	engine *ctxengine.Engine,
	sessions types.SessionStore,
	events types.EventStore,
	pending types.PendingStore,
	registry *Registry,
	maxRounds int,
	logger *zap.Logger,
) *Runtime {
	return &Runtime{
		provider:  provider,
		engine:    engine,
		sessions:  sessions,
		events:    events,
		pending:   pending,
		registry:  registry,
		maxRounds: maxRounds,
		logger:    logger,
	}
}

// AsLLMTools converts registered tools to the provider format.
func (r *Registry) AsLLMTools() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.tools))
	for _, t := range r.All() {
		out = append(out, llm.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return out
}

// ProcessTurn executes one user turn. It returns nil both when the turn
// completes and when it suspends awaiting approval; the caller inspects the
// event stream for a confirmation request.
func (rt *Runtime) ProcessTurn(ctx context.Context, sessionID types.SessionID, turnID types.TurnID, userID, userText string, sink Sink) error {
	if err := rt.emit(ctx, sessionID, turnID, types.EventUserMessage, types.TextPayload{Text: userText}, sink); err != nil {
		return err
	}
	return rt.loop(ctx, sessionID, turnID, userID, sink, false)
}

// ResumeTurn consumes the pending approval exactly once and re-invokes the
// suspended tool with the operator's decision and the original payload.
// A resume without a matching pending approval fails with
// types.ErrNoPendingApproval and mutates nothing.
func (rt *Runtime) ResumeTurn(ctx context.Context, sessionID types.SessionID, approvalID types.ApprovalID, confirmed bool, userID string, sink Sink) error {
	pa, err := rt.pending.Consume(ctx, sessionID, approvalID)
	if err != nil {
		return err
	}
	turnID := types.TurnID(pa.InvocationID)

	if err := rt.emit(ctx, sessionID, turnID, types.EventConfirmationAnswer, types.ConfirmationAnswerPayload{
		ApprovalID: pa.ApprovalID,
		Confirmed:  confirmed,
	}, sink); err != nil {
		return err
	}

	tool, ok := rt.registry.Get(pa.Tool)
	if !ok {
		return fmt.Errorf("pending approval references unknown tool %q", pa.Tool)
	}

	tcx := NewResumedToolContext(userID, string(pa.ApprovalID), confirmed)
	result, execErr := tool.Execute(ctx, tcx, pa.Payload)
	if execErr != nil {
		result = fmt.Sprintf("error: %v", execErr)
	}
	if tcx.requested {
		rt.emitError(ctx, sessionID, turnID, ErrNestedApproval.Error(), sink)
		return ErrNestedApproval
	}

	if err := rt.emit(ctx, sessionID, turnID, types.EventToolResult, types.ToolResultPayload{
		Tool:   pa.Tool,
		CallID: string(pa.ApprovalID),
		Result: result,
	}, sink); err != nil {
		return err
	}

	// Let the model wrap up the turn now that the tool has settled.
	return rt.loop(ctx, sessionID, turnID, userID, sink, true)
}

func (rt *Runtime) loop(ctx context.Context, sessionID types.SessionID, turnID types.TurnID, userID string, sink Sink, resuming bool) error {
	var toolNames []string
	for _, t := range rt.registry.All() {
		toolNames = append(toolNames, t.Name())
	}

	for round := 0; round < rt.maxRounds; round++ {
		session, err := rt.sessions.Get(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		history, err := rt.events.Tail(ctx, sessionID, historyLimit)
		if err != nil {
			return fmt.Errorf("load events: %w", err)
		}

		messages, err := rt.engine.BuildPrompt(session, history, toolNames)
		if err != nil {
			return fmt.Errorf("build prompt: %w", err)
		}

		resp, err := rt.provider.Complete(ctx, messages, rt.registry.AsLLMTools())
		if err != nil {
			rt.emitError(ctx, sessionID, turnID, err.Error(), sink)
			return fmt.Errorf("LLM call: %w", err)
		}

		if len(resp.ToolCalls) > 0 {
			suspended, err := rt.runToolCalls(ctx, sessionID, turnID, userID, resp.ToolCalls, sink, resuming)
			if err != nil {
				return err
			}
			if suspended {
				return nil
			}
			continue
		}

		if resp.Content != "" {
			return rt.emit(ctx, sessionID, turnID, types.EventAssistantMessage, types.TextPayload{Text: resp.Content}, sink)
		}
		return nil
	}

	msg := fmt.Sprintf("max tool rounds (%d) exceeded", rt.maxRounds)
	rt.emitError(ctx, sessionID, turnID, msg, sink)
	return errors.New(msg)
}

// runToolCalls executes the model's tool calls in order. Returns true when
// a confirmation request suspended the turn.
func (rt *Runtime) runToolCalls(ctx context.Context, sessionID types.SessionID, turnID types.TurnID, userID string, calls []llm.ToolCall, sink Sink, resuming bool) (bool, error) {
	for _, tc := range calls {
		callID := tc.ID
		if callID == "" {
			callID = uuid.New().String()
		}

		if err := rt.emit(ctx, sessionID, turnID, types.EventToolCall, types.ToolCallPayload{
			Tool:      tc.Function.Name,
			CallID:    callID,
			Arguments: tc.Function.Arguments,
		}, sink); err != nil {
			return false, err
		}

		tool, ok := rt.registry.Get(tc.Function.Name)
		var result string
		tcx := NewToolContext(userID, callID)
		if !ok {
			result = fmt.Sprintf("error: unknown tool %q", tc.Function.Name)
		} else {
			var execErr error
			result, execErr = tool.Execute(ctx, tcx, tc.Function.Arguments)
			if execErr != nil {
				result = fmt.Sprintf("error: %v", execErr)
			}
		}

		if tcx.requested {
			if resuming {
				rt.emitError(ctx, sessionID, turnID, ErrNestedApproval.Error(), sink)
				return false, ErrNestedApproval
			}
			if err := rt.suspend(ctx, sessionID, turnID, tool.Name(), callID, tcx, result, sink); err != nil {
				return false, err
			}
			return true, nil
		}

		if err := rt.emit(ctx, sessionID, turnID, types.EventToolResult, types.ToolResultPayload{
			Tool:   tc.Function.Name,
			CallID: callID,
			Result: result,
		}, sink); err != nil {
			return false, err
		}
	}
	return false, nil
}

// suspend persists the pending approval and emits the confirmation request.
// The approval id is the suspended call's id; resuming reuses it, never a
// fresh one.
func (rt *Runtime) suspend(ctx context.Context, sessionID types.SessionID, turnID types.TurnID, toolName, callID string, tcx *ToolContext, result string, sink Sink) error {
	pa := &types.PendingApproval{
		ApprovalID:   types.ApprovalID(callID),
		InvocationID: types.InvocationID(turnID),
		SessionID:    sessionID,
		Tool:         toolName,
		Hint:         tcx.pendingHint,
		Payload:      tcx.pendingArgs,
		CreatedAt:    time.Now(),
	}
	if err := rt.pending.Put(ctx, pa); err != nil {
		return err
	}

	rt.logger.Info("turn suspended awaiting approval",
		zap.String("session_id", string(sessionID)),
		zap.String("approval_id", callID),
		zap.String("tool", toolName))

	if err := rt.emit(ctx, sessionID, turnID, types.EventConfirmationRequest, types.ConfirmationRequestPayload{
		ApprovalID:   pa.ApprovalID,
		InvocationID: pa.InvocationID,
		Tool:         toolName,
		Hint:         pa.Hint,
		Payload:      pa.Payload,
	}, sink); err != nil {
		return err
	}

	return rt.emit(ctx, sessionID, turnID, types.EventToolResult, types.ToolResultPayload{
		Tool:   toolName,
		CallID: callID,
		Result: result,
	}, sink)
}

func (rt *Runtime) emit(ctx context.Context, sessionID types.SessionID, turnID types.TurnID, kind types.EventKind, payload any, sink Sink) error {
	event, err := types.NewEvent(sessionID, turnID, kind, payload)
	if err != nil {
		return err
	}
	if err := rt.events.Append(ctx, event); err != nil {
		return fmt.Errorf("record %s: %w", kind, err)
	}
	if sink != nil {
		sink(event)
	}
	return nil
}

func (rt *Runtime) emitError(ctx context.Context, sessionID types.SessionID, turnID types.TurnID, msg string, sink Sink) {
	if err := rt.emit(ctx, sessionID, turnID, types.EventError, types.ErrorPayload{Error: msg}, sink); err != nil {
		rt.logger.Warn("record error event failed", zap.Error(err))
	}
}
