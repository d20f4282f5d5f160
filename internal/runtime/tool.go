package runtime

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool defines the interface for an executable tool.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, tcx *ToolContext, args json.RawMessage) (string, error)
}

// Confirmation is the operator decision carried into a resumed tool call.
type Confirmation struct {
	Confirmed bool
}

// ToolContext carries per-invocation state. A tool that needs human
// approval inspects ToolConfirmation; when it is nil the tool calls
// RequestConfirmation and returns, and the runtime suspends the turn.
type ToolContext struct {
	UserID string
	CallID string

	confirmation *Confirmation
	pendingHint  string
	pendingArgs  json.RawMessage
	requested    bool
}

// NewToolContext creates the context for a fresh tool invocation.
func NewToolContext(userID, callID string) *ToolContext {
	return &ToolContext{UserID: userID, CallID: callID}
}

// NewResumedToolContext creates the context for re-invoking a suspended
// tool with the operator's decision.
func NewResumedToolContext(userID, callID string, confirmed bool) *ToolContext {
	return &ToolContext{
		UserID:       userID,
		CallID:       callID,
		confirmation: &Confirmation{Confirmed: confirmed},
	}
}

// ToolConfirmation returns the operator decision for this invocation, or
// nil if no confirmation has been requested yet.
func (tcx *ToolContext) ToolConfirmation() *Confirmation {
	return tcx.confirmation
}

// PendingRequest returns the hint and payload captured by a
// RequestConfirmation call during this invocation, if any.
func (tcx *ToolContext) PendingRequest() (hint string, payload json.RawMessage, ok bool) {
	return tcx.pendingHint, tcx.pendingArgs, tcx.requested
}

// RequestConfirmation suspends the tool pending operator approval. payload
// must contain everything needed to re-invoke the tool on resume; it is
// stored verbatim and replayed without re-derivation.
func (tcx *ToolContext) RequestConfirmation(hint string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal confirmation payload: %w", err)
	}
	tcx.requested = true
	tcx.pendingHint = hint
	tcx.pendingArgs = raw
	return nil
}

// Registry holds registered tools and provides lookup.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	if _, ok := r.tools[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns registered tools in registration order.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}
