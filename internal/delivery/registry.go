// internal/delivery/registry.go

// Package delivery routes agent output and approval questions to the
// channel that owns a session, selected by session key prefix
// (e.g. "repl:", "telegram:").
package delivery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/user/labkeeper/internal/types"
)

// Channel is an operator-facing surface. Send pushes agent output;
// Prompt asks one question and blocks for the human's answer.
type Channel interface {
	Send(sessionKey types.SessionKey, message string) error
	Prompt(ctx context.Context, sessionKey types.SessionKey, question string) (string, error)
}

// Registry routes to the appropriate channel based on session key prefix.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel for session keys starting with prefix.
func (r *Registry) Register(prefix string, channel Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[prefix] = channel
}

// For returns the channel matching the session key prefix.
func (r *Registry) For(sessionKey types.SessionKey) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for prefix, channel := range r.channels {
		if strings.HasPrefix(string(sessionKey), prefix) {
			return channel, nil
		}
	}
	return nil, fmt.Errorf("no delivery channel for session key: %s", sessionKey)
}

// Deliver finds the channel matching the session key prefix and sends the
// message through it.
func (r *Registry) Deliver(sessionKey types.SessionKey, message string) error {
	channel, err := r.For(sessionKey)
	if err != nil {
		return err
	}
	return channel.Send(sessionKey, message)
}

// Operator adapts a session's channel to the per-turn Print/Ask surface
// the workflow expects.
type Operator struct {
	ctx      context.Context
	registry *Registry
	key      types.SessionKey
}

// NewOperator binds the registry to one session key.
func NewOperator(ctx context.Context, registry *Registry, key types.SessionKey) *Operator {
	return &Operator{ctx: ctx, registry: registry, key: key}
}

func (o *Operator) Print(text string) {
	// Output is best-effort; a send failure must not abort the turn.
	_ = o.registry.Deliver(o.key, text)
}

func (o *Operator) Ask(prompt string) (string, error) {
	channel, err := o.registry.For(o.key)
	if err != nil {
		return "", err
	}
	return channel.Prompt(o.ctx, o.key, prompt)
}
