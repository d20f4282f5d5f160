// internal/gateway/gateway.go

// Package gateway turns inbound user messages into queued turns. Each
// session has a FIFO lane so at most one turn per session is in flight,
// and a global semaphore bounds total concurrency.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/user/labkeeper/internal/types"
)

// Gateway resolves (or creates) sessions, wraps each user message in a
// Turn, and enqueues the turn for processing.
type Gateway struct {
	sessions types.SessionStore
	Queue    *Queue
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Gateway wired to the session store with the given
// concurrency limit for simultaneous turn processing.
func New(sessions types.SessionStore, logger *zap.Logger, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 2
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	return &Gateway{
		sessions: sessions,
		Queue:    NewQueue(concurrency, logger),
		logger:   logger,
	}
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context, stops the queue, and waits for any
// outstanding work to finish.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
	g.wg.Wait()
}

// TurnOption configures optional behavior on a Turn.
type TurnOption func(*Turn)

// WithOnComplete sets a callback invoked when the turn produces a final result.
func WithOnComplete(fn func(string)) TurnOption {
	return func(t *Turn) { t.OnComplete = fn }
}

// HandleInbound resolves or creates a session for the message, wraps it
// in a Turn, and enqueues it for processing.
func (g *Gateway) HandleInbound(ctx context.Context, key types.SessionKey, app, userID, text string, opts ...TurnOption) error {
	sessionID, err := g.sessions.ResolveOrCreate(ctx, key, app, userID)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	turn := NewTurn(sessionID, userID, text)
	for _, opt := range opts {
		opt(turn)
	}
	return g.Queue.Enqueue(turn)
}
