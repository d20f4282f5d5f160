// internal/workflow/confirmation.go

// Package workflow drives a single user turn end-to-end: submit the
// request, surface events as they arrive, detect a pending confirmation,
// block for the operator's decision, and resume the paused conversation
// exactly once.
package workflow

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/user/labkeeper/internal/types"
)

// affirmatives is the fixed set of operator answers that count as
// approval, matched case-insensitively after trimming. Anything else is a
// denial; there is no third state. Expanding this set is a policy change,
// not a default behavior.
var affirmatives = map[string]bool{
	"yes":     true,
	"approve": true,
	"ok":      true,
	"y":       true,
}

// Controller detects pending confirmations in an event stream and builds
// the resume message from the operator's answer.
type Controller struct {
	logger *zap.Logger
}

// NewController creates a Controller.
func NewController(logger *zap.Logger) *Controller {
	return &Controller{logger: logger}
}

// Detect scans the turn's events for a confirmation request and returns
// the first one, or nil. A turn with no pending approval is the common
// case and terminates normally.
func (c *Controller) Detect(events []*types.Event) *types.ConfirmationRequestPayload {
	for _, event := range events {
		if event.Kind != types.EventConfirmationRequest {
			continue
		}
		var payload types.ConfirmationRequestPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			c.logger.Warn("malformed confirmation request event",
				zap.String("event_id", string(event.ID)), zap.Error(err))
			continue
		}
		c.logger.Info("approval request detected",
			zap.String("approval_id", string(payload.ApprovalID)),
			zap.String("invocation_id", string(payload.InvocationID)))
		return &payload
	}
	return nil
}

// BuildResumeMessage normalizes the operator's free-text answer and tags
// the response with the same approval id so the engine can correlate it to
// the exact suspended call.
func (c *Controller) BuildResumeMessage(approvalID types.ApprovalID, answer string) (types.ConfirmationAnswerPayload, bool) {
	approved := affirmatives[strings.ToLower(strings.TrimSpace(answer))]
	c.logger.Info("operator answered approval",
		zap.String("approval_id", string(approvalID)),
		zap.String("answer", answer),
		zap.Bool("approved", approved))
	return types.ConfirmationAnswerPayload{
		ApprovalID: approvalID,
		Confirmed:  approved,
	}, approved
}
