// internal/deletion/gateway.go

// Package deletion owns the safety-critical path between a structured
// filter and a destructive database operation: dry-run preview first,
// explicit human confirmation before any nonzero deletion, and at-most-once
// execution of the commit.
package deletion

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/labkeeper/internal/filter"
	"github.com/user/labkeeper/internal/labdb"
)

// Executor performs the actual SQL work. dryRun=true must be read-only
// apart from writing the preview artifact; it must reject unknown tables
// distinctly from zero matches.
type Executor func(ctx context.Context, dbPath, table string, filters map[string]any, limit int, dryRun bool) (*labdb.ExecResult, error)

// Status is the tagged state of a Decision. Callers branch on it, never on
// message text.
type Status string

const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
	StatusDenied   Status = "denied"
)

// Payload is the exact set of arguments needed to re-invoke the gateway on
// resume, with dry_run=false baked in. Filters are carried verbatim so the
// commit operates on precisely what the operator previewed; they are never
// re-inferred between preview and commit.
type Payload struct {
	DBPath      string     `json:"db_path"`
	Table       string     `json:"table"`
	Filters     filter.Map `json:"filters"`
	Limit       int        `json:"limit,omitempty"`
	DryRun      bool       `json:"dry_run"`
	PreviewPath string     `json:"preview_path,omitempty"`
}

// ConfirmationRequest pairs the operator-facing hint with the resume
// payload.
type ConfirmationRequest struct {
	Hint    string  `json:"hint"`
	Payload Payload `json:"payload"`
}

// ConfirmationState reflects an operator decision carried into a later
// Evaluate call. Its absence means no confirmation has been requested yet.
type ConfirmationState struct {
	Confirmed bool
}

// Decision is the sole return contract of the gateway.
type Decision struct {
	Status       Status               `json:"status"`
	Message      string               `json:"message"`
	DeletedCount int                  `json:"deleted_count"`
	PreviewCount int                  `json:"preview_count"`
	PreviewPath  string               `json:"preview_path,omitempty"`
	Confirmation *ConfirmationRequest `json:"-"`
}

// Request carries one Evaluate call's arguments.
type Request struct {
	DBPath       string
	Table        string
	Filters      filter.Map
	Limit        int
	Confirmation *ConfirmationState
	// PreviewPath is carried through from the pause-time payload so the
	// approved decision can reference the artifact the operator saw.
	PreviewPath string
}

// Gateway evaluates deletion requests. Policy: always-confirm — every
// nonzero preview requests operator confirmation; there is no numeric
// auto-execute threshold.
type Gateway struct {
	execute Executor
	logger  *zap.Logger
}

// New creates a Gateway over the given executor.
func New(execute Executor, logger *zap.Logger) *Gateway {
	return &Gateway{execute: execute, logger: logger}
}

// Evaluate runs one step of the deletion state machine. Structured input
// failures (unknown table, malformed filters) are returned as errors before
// any dry run; the commit branch is the only place in the repository that
// mutates a lab table, and it is reachable only with Confirmed=true.
func (g *Gateway) Evaluate(ctx context.Context, req Request) (*Decision, error) {
	if err := filter.Validate(req.Filters); err != nil {
		return nil, err
	}

	if req.Confirmation == nil {
		return g.previewAndMaybeRequest(ctx, req)
	}

	if !req.Confirmation.Confirmed {
		g.logger.Info("deletion denied by operator",
			zap.String("table", req.Table))
		return &Decision{
			Status:  StatusDenied,
			Message: fmt.Sprintf("Deletion of records from %s has been cancelled by the user.", req.Table),
		}, nil
	}

	result, err := g.execute(ctx, req.DBPath, req.Table, req.Filters, req.Limit, false)
	if err != nil {
		return nil, fmt.Errorf("execute deletion: %w", err)
	}
	g.logger.Info("deletion executed",
		zap.String("table", req.Table),
		zap.Int("deleted", result.Deleted))
	return &Decision{
		Status:       StatusApproved,
		Message:      fmt.Sprintf("Deleted %d records from %s.", result.Deleted, req.Table),
		DeletedCount: result.Deleted,
		PreviewPath:  req.PreviewPath,
	}, nil
}

// previewAndMaybeRequest performs the dry run and either auto-approves an
// empty result set or requests confirmation. Deleting zero rows is always
// safe to report without a prompt: there is nothing destructive to confirm.
func (g *Gateway) previewAndMaybeRequest(ctx context.Context, req Request) (*Decision, error) {
	dry, err := g.execute(ctx, req.DBPath, req.Table, req.Filters, req.Limit, true)
	if err != nil {
		return nil, fmt.Errorf("deletion dry run: %w", err)
	}
	g.logger.Info("deletion dry run",
		zap.String("table", req.Table),
		zap.Int("preview_count", dry.PreviewCount),
		zap.String("preview_path", dry.PreviewPath))

	if dry.PreviewCount == 0 {
		return &Decision{
			Status:       StatusApproved,
			Message:      fmt.Sprintf("No records in %s matched the given filters; nothing to delete.", req.Table),
			DeletedCount: 0,
			PreviewCount: 0,
			PreviewPath:  dry.PreviewPath,
		}, nil
	}

	g.logger.Info("deletion confirmation requested",
		zap.String("table", req.Table),
		zap.Int("preview_count", dry.PreviewCount))
	return &Decision{
		Status:       StatusPending,
		Message:      fmt.Sprintf("Deletion of %d records from %s requires confirmation.", dry.PreviewCount, req.Table),
		PreviewCount: dry.PreviewCount,
		PreviewPath:  dry.PreviewPath,
		Confirmation: &ConfirmationRequest{
			Hint: fmt.Sprintf("Attempting to delete %d records from %s (preview: %s). Do you want to proceed?",
				dry.PreviewCount, req.Table, dry.PreviewPath),
			Payload: Payload{
				DBPath:      req.DBPath,
				Table:       req.Table,
				Filters:     req.Filters,
				Limit:       req.Limit,
				DryRun:      false,
				PreviewPath: dry.PreviewPath,
			},
		},
	}, nil
}
