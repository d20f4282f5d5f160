package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/labkeeper/internal/deletion"
	"github.com/user/labkeeper/internal/filter"
	"github.com/user/labkeeper/internal/runtime"
)

// DeleteRecords is the confirmable tool wrapping the deletion gateway.
// Its first invocation dry-runs and requests confirmation; the runtime
// suspends the turn and re-invokes it with the original payload once the
// operator has decided.
type DeleteRecords struct {
	gateway *deletion.Gateway
}

func NewDeleteRecords(gateway *deletion.Gateway) *DeleteRecords {
	return &DeleteRecords{gateway: gateway}
}

func (t *DeleteRecords) Name() string { return "delete_records" }
func (t *DeleteRecords) Description() string {
	return "Preview and, after operator confirmation, delete lab database records matching a filter map"
}
func (t *DeleteRecords) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"db_path": {"type": "string", "description": "Path to the lab SQLite database"},
			"table": {"type": "string", "description": "Target table name, exactly as the user gave it"},
			"filters": {"type": "object", "description": "Filter map from infer_filters"},
			"limit": {"type": "integer", "description": "Optional maximum number of rows to delete"}
		},
		"required": ["db_path", "table", "filters"]
	}`)
}

// callArgs covers both the model's arguments and the resume payload; the
// payload additionally carries dry_run=false and the preview path.
type callArgs struct {
	DBPath      string         `json:"db_path"`
	Table       string         `json:"table"`
	Filters     map[string]any `json:"filters"`
	Limit       int            `json:"limit,omitempty"`
	PreviewPath string         `json:"preview_path,omitempty"`
}

func (t *DeleteRecords) Execute(ctx context.Context, tcx *runtime.ToolContext, args json.RawMessage) (string, error) {
	var params callArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.DBPath == "" || params.Table == "" {
		return "", fmt.Errorf("db_path and table are required")
	}

	req := deletion.Request{
		DBPath:      params.DBPath,
		Table:       params.Table,
		Filters:     filter.Map(params.Filters),
		Limit:       params.Limit,
		PreviewPath: params.PreviewPath,
	}
	if conf := tcx.ToolConfirmation(); conf != nil {
		req.Confirmation = &deletion.ConfirmationState{Confirmed: conf.Confirmed}
	}

	decision, err := t.gateway.Evaluate(ctx, req)
	if err != nil {
		return "", err
	}

	if decision.Status == deletion.StatusPending {
		if err := tcx.RequestConfirmation(decision.Confirmation.Hint, decision.Confirmation.Payload); err != nil {
			return "", err
		}
	}

	out, err := json.Marshal(decision)
	if err != nil {
		return "", fmt.Errorf("encode decision: %w", err)
	}
	return string(out), nil
}
