package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/labkeeper/internal/labdb"
	"github.com/user/labkeeper/internal/runtime"
)

// ValidateCSV checks a metadata CSV before insertion and writes rejected
// rows to an output file.
type ValidateCSV struct{}

func NewValidateCSV() *ValidateCSV { return &ValidateCSV{} }

func (t *ValidateCSV) Name() string { return "validate_csv" }
func (t *ValidateCSV) Description() string {
	return "Validate a metadata CSV file for completeness and format; invalid rows are written to the output path"
}
func (t *ValidateCSV) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"csv_path": {"type": "string", "description": "Path to the metadata CSV to validate"},
			"output_path": {"type": "string", "description": "Where to write rejected rows"}
		},
		"required": ["csv_path", "output_path"]
	}`)
}

func (t *ValidateCSV) Execute(_ context.Context, _ *runtime.ToolContext, args json.RawMessage) (string, error) {
	var params struct {
		CSVPath    string `json:"csv_path"`
		OutputPath string `json:"output_path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.CSVPath == "" || params.OutputPath == "" {
		return "", fmt.Errorf("csv_path and output_path are required")
	}

	invalid, err := labdb.ValidateCSV(params.CSVPath, params.OutputPath)
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(map[string]any{
		"invalid_count": len(invalid),
		"invalid_rows":  invalid,
		"output_path":   params.OutputPath,
	})
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(out), nil
}
