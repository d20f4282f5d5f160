package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/labkeeper/internal/labdb"
	"github.com/user/labkeeper/internal/runtime"
)

// InsertCSV inserts rows from a metadata CSV into a lab database table.
// Rows that violate constraints are skipped and reported, not fatal.
type InsertCSV struct{}

func NewInsertCSV() *InsertCSV { return &InsertCSV{} }

func (t *InsertCSV) Name() string { return "insert_csv" }
func (t *InsertCSV) Description() string {
	return "Insert rows from a metadata CSV file into a lab database table"
}
func (t *InsertCSV) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"csv_path": {"type": "string", "description": "Path to the CSV file"},
			"db_path": {"type": "string", "description": "Path to the lab SQLite database"},
			"table": {"type": "string", "description": "Target table name"}
		},
		"required": ["csv_path", "db_path", "table"]
	}`)
}

func (t *InsertCSV) Execute(ctx context.Context, _ *runtime.ToolContext, args json.RawMessage) (string, error) {
	var params struct {
		CSVPath string `json:"csv_path"`
		DBPath  string `json:"db_path"`
		Table   string `json:"table"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.CSVPath == "" || params.DBPath == "" || params.Table == "" {
		return "", fmt.Errorf("csv_path, db_path, and table are required")
	}

	db, err := labdb.Open(params.DBPath)
	if err != nil {
		return "", err
	}
	defer db.Close()

	inserted, skipped, err := db.InsertFromCSV(ctx, params.CSVPath, params.Table)
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(map[string]any{
		"inserted":      inserted,
		"skipped_count": len(skipped),
		"skipped_rows":  skipped,
	})
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(out), nil
}
