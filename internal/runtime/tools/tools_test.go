package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/labkeeper/internal/deletion"
	"github.com/user/labkeeper/internal/filter"
	"github.com/user/labkeeper/internal/labdb"
	"github.com/user/labkeeper/internal/runtime"
)

type execCall struct {
	table   string
	filters map[string]any
	limit   int
	dryRun  bool
}

// fakeExecutor stands in for the SQL layer and records every call.
type fakeExecutor struct {
	calls        []execCall
	previewCount int
	deleted      int
	err          error
}

func (f *fakeExecutor) execute(ctx context.Context, dbPath, table string, filters map[string]any, limit int, dryRun bool) (*labdb.ExecResult, error) {
	f.calls = append(f.calls, execCall{table: table, filters: filters, limit: limit, dryRun: dryRun})
	if f.err != nil {
		return nil, f.err
	}
	if dryRun {
		return &labdb.ExecResult{
			PreviewCount: f.previewCount,
			PreviewPath:  "/tmp/previews/delete_Experiment.csv",
		}, nil
	}
	return &labdb.ExecResult{Deleted: f.deleted}, nil
}

func newDeleteTool(exec *fakeExecutor) *DeleteRecords {
	return NewDeleteRecords(deletion.New(exec.execute, zap.NewNop()))
}

func TestDeleteRecordsFirstCallRequestsConfirmation(t *testing.T) {
	exec := &fakeExecutor{previewCount: 7}
	tool := newDeleteTool(exec)

	tcx := runtime.NewToolContext("local", "call-1")
	result, err := tool.Execute(context.Background(), tcx, json.RawMessage(
		`{"db_path": "/data/lab.db", "table": "Experiment", "filters": {"organism": "e.coli"}}`))
	require.NoError(t, err)

	var decision struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(result), &decision))
	assert.Equal(t, "pending", decision.Status)

	hint, payload, ok := tcx.PendingRequest()
	require.True(t, ok, "first nonzero preview must suspend")
	assert.Contains(t, hint, "7 records")
	assert.Contains(t, hint, "Experiment")

	// The payload replays the exact arguments with dry_run=false baked in.
	var replay struct {
		DBPath      string         `json:"db_path"`
		Table       string         `json:"table"`
		Filters     map[string]any `json:"filters"`
		DryRun      bool           `json:"dry_run"`
		PreviewPath string         `json:"preview_path"`
	}
	require.NoError(t, json.Unmarshal(payload, &replay))
	assert.Equal(t, "/data/lab.db", replay.DBPath)
	assert.Equal(t, "Experiment", replay.Table)
	assert.Equal(t, map[string]any{"organism": "e.coli"}, replay.Filters)
	assert.False(t, replay.DryRun)
	assert.NotEmpty(t, replay.PreviewPath)

	require.Len(t, exec.calls, 1)
	assert.True(t, exec.calls[0].dryRun)
}

func TestDeleteRecordsResumeApprovedCommits(t *testing.T) {
	exec := &fakeExecutor{deleted: 7}
	tool := newDeleteTool(exec)

	tcx := runtime.NewResumedToolContext("local", "call-1", true)
	result, err := tool.Execute(context.Background(), tcx, json.RawMessage(
		`{"db_path": "/data/lab.db", "table": "Experiment", "filters": {"organism": "e.coli"}, "dry_run": false, "preview_path": "/tmp/previews/delete_Experiment.csv"}`))
	require.NoError(t, err)

	var decision struct {
		Status       string `json:"status"`
		DeletedCount int    `json:"deleted_count"`
		PreviewPath  string `json:"preview_path"`
	}
	require.NoError(t, json.Unmarshal([]byte(result), &decision))
	assert.Equal(t, "approved", decision.Status)
	assert.Equal(t, 7, decision.DeletedCount)
	assert.Equal(t, "/tmp/previews/delete_Experiment.csv", decision.PreviewPath)

	// The commit is the only call; no second dry run on resume.
	require.Len(t, exec.calls, 1)
	assert.False(t, exec.calls[0].dryRun)

	_, _, requested := tcx.PendingRequest()
	assert.False(t, requested)
}

func TestDeleteRecordsResumeDeniedTouchesNothing(t *testing.T) {
	exec := &fakeExecutor{}
	tool := newDeleteTool(exec)

	tcx := runtime.NewResumedToolContext("local", "call-1", false)
	result, err := tool.Execute(context.Background(), tcx, json.RawMessage(
		`{"db_path": "/data/lab.db", "table": "Experiment", "filters": {"organism": "e.coli"}}`))
	require.NoError(t, err)

	var decision struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(result), &decision))
	assert.Equal(t, "denied", decision.Status)
	assert.Empty(t, exec.calls, "denial must not reach the SQL layer")
}

func TestDeleteRecordsZeroMatchesNoConfirmation(t *testing.T) {
	exec := &fakeExecutor{previewCount: 0}
	tool := newDeleteTool(exec)

	tcx := runtime.NewToolContext("local", "call-1")
	result, err := tool.Execute(context.Background(), tcx, json.RawMessage(
		`{"db_path": "/data/lab.db", "table": "Experiment", "filters": {"organism": "mouse"}}`))
	require.NoError(t, err)

	var decision struct {
		Status       string `json:"status"`
		DeletedCount int    `json:"deleted_count"`
	}
	require.NoError(t, json.Unmarshal([]byte(result), &decision))
	assert.Equal(t, "approved", decision.Status)
	assert.Zero(t, decision.DeletedCount)

	_, _, requested := tcx.PendingRequest()
	assert.False(t, requested)
}

func TestDeleteRecordsMissingArgs(t *testing.T) {
	tool := newDeleteTool(&fakeExecutor{})

	_, err := tool.Execute(context.Background(), runtime.NewToolContext("local", "call-1"),
		json.RawMessage(`{"filters": {"organism": "e.coli"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db_path and table are required")
}

func TestDeleteRecordsUnsupportedFilterField(t *testing.T) {
	exec := &fakeExecutor{previewCount: 3}
	tool := newDeleteTool(exec)

	_, err := tool.Execute(context.Background(), runtime.NewToolContext("local", "call-1"),
		json.RawMessage(`{"db_path": "/data/lab.db", "table": "Experiment", "filters": {"wavelength": 488}}`))
	var resolveErr *filter.ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.Equal(t, filter.ReasonUnsupportedFields, resolveErr.Reason)
	assert.Empty(t, exec.calls, "invalid filters fail before any dry run")
}

// TestDeleteRecordsEndToEnd drives the tool against a real SQLite database:
// pending with a preview of the matching users, then a resumed approved
// call deleting exactly those rows.
func TestDeleteRecordsEndToEnd(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "lab.db")

	db, err := labdb.Open(dbPath)
	require.NoError(t, err)
	csvPath := filepath.Join(t.TempDir(), "users.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"user_id,user_name,email\n1,ada,\n2,grace,\n3,lin,\n4,mei,mei@lab.test\n"), 0644))
	inserted, _, err := db.InsertFromCSV(ctx, csvPath, "User")
	require.NoError(t, err)
	require.Equal(t, 4, inserted)
	require.NoError(t, db.Close())

	tool := NewDeleteRecords(deletion.New(labdb.Execute, zap.NewNop()))

	args, err := json.Marshal(map[string]any{
		"db_path": dbPath,
		"table":   "User",
		"filters": map[string]any{"email": ""},
	})
	require.NoError(t, err)

	tcx := runtime.NewToolContext("local", "call-1")
	result, err := tool.Execute(ctx, tcx, args)
	require.NoError(t, err)

	var pending struct {
		Status       string `json:"status"`
		PreviewCount int    `json:"preview_count"`
	}
	require.NoError(t, json.Unmarshal([]byte(result), &pending))
	assert.Equal(t, "pending", pending.Status)
	assert.Equal(t, 3, pending.PreviewCount)

	_, payload, ok := tcx.PendingRequest()
	require.True(t, ok)

	// Resume with the stored payload, exactly as the runtime replays it.
	resumed := runtime.NewResumedToolContext("local", "call-1", true)
	result, err = tool.Execute(ctx, resumed, payload)
	require.NoError(t, err)

	var approved struct {
		Status       string `json:"status"`
		DeletedCount int    `json:"deleted_count"`
	}
	require.NoError(t, json.Unmarshal([]byte(result), &approved))
	assert.Equal(t, "approved", approved.Status)
	assert.Equal(t, 3, approved.DeletedCount)

	// The empty-email users are gone; the fourth user survives.
	res, err := labdb.Execute(ctx, dbPath, "User", map[string]any{"email": ""}, 0, true)
	require.NoError(t, err)
	assert.Zero(t, res.PreviewCount)
	res, err = labdb.Execute(ctx, dbPath, "User", map[string]any{"email": "mei@lab.test"}, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.PreviewCount)
}

func TestDeleteRecordsUnknownTable(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "lab.db")
	db, err := labdb.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	tool := NewDeleteRecords(deletion.New(labdb.Execute, zap.NewNop()))

	_, err = tool.Execute(ctx, runtime.NewToolContext("local", "call-1"), json.RawMessage(
		`{"db_path": "`+dbPath+`", "table": "ImageStacks", "filters": {"organism": "e.coli"}}`))
	var unknownTable *labdb.UnknownTableError
	require.ErrorAs(t, err, &unknownTable)
	assert.Equal(t, "ImageStacks", unknownTable.Table)

	// No preview artifact is produced for an unknown table.
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dbPath), "previews"))
	assert.True(t, os.IsNotExist(statErr))
}

// stubResolver implements filter.Resolver with a canned outcome.
type stubResolver struct {
	m   filter.Map
	err error
}

func (s *stubResolver) Resolve(ctx context.Context, text string) (filter.Map, error) {
	return s.m, s.err
}

func TestInferFiltersSuccess(t *testing.T) {
	tool := NewInferFilters(&stubResolver{m: filter.Map{"organism": "E.coli", "protein": "DnaA"}})

	result, err := tool.Execute(context.Background(), runtime.NewToolContext("local", "call-1"),
		json.RawMessage(`{"criteria": "E.coli DnaA experiments"}`))
	require.NoError(t, err)

	var reply struct {
		Filters map[string]any `json:"filters"`
	}
	require.NoError(t, json.Unmarshal([]byte(result), &reply))
	assert.Equal(t, "E.coli", reply.Filters["organism"])
	assert.Equal(t, "DnaA", reply.Filters["protein"])
}

func TestInferFiltersResolveErrorSurfacedAsResult(t *testing.T) {
	tool := NewInferFilters(&stubResolver{err: &filter.ResolveError{
		Reason:  filter.ReasonUnsupportedFields,
		Message: "The provided criteria includes unsupported fields.",
	}})

	// Input errors come back as a tool result for the model to relay, not
	// as an execution failure.
	result, err := tool.Execute(context.Background(), runtime.NewToolContext("local", "call-1"),
		json.RawMessage(`{"criteria": "488nm wavelength files"}`))
	require.NoError(t, err)

	var reply struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal([]byte(result), &reply))
	assert.Equal(t, "unsupported_fields", reply.Error)
	assert.Equal(t, "The provided criteria includes unsupported fields.", reply.Detail)
}

func TestInferFiltersTransportErrorFails(t *testing.T) {
	tool := NewInferFilters(&stubResolver{err: errors.New("rate limited")})

	_, err := tool.Execute(context.Background(), runtime.NewToolContext("local", "call-1"),
		json.RawMessage(`{"criteria": "e.coli"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestInferFiltersMissingCriteria(t *testing.T) {
	tool := NewInferFilters(&stubResolver{})

	_, err := tool.Execute(context.Background(), runtime.NewToolContext("local", "call-1"),
		json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "criteria is required")
}

func TestValidateCSVTool(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "metadata.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"user_name,email,organism,protein,date,raw_file_name,raw_file_type,replicate\n"+
			"ada,ada@lab.test,e.coli,gfp,20250101,run1.tif,tif,1\n"+
			"ada,ada@lab.test,e.coli,gfp,2025-01-02,run2.tif,tif,2\n"), 0644))
	outPath := filepath.Join(dir, "invalid.csv")

	tool := NewValidateCSV()
	args, err := json.Marshal(map[string]string{"csv_path": csvPath, "output_path": outPath})
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), runtime.NewToolContext("local", "call-1"), args)
	require.NoError(t, err)

	var reply struct {
		InvalidCount int    `json:"invalid_count"`
		OutputPath   string `json:"output_path"`
	}
	require.NoError(t, json.Unmarshal([]byte(result), &reply))
	assert.Equal(t, 1, reply.InvalidCount)
	assert.Equal(t, outPath, reply.OutputPath)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "YYYYMMDD")
}

func TestValidateCSVToolMissingArgs(t *testing.T) {
	tool := NewValidateCSV()

	_, err := tool.Execute(context.Background(), runtime.NewToolContext("local", "call-1"),
		json.RawMessage(`{"csv_path": "/tmp/metadata.csv"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output_path")
}

func TestInsertCSVTool(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "lab.db")
	db, err := labdb.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	csvPath := filepath.Join(t.TempDir(), "users.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"user_id,user_name,email\n1,ada,ada@lab.test\n2,grace,grace@lab.test\n"), 0644))

	tool := NewInsertCSV()
	args, err := json.Marshal(map[string]string{
		"csv_path": csvPath,
		"db_path":  dbPath,
		"table":    "User",
	})
	require.NoError(t, err)

	result, err := tool.Execute(ctx, runtime.NewToolContext("local", "call-1"), args)
	require.NoError(t, err)

	var reply struct {
		Inserted     int `json:"inserted"`
		SkippedCount int `json:"skipped_count"`
	}
	require.NoError(t, json.Unmarshal([]byte(result), &reply))
	assert.Equal(t, 2, reply.Inserted)
	assert.Zero(t, reply.SkippedCount)
}

func TestInsertCSVToolMissingArgs(t *testing.T) {
	tool := NewInsertCSV()

	_, err := tool.Execute(context.Background(), runtime.NewToolContext("local", "call-1"),
		json.RawMessage(`{"csv_path": "/tmp/users.csv"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db_path")
}
