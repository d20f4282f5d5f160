package deletion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/labkeeper/internal/filter"
	"github.com/user/labkeeper/internal/labdb"
)

// execCall records one call into the fake executor.
type execCall struct {
	table   string
	filters map[string]any
	limit   int
	dryRun  bool
}

type fakeExecutor struct {
	calls        []execCall
	previewCount int
	deleted      int
	err          error
}

func (f *fakeExecutor) run(ctx context.Context, dbPath, table string, filters map[string]any, limit int, dryRun bool) (*labdb.ExecResult, error) {
	f.calls = append(f.calls, execCall{table: table, filters: filters, limit: limit, dryRun: dryRun})
	if f.err != nil {
		return nil, f.err
	}
	if dryRun {
		return &labdb.ExecResult{PreviewCount: f.previewCount, PreviewPath: "/tmp/previews/delete_Experiment.csv"}, nil
	}
	return &labdb.ExecResult{Deleted: f.deleted}, nil
}

func newTestGateway(exec *fakeExecutor) *Gateway {
	return New(exec.run, zap.NewNop())
}

func TestEvaluateFirstCallRequestsConfirmation(t *testing.T) {
	exec := &fakeExecutor{previewCount: 7}
	gw := newTestGateway(exec)

	decision, err := gw.Evaluate(context.Background(), Request{
		DBPath:  "/tmp/lab.db",
		Table:   "Experiment",
		Filters: filter.Map{"organism": "e.coli"},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, decision.Status)
	assert.Equal(t, 7, decision.PreviewCount)
	require.NotNil(t, decision.Confirmation)
	assert.Contains(t, decision.Confirmation.Hint, "7 records")
	assert.Contains(t, decision.Confirmation.Hint, "Experiment")

	// The resume payload commits exactly what was previewed.
	payload := decision.Confirmation.Payload
	assert.False(t, payload.DryRun)
	assert.Equal(t, "Experiment", payload.Table)
	assert.Equal(t, filter.Map{"organism": "e.coli"}, payload.Filters)
	assert.NotEmpty(t, payload.PreviewPath)

	// Only the dry run ran; no mutation without confirmation.
	require.Len(t, exec.calls, 1)
	assert.True(t, exec.calls[0].dryRun)
}

func TestEvaluateZeroMatchesAutoApproves(t *testing.T) {
	exec := &fakeExecutor{previewCount: 0}
	gw := newTestGateway(exec)

	decision, err := gw.Evaluate(context.Background(), Request{
		DBPath:  "/tmp/lab.db",
		Table:   "Experiment",
		Filters: filter.Map{"organism": "mouse"},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, decision.Status)
	assert.Zero(t, decision.DeletedCount)
	assert.Nil(t, decision.Confirmation, "nothing destructive to confirm")
	// The preview artifact still exists for the audit trail.
	assert.NotEmpty(t, decision.PreviewPath)

	require.Len(t, exec.calls, 1)
	assert.True(t, exec.calls[0].dryRun)
}

func TestEvaluateConfirmedCommits(t *testing.T) {
	exec := &fakeExecutor{deleted: 7}
	gw := newTestGateway(exec)

	decision, err := gw.Evaluate(context.Background(), Request{
		DBPath:       "/tmp/lab.db",
		Table:        "Experiment",
		Filters:      filter.Map{"organism": "e.coli"},
		Confirmation: &ConfirmationState{Confirmed: true},
		PreviewPath:  "/tmp/previews/delete_Experiment.csv",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, decision.Status)
	assert.Equal(t, 7, decision.DeletedCount)
	assert.Equal(t, "/tmp/previews/delete_Experiment.csv", decision.PreviewPath)

	require.Len(t, exec.calls, 1)
	assert.False(t, exec.calls[0].dryRun, "commit runs for real")
}

func TestEvaluateDeniedDoesNotExecute(t *testing.T) {
	exec := &fakeExecutor{}
	gw := newTestGateway(exec)

	decision, err := gw.Evaluate(context.Background(), Request{
		DBPath:       "/tmp/lab.db",
		Table:        "Experiment",
		Filters:      filter.Map{"organism": "e.coli"},
		Confirmation: &ConfirmationState{Confirmed: false},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusDenied, decision.Status)
	assert.Contains(t, decision.Message, "cancelled")
	assert.Empty(t, exec.calls, "denial must not touch the database")
}

func TestEvaluateInvalidFiltersBeforeDryRun(t *testing.T) {
	exec := &fakeExecutor{}
	gw := newTestGateway(exec)

	_, err := gw.Evaluate(context.Background(), Request{
		DBPath:  "/tmp/lab.db",
		Table:   "Experiment",
		Filters: filter.Map{"wavelength": 488},
	})
	var resolveErr *filter.ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.Equal(t, filter.ReasonUnsupportedFields, resolveErr.Reason)
	assert.Empty(t, exec.calls, "validation fails before any SQL")
}

func TestEvaluateEmptyFilters(t *testing.T) {
	exec := &fakeExecutor{}
	gw := newTestGateway(exec)

	_, err := gw.Evaluate(context.Background(), Request{
		DBPath:  "/tmp/lab.db",
		Table:   "Experiment",
		Filters: filter.Map{},
	})
	require.Error(t, err)
	assert.Empty(t, exec.calls)
}

func TestEvaluateExecutorErrorSurfaces(t *testing.T) {
	wantErr := &labdb.UnknownTableError{Table: "Nope"}
	exec := &fakeExecutor{err: wantErr}
	gw := newTestGateway(exec)

	_, err := gw.Evaluate(context.Background(), Request{
		DBPath:  "/tmp/lab.db",
		Table:   "Nope",
		Filters: filter.Map{"organism": "e.coli"},
	})
	var unknownTable *labdb.UnknownTableError
	require.ErrorAs(t, err, &unknownTable)
	assert.Equal(t, "Nope", unknownTable.Table)
}

func TestEvaluateCommitErrorSurfaces(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("disk I/O error")}
	gw := newTestGateway(exec)

	_, err := gw.Evaluate(context.Background(), Request{
		DBPath:       "/tmp/lab.db",
		Table:        "Experiment",
		Filters:      filter.Map{"organism": "e.coli"},
		Confirmation: &ConfirmationState{Confirmed: true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute deletion")
}
