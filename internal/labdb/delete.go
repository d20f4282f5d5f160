// internal/labdb/delete.go
package labdb

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ExecResult is the outcome of a deletion call. PreviewCount and
// PreviewPath are set on dry runs; Deleted is set on real deletions.
type ExecResult struct {
	PreviewCount int    `json:"preview_count"`
	PreviewPath  string `json:"preview_path"`
	Deleted      int    `json:"deleted"`
}

// Execute opens the lab database at dbPath and runs DeleteByFilter against
// it. This is the single entry point the deletion gateway calls; nothing
// else in the repository issues DELETE statements against lab tables.
func Execute(ctx context.Context, dbPath, table string, filters map[string]any, limit int, dryRun bool) (*ExecResult, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.DeleteByFilter(ctx, table, filters, limit, dryRun)
}

// DeleteByFilter deletes (or, with dryRun, previews deleting) the rows of
// table matching the filter map. A dry run is read-only apart from writing
// the preview artifact, which is written even for zero matches so every
// evaluated deletion leaves an audit trail. limit <= 0 means no limit.
func (d *DB) DeleteByFilter(ctx context.Context, table string, filters map[string]any, limit int, dryRun bool) (*ExecResult, error) {
	exists, err := d.tableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &UnknownTableError{Table: table}
	}

	where, args, err := d.buildWhere(ctx, table, filters)
	if err != nil {
		return nil, err
	}

	if dryRun {
		return d.preview(ctx, table, where, args, limit)
	}

	var query string
	if limit > 0 {
		sub := fmt.Sprintf("SELECT rowid FROM %q WHERE %s LIMIT %d", table, where, limit)
		query = fmt.Sprintf("DELETE FROM %q WHERE rowid IN (%s)", table, sub)
	} else {
		query = fmt.Sprintf("DELETE FROM %q WHERE %s", table, where)
	}

	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	return &ExecResult{Deleted: int(n)}, nil
}

// buildWhere validates the filter map against the closed vocabulary and the
// table's actual columns, then assembles a parameterized WHERE clause with
// deterministic field order.
func (d *DB) buildWhere(ctx context.Context, table string, filters map[string]any) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, &InvalidFilterError{Reason: "empty filter map refuses to match the whole table"}
	}

	vocab, err := LoadVocabulary()
	if err != nil {
		return "", nil, err
	}
	cols, err := d.tableColumns(ctx, table)
	if err != nil {
		return "", nil, err
	}
	colSet := make(map[string]bool, len(cols))
	for _, c := range cols {
		colSet[c] = true
	}

	fields := make([]string, 0, len(filters))
	for f := range filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var clauses []string
	var args []any
	for _, f := range fields {
		if !vocab.KnownFilter(f) {
			return "", nil, &InvalidFilterError{Field: f, Reason: "not in the supported field vocabulary"}
		}
		if !colSet[f] {
			return "", nil, &InvalidFilterError{Field: f, Reason: fmt.Sprintf("not a column of table %s", table)}
		}
		clauses = append(clauses, fmt.Sprintf("%q = ?", f))
		args = append(args, filters[f])
	}
	return strings.Join(clauses, " AND "), args, nil
}
