// internal/labdb/insert.go
package labdb

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// SkippedRow describes one CSV row that could not be inserted.
type SkippedRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// InsertFromCSV inserts the rows of a metadata CSV into the given table.
// Header names must all be columns of the table. Rows that violate a
// constraint are skipped, not fatal; the caller reports the skip count.
func (d *DB) InsertFromCSV(ctx context.Context, csvPath, table string) (int, []SkippedRow, error) {
	exists, err := d.tableExists(ctx, table)
	if err != nil {
		return 0, nil, err
	}
	if !exists {
		return 0, nil, &UnknownTableError{Table: table}
	}

	cols, err := d.tableColumns(ctx, table)
	if err != nil {
		return 0, nil, err
	}
	colSet := make(map[string]bool, len(cols))
	for _, c := range cols {
		colSet[c] = true
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return 0, nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return 0, nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if !colSet[header[i]] {
			return 0, nil, fmt.Errorf("csv column %q is not a column of table %s", header[i], table)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(header)), ", ")
	quoted := make([]string, len(header))
	for i, h := range header {
		quoted[i] = fmt.Sprintf("%q", h)
	}
	stmt, err := d.db.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %q (%s) VALUES (%s)", table, strings.Join(quoted, ", "), placeholders))
	if err != nil {
		return 0, nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	var skipped []SkippedRow
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return inserted, skipped, fmt.Errorf("read csv row %d: %w", line+1, err)
		}
		line++

		args := make([]any, len(header))
		for i := range header {
			if i < len(record) && strings.TrimSpace(record[i]) != "" {
				args[i] = record[i]
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			skipped = append(skipped, SkippedRow{Line: line, Reason: err.Error()})
			continue
		}
		inserted++
	}
	return inserted, skipped, nil
}
