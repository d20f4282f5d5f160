// internal/labdb/preview.go
package labdb

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// preview selects the rows the deletion would affect and renders them to a
// CSV artifact next to the database. The artifact is written even when no
// rows match.
func (d *DB) preview(ctx context.Context, table, where string, args []any, limit int) (*ExecResult, error) {
	query := fmt.Sprintf("SELECT * FROM %q WHERE %s", table, where)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("preview columns: %w", err)
	}

	path, err := d.previewPath(table)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create preview artifact: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(cols); err != nil {
		return nil, fmt.Errorf("write preview header: %w", err)
	}

	count := 0
	values := make([]sql.NullString, len(cols))
	scan := make([]any, len(cols))
	for i := range values {
		scan[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("scan preview row: %w", err)
		}
		record := make([]string, len(cols))
		for i, v := range values {
			if v.Valid {
				record[i] = v.String
			}
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write preview row: %w", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("preview rows: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush preview: %w", err)
	}
	return &ExecResult{PreviewCount: count, PreviewPath: path}, nil
}

func (d *DB) previewPath(table string) (string, error) {
	dir := filepath.Join(filepath.Dir(d.path), "previews")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create previews dir: %w", err)
	}
	name := fmt.Sprintf("delete_%s_%s.csv", table, time.Now().Format("20060102T150405"))
	return filepath.Join(dir, name), nil
}
