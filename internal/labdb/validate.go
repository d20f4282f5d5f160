// internal/labdb/validate.go
package labdb

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// InvalidRow describes one rejected CSV row.
type InvalidRow struct {
	Line   int               `json:"line"`
	Reason string            `json:"reason"`
	Record map[string]string `json:"record"`
}

// ValidateCSV checks a metadata CSV against the vocabulary's CSV rules:
// required fields present and non-empty, dates in YYYYMMDD form, numeric
// fields parseable, and no duplicates on the unique field. Invalid rows are
// written to outPath with a trailing reason column and also returned.
func ValidateCSV(csvPath, outPath string) ([]InvalidRow, error) {
	vocab, err := LoadVocabulary()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}

	for _, req := range vocab.CSV.Required {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("csv missing required column %q", req)
		}
	}

	seen := make(map[string]int)
	var invalid []InvalidRow
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", line+1, err)
		}
		line++

		if reason := vocab.validateRecord(col, record, seen, line); reason != "" {
			invalid = append(invalid, InvalidRow{
				Line:   line,
				Reason: reason,
				Record: recordMap(header, record),
			})
		}
	}

	if err := writeInvalidRows(outPath, header, invalid); err != nil {
		return nil, err
	}
	return invalid, nil
}

func (v *Vocabulary) validateRecord(col map[string]int, record []string, seen map[string]int, line int) string {
	field := func(name string) (string, bool) {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}

	for _, req := range v.CSV.Required {
		if val, ok := field(req); !ok || val == "" {
			return fmt.Sprintf("missing required field %q", req)
		}
	}
	for _, df := range v.CSV.DateFields {
		if val, ok := field(df); ok && val != "" {
			if _, err := time.Parse("20060102", val); err != nil {
				return fmt.Sprintf("field %q: date must be YYYYMMDD, got %q", df, val)
			}
		}
	}
	for _, nf := range v.CSV.Numeric {
		if val, ok := field(nf); ok && val != "" {
			if _, err := strconv.ParseFloat(val, 64); err != nil {
				return fmt.Sprintf("field %q: not a number: %q", nf, val)
			}
		}
	}
	if v.CSV.Unique != "" {
		if val, ok := field(v.CSV.Unique); ok && val != "" {
			if first, dup := seen[val]; dup {
				return fmt.Sprintf("duplicate %q %q (first seen on line %d)", v.CSV.Unique, val, first)
			}
			seen[val] = line
		}
	}
	return ""
}

func recordMap(header, record []string) map[string]string {
	m := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(record) {
			m[strings.TrimSpace(h)] = record[i]
		}
	}
	return m
}

func writeInvalidRows(outPath string, header []string, invalid []InvalidRow) error {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create invalid-rows csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	out := append(append([]string{}, header...), "reason")
	if err := w.Write(out); err != nil {
		return fmt.Errorf("write invalid-rows header: %w", err)
	}
	for _, row := range invalid {
		record := make([]string, 0, len(header)+1)
		for _, h := range header {
			record = append(record, row.Record[strings.TrimSpace(h)])
		}
		record = append(record, row.Reason)
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write invalid row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush invalid-rows csv: %w", err)
	}
	return nil
}
