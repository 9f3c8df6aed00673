package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// CSVWriter buffers records and flushes them with a header row built from
// the sorted union of all field names. Nested values are JSON-encoded.
type CSVWriter struct {
	w     io.Writer
	items []Record
}

// NewCSVWriter creates a CSV writer.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: w}
}

// Write buffers one record.
func (c *CSVWriter) Write(rec Record) error {
	c.items = append(c.items, rec)
	return nil
}

// WriteAll buffers all records.
func (c *CSVWriter) WriteAll(recs []Record) error {
	c.items = append(c.items, recs...)
	return nil
}

// Flush writes the header and all buffered rows.
func (c *CSVWriter) Flush() error {
	cw := csv.NewWriter(c.w)
	fields := fieldUnion(c.items)

	if len(fields) > 0 {
		if err := cw.Write(fields); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	for _, rec := range c.items {
		row := make([]string, len(fields))
		for i, f := range fields {
			v, ok := rec[f]
			if !ok || v == nil {
				continue
			}
			row[i] = stringifyValue(v)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func fieldUnion(items []Record) []string {
	seen := make(map[string]struct{})
	for _, rec := range items {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	fields := make([]string, 0, len(seen))
	for k := range seen {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}
