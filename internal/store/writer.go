// Package store persists scraped field mappings as JSON, CSV, YAML, XLSX,
// or SQLite.
package store

import (
	"fmt"
	"io"
)

// Record is one scraped page's field mapping.
type Record = map[string]any

// Format selects an output serialization.
type Format string

// Supported stream formats. SQLite is handled by DB, not a Writer.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
	FormatXLSX Format = "xlsx"
)

// Writer serializes records to a stream. Write may buffer; Flush commits.
type Writer interface {
	Write(rec Record) error
	WriteAll(recs []Record) error
	Flush() error
}

// NewWriter creates a writer for format over w.
func NewWriter(w io.Writer, format Format) (Writer, error) {
	switch format {
	case FormatJSON:
		return NewJSONWriter(w, true), nil
	case FormatCSV:
		return NewCSVWriter(w), nil
	case FormatYAML:
		return NewYAMLWriter(w), nil
	case FormatXLSX:
		return NewXLSXWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Ext returns the conventional file extension for format.
func Ext(format Format) string {
	return "." + string(format)
}
