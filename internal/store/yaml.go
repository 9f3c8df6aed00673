package store

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLWriter buffers records and flushes them as one YAML sequence.
type YAMLWriter struct {
	w     io.Writer
	items []Record
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	return &YAMLWriter{w: w}
}

// Write buffers one record.
func (y *YAMLWriter) Write(rec Record) error {
	y.items = append(y.items, rec)
	return nil
}

// WriteAll buffers all records.
func (y *YAMLWriter) WriteAll(recs []Record) error {
	y.items = append(y.items, recs...)
	return nil
}

// Flush serializes the buffered records.
func (y *YAMLWriter) Flush() error {
	enc := yaml.NewEncoder(y.w)
	enc.SetIndent(2)
	if err := enc.Encode(y.items); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close yaml encoder: %w", err)
	}
	return nil
}
