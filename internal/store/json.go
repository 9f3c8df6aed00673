package store

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONWriter buffers records and flushes them as one JSON array.
type JSONWriter struct {
	w      io.Writer
	pretty bool
	items  []Record
}

// NewJSONWriter creates a JSON writer; pretty enables indentation.
func NewJSONWriter(w io.Writer, pretty bool) *JSONWriter {
	return &JSONWriter{w: w, pretty: pretty}
}

// Write buffers one record.
func (j *JSONWriter) Write(rec Record) error {
	j.items = append(j.items, rec)
	return nil
}

// WriteAll buffers all records.
func (j *JSONWriter) WriteAll(recs []Record) error {
	j.items = append(j.items, recs...)
	return nil
}

// Flush serializes the buffered records as a JSON array.
func (j *JSONWriter) Flush() error {
	var (
		out []byte
		err error
	)
	if j.pretty {
		out, err = json.MarshalIndent(j.items, "", "  ")
	} else {
		out, err = json.Marshal(j.items)
	}
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	if _, err := j.w.Write(append(out, '\n')); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}
