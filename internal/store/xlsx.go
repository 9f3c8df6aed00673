package store

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Results"

// XLSXWriter buffers records and flushes them as a spreadsheet with a
// header row, using the same sorted field union as the CSV writer.
type XLSXWriter struct {
	w     io.Writer
	items []Record
}

// NewXLSXWriter creates an XLSX writer.
func NewXLSXWriter(w io.Writer) *XLSXWriter {
	return &XLSXWriter{w: w}
}

// Write buffers one record.
func (x *XLSXWriter) Write(rec Record) error {
	x.items = append(x.items, rec)
	return nil
}

// WriteAll buffers all records.
func (x *XLSXWriter) WriteAll(recs []Record) error {
	x.items = append(x.items, recs...)
	return nil
}

// Flush builds the workbook and writes it out.
func (x *XLSXWriter) Flush() error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(xlsxSheet)
	if err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	fields := fieldUnion(x.items)
	for col, name := range fields {
		if err := x.setCell(f, col+1, 1, name); err != nil {
			return err
		}
	}
	for rowIdx, rec := range x.items {
		for col, name := range fields {
			v, ok := rec[name]
			if !ok || v == nil {
				continue
			}
			if err := x.setCell(f, col+1, rowIdx+2, stringifyValue(v)); err != nil {
				return err
			}
		}
	}

	if err := f.Write(x.w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func (x *XLSXWriter) setCell(f *excelize.File, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("cell coordinates: %w", err)
	}
	if err := f.SetCellValue(xlsxSheet, cell, value); err != nil {
		return fmt.Errorf("set cell %s: %w", cell, err)
	}
	return nil
}
