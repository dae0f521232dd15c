package writers

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/kosarica/feed-service/internal/platforms"
	"github.com/kosarica/feed-service/internal/types"
)

// SheetName is the worksheet products are written to
const SheetName = "Sheet1"

// XLSXWriter streams rows into a single worksheet
type XLSXWriter struct {
	configured []string
	path       string
	file       *excelize.File
	stream     *excelize.StreamWriter
	columns    []string
	row        int
}

// NewXLSXWriter creates an XLSX writer with optional fixed columns
func NewXLSXWriter(columns []string) *XLSXWriter {
	return &XLSXWriter{configured: columns}
}

// Open prepares the workbook; the file is written on Close
func (w *XLSXWriter) Open(path string, _ platforms.Adapter) error {
	f := excelize.NewFile()
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to create sheet writer: %w", err)
	}
	w.path = path
	w.file = f
	w.stream = sw
	w.columns = nil
	w.row = 0
	return nil
}

func (w *XLSXWriter) setRow(values []any) error {
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	return w.stream.SetRow(cell, values)
}

// WriteProduct writes one row, emitting the header before the first
func (w *XLSXWriter) WriteProduct(row *types.Record) error {
	if w.stream == nil {
		return ErrNotOpen
	}
	if w.columns == nil {
		w.columns = columnsOf(w.configured, row)
		header := make([]any, len(w.columns))
		for i, c := range w.columns {
			header[i] = c
		}
		if err := w.setRow(header); err != nil {
			return err
		}
	}

	values := make([]any, len(w.columns))
	for i, col := range w.columns {
		v, _ := row.Get(col)
		switch t := v.(type) {
		case int, int64, float64, bool:
			values[i] = t
		default:
			values[i] = cellString(v)
		}
	}
	return w.setRow(values)
}

// Close flushes the sheet and saves the workbook
func (w *XLSXWriter) Close() error {
	if w.stream == nil {
		return ErrNotOpen
	}
	f := w.file
	defer f.Close()

	if w.columns == nil && len(w.configured) > 0 {
		w.columns = w.configured
		header := make([]any, len(w.configured))
		for i, c := range w.configured {
			header[i] = c
		}
		if err := w.setRow(header); err != nil {
			w.stream, w.file = nil, nil
			return err
		}
	}

	stream := w.stream
	w.stream, w.file = nil, nil
	if err := stream.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
