package writers

import (
	"strings"

	"github.com/kosarica/feed-service/internal/platforms"
	"github.com/kosarica/feed-service/internal/types"
)

// CSVWriter writes rows as delimited text. The header comes from the
// configured columns or, when none are set, from the first row's keys.
type CSVWriter struct {
	settings  types.CSVSettings
	delimiter string
	enclosure string
	sink      *fileSink
	columns   []string
}

// NewCSVWriter creates a CSV writer; unknown charsets fail here
func NewCSVWriter(settings types.CSVSettings) (*CSVWriter, error) {
	if _, err := lookupCharset(settings.Encoding); err != nil {
		return nil, err
	}
	return &CSVWriter{
		settings:  settings,
		delimiter: string(settings.DelimiterRune()),
		enclosure: string(settings.EnclosureRune()),
	}, nil
}

// Open creates the file
func (w *CSVWriter) Open(path string, _ platforms.Adapter) error {
	sink, err := openSink(path)
	if err != nil {
		return err
	}
	enc, err := encodeWriter(sink.buf, w.settings.Encoding)
	if err != nil {
		sink.close()
		return err
	}
	sink.w = enc
	w.sink = sink
	w.columns = nil
	return nil
}

// WriteProduct writes one row, emitting the header before the first
func (w *CSVWriter) WriteProduct(row *types.Record) error {
	if w.sink == nil {
		return ErrNotOpen
	}
	if w.columns == nil {
		w.columns = columnsOf(w.settings.Columns, row)
		if w.settings.HeaderEnabled() {
			if err := w.sink.WriteString(w.line(w.columns)); err != nil {
				return err
			}
		}
	}

	fields := make([]string, len(w.columns))
	for i, col := range w.columns {
		v, _ := row.Get(col)
		fields[i] = cellString(v)
	}
	return w.sink.WriteString(w.line(fields))
}

// Columns returns the header in use, nil before the first row
func (w *CSVWriter) Columns() []string { return w.columns }

// Close writes the header for empty files with configured columns and closes the file
func (w *CSVWriter) Close() error {
	if w.sink == nil {
		return ErrNotOpen
	}
	sink := w.sink
	w.sink = nil
	if w.columns == nil && len(w.settings.Columns) > 0 && w.settings.HeaderEnabled() {
		if err := sink.WriteString(w.line(w.settings.Columns)); err != nil {
			sink.close()
			return err
		}
	}
	return sink.close()
}

func (w *CSVWriter) line(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = w.quote(f)
	}
	return strings.Join(quoted, w.delimiter) + "\n"
}

// quote encloses a field when it holds the delimiter, the enclosure, a line
// break or surrounding spaces; enclosures inside are doubled
func (w *CSVWriter) quote(field string) string {
	needs := field != strings.TrimSpace(field) ||
		strings.Contains(field, w.delimiter) ||
		strings.Contains(field, w.enclosure) ||
		strings.ContainsAny(field, "\r\n")
	if !needs {
		return field
	}
	return w.enclosure + strings.ReplaceAll(field, w.enclosure, w.enclosure+w.enclosure) + w.enclosure
}
