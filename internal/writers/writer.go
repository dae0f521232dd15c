// Package writers serializes mapped feed rows to XML, CSV, JSON, JSONL and XLSX files.
package writers

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/kosarica/feed-service/internal/platforms"
	"github.com/kosarica/feed-service/internal/types"
)

// ErrNotOpen is returned when a writer is used before Open or after Close
var ErrNotOpen = errors.New("writer is not open")

// Writer streams product rows into one output file
type Writer interface {
	Open(path string, adapter platforms.Adapter) error
	WriteProduct(row *types.Record) error
	Close() error
}

// ElementWriter is implemented by writers that accept pre-built element trees
type ElementWriter interface {
	WriteElement(el *types.Element) error
}

// New returns the writer for the feed's format
func New(feed *types.Feed) (Writer, error) {
	switch feed.Format {
	case types.FormatXML, "":
		if feed.XML.Mode == types.XMLModeTemplate {
			if strings.TrimSpace(feed.XML.ItemTemplate) == "" {
				return nil, fmt.Errorf("feed %d: template mode requires an item template", feed.ID)
			}
			return NewTemplateWriter(feed.XML), nil
		}
		return NewXMLWriter(feed.XML), nil
	case types.FormatCSV:
		w, err := NewCSVWriter(feed.CSV)
		if err != nil {
			return nil, err
		}
		return w, nil
	case types.FormatJSON:
		return NewJSONWriter(feed.JSON), nil
	case types.FormatJSONL:
		return NewJSONLWriter(), nil
	case types.FormatXLSX:
		return NewXLSXWriter(feed.CSV.Columns), nil
	}
	return nil, fmt.Errorf("%w: %q", types.ErrUnsupportedFormat, feed.Format)
}

// fileSink is the buffered file shared by the text writers
type fileSink struct {
	file *os.File
	buf  *bufio.Writer
	w    io.Writer
}

func openSink(path string) (*fileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	buf := bufio.NewWriterSize(f, 64*1024)
	return &fileSink{file: f, buf: buf, w: buf}, nil
}

func (s *fileSink) WriteString(str string) error {
	_, err := io.WriteString(s.w, str)
	return err
}

func (s *fileSink) close() error {
	if closer, ok := s.w.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.file.Close()
			return err
		}
	}
	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// SanitizeName turns an attribute name into a valid XML element name.
// A single namespace prefix ("g:price") is kept.
func SanitizeName(name string) string {
	prefix := ""
	if i := strings.IndexByte(name, ':'); i > 0 && i < len(name)-1 {
		prefix, name = sanitizeLocal(name[:i])+":", name[i+1:]
	}
	return prefix + sanitizeLocal(name)
}

func sanitizeLocal(name string) string {
	var b strings.Builder
	for i, r := range name {
		valid := unicode.IsLetter(r) || r == '_' || (i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.'))
		if !valid {
			if i == 0 && (unicode.IsDigit(r) || r == '-' || r == '.') {
				b.WriteRune('_')
				b.WriteRune(r)
				continue
			}
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// columnsOf returns the configured columns or the keys of the first row
func columnsOf(configured []string, row *types.Record) []string {
	if len(configured) > 0 {
		return configured
	}
	return row.Keys()
}

// cellString flattens a row value for tabular formats
func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case *types.Record:
		b, err := t.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(b)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, cellString(item))
		}
		return strings.Join(parts, ",")
	}
	return types.ToString(v)
}
