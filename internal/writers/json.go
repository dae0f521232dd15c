package writers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kosarica/feed-service/internal/platforms"
	"github.com/kosarica/feed-service/internal/types"
)

// marshal encodes v without HTML escaping and without the trailing newline
func marshal(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent(indent, "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// JSONWriter writes products as one JSON array, optionally wrapped in an
// object under a root key. Products are streamed element by element.
type JSONWriter struct {
	settings types.JSONSettings
	sink     *fileSink
	count    int
}

// NewJSONWriter creates a JSON writer
func NewJSONWriter(settings types.JSONSettings) *JSONWriter {
	return &JSONWriter{settings: settings}
}

func (w *JSONWriter) indent() string {
	if !w.settings.Pretty {
		return ""
	}
	if w.settings.RootKey != "" {
		return "    "
	}
	return "  "
}

// Open creates the file and writes the array opening
func (w *JSONWriter) Open(path string, _ platforms.Adapter) error {
	sink, err := openSink(path)
	if err != nil {
		return err
	}
	w.sink = sink
	w.count = 0

	open := "["
	if w.settings.RootKey != "" {
		key, err := json.Marshal(w.settings.RootKey)
		if err != nil {
			return err
		}
		open = "{" + string(key) + ":["
		if w.settings.Pretty {
			open = "{\n  " + string(key) + ": ["
		}
	}
	return w.sink.WriteString(open)
}

// WriteProduct appends one product to the array
func (w *JSONWriter) WriteProduct(row *types.Record) error {
	if w.sink == nil {
		return ErrNotOpen
	}
	b, err := marshal(row, w.indent())
	if err != nil {
		return fmt.Errorf("failed to encode product: %w", err)
	}

	sep := ""
	if w.count > 0 {
		sep = ","
	}
	if w.settings.Pretty {
		sep += "\n" + w.indent()
	}
	w.count++
	return w.sink.WriteString(sep + string(b))
}

// Close terminates the array and closes the file
func (w *JSONWriter) Close() error {
	if w.sink == nil {
		return ErrNotOpen
	}
	sink := w.sink
	w.sink = nil

	end := "]"
	if w.settings.Pretty && w.count > 0 {
		end = "\n" + w.indent()[2:] + "]"
	}
	if w.settings.RootKey != "" {
		if w.settings.Pretty {
			end += "\n}"
		} else {
			end += "}"
		}
	}
	if err := sink.WriteString(end + "\n"); err != nil {
		sink.close()
		return err
	}
	return sink.close()
}

// JSONLWriter writes one compact JSON object per line
type JSONLWriter struct {
	sink *fileSink
}

// NewJSONLWriter creates a JSON Lines writer
func NewJSONLWriter() *JSONLWriter {
	return &JSONLWriter{}
}

// Open creates the file
func (w *JSONLWriter) Open(path string, _ platforms.Adapter) error {
	sink, err := openSink(path)
	if err != nil {
		return err
	}
	w.sink = sink
	return nil
}

// WriteProduct writes one line
func (w *JSONLWriter) WriteProduct(row *types.Record) error {
	if w.sink == nil {
		return ErrNotOpen
	}
	b, err := marshal(row, "")
	if err != nil {
		return fmt.Errorf("failed to encode product: %w", err)
	}
	return w.sink.WriteString(string(b) + "\n")
}

// Close closes the file
func (w *JSONLWriter) Close() error {
	if w.sink == nil {
		return ErrNotOpen
	}
	sink := w.sink
	w.sink = nil
	return sink.close()
}
