package writers

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/kosarica/feed-service/internal/platforms"
	"github.com/kosarica/feed-service/internal/types"
)

const xmlDeclaration = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// XMLWriter streams products as <item> elements under a single root.
// Field names get the adapter's namespace prefix when it declares one.
type XMLWriter struct {
	settings types.XMLSettings
	sink     *fileSink
	prefix   string
	count    int
}

// NewXMLWriter creates an XML writer
func NewXMLWriter(settings types.XMLSettings) *XMLWriter {
	return &XMLWriter{settings: settings}
}

// Open creates the file and writes the declaration and root element
func (w *XMLWriter) Open(path string, adapter platforms.Adapter) error {
	sink, err := openSink(path)
	if err != nil {
		return err
	}
	w.sink = sink
	w.count = 0

	var ns map[string]string
	if n, ok := adapter.(platforms.XMLNamespacer); ok {
		ns = n.XMLNamespaces()
		w.prefix = n.XMLFieldPrefix()
	}

	var b strings.Builder
	b.WriteString(xmlDeclaration)
	b.WriteString("<" + SanitizeName(w.settings.Root()))
	prefixes := make([]string, 0, len(ns))
	for p := range ns {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	for _, p := range prefixes {
		fmt.Fprintf(&b, ` xmlns:%s="%s"`, p, escapeAttr(ns[p]))
	}
	b.WriteString(">\n")
	return w.sink.WriteString(b.String())
}

// WriteProduct writes one product element
func (w *XMLWriter) WriteProduct(row *types.Record) error {
	if w.sink == nil {
		return ErrNotOpen
	}
	var b strings.Builder
	item := SanitizeName(w.settings.Item())
	b.WriteString("  <" + item + ">\n")
	for _, key := range row.Keys() {
		v, _ := row.Get(key)
		writeValue(&b, w.fieldName(key), v, 2)
	}
	b.WriteString("  </" + item + ">\n")
	w.count++
	return w.sink.WriteString(b.String())
}

// WriteElement writes a pre-built element tree as one product
func (w *XMLWriter) WriteElement(el *types.Element) error {
	if w.sink == nil {
		return ErrNotOpen
	}
	var b strings.Builder
	renderElement(&b, el, 1)
	w.count++
	return w.sink.WriteString(b.String())
}

// Count returns the number of products written
func (w *XMLWriter) Count() int { return w.count }

// Close writes the closing root tag and closes the file
func (w *XMLWriter) Close() error {
	if w.sink == nil {
		return ErrNotOpen
	}
	sink := w.sink
	w.sink = nil
	if err := sink.WriteString("</" + SanitizeName(w.settings.Root()) + ">\n"); err != nil {
		sink.close()
		return err
	}
	return sink.close()
}

func (w *XMLWriter) fieldName(key string) string {
	if w.prefix != "" && !strings.Contains(key, ":") {
		key = w.prefix + key
	}
	return SanitizeName(key)
}

func writeValue(b *strings.Builder, name string, v any, depth int) {
	indent := strings.Repeat("  ", depth)
	switch t := v.(type) {
	case []string:
		for _, s := range t {
			writeValue(b, name, s, depth)
		}
	case []any:
		for _, item := range t {
			writeValue(b, name, item, depth)
		}
	case *types.Record:
		b.WriteString(indent + "<" + name + ">\n")
		for _, k := range t.Keys() {
			cv, _ := t.Get(k)
			writeValue(b, SanitizeName(k), cv, depth+1)
		}
		b.WriteString(indent + "</" + name + ">\n")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(indent + "<" + name + ">\n")
		for _, k := range keys {
			writeValue(b, SanitizeName(k), t[k], depth+1)
		}
		b.WriteString(indent + "</" + name + ">\n")
	case *types.Element:
		renderElement(b, t, depth)
	default:
		b.WriteString(indent + "<" + name + ">" + EscapeText(types.ToString(v)) + "</" + name + ">\n")
	}
}

// EscapeText escapes character data for XML
func EscapeText(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

func escapeAttr(s string) string {
	return strings.ReplaceAll(EscapeText(s), `"`, "&quot;")
}
