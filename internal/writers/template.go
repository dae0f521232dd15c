package writers

import (
	"strings"

	"github.com/kosarica/feed-service/internal/platforms"
	"github.com/kosarica/feed-service/internal/transformers"
	"github.com/kosarica/feed-service/internal/types"
)

// RenderTemplate expands {{attribute}} placeholders from row with XML-escaped values.
// Unknown attributes render as empty text.
func RenderTemplate(tpl string, row *types.Record) string {
	return transformers.Expand(tpl, func(key string) (any, bool) {
		if row == nil {
			return nil, false
		}
		v, ok := row.Get(key)
		if !ok {
			return nil, false
		}
		return EscapeText(cellString(v)), true
	})
}

// TemplateWriter renders products through the feed's header, item and footer templates
type TemplateWriter struct {
	settings types.XMLSettings
	sink     *fileSink
}

// NewTemplateWriter creates a template writer
func NewTemplateWriter(settings types.XMLSettings) *TemplateWriter {
	return &TemplateWriter{settings: settings}
}

// Open creates the file and writes the header, defaulting to a declaration and the root tag
func (w *TemplateWriter) Open(path string, _ platforms.Adapter) error {
	sink, err := openSink(path)
	if err != nil {
		return err
	}
	w.sink = sink

	header := w.settings.Header
	if header == "" {
		header = xmlDeclaration + "<" + SanitizeName(w.settings.Root()) + ">"
	}
	return w.sink.WriteString(withNewline(header))
}

// WriteProduct renders the item template for one product
func (w *TemplateWriter) WriteProduct(row *types.Record) error {
	if w.sink == nil {
		return ErrNotOpen
	}
	return w.sink.WriteString(withNewline(RenderTemplate(w.settings.ItemTemplate, row)))
}

// Close writes the footer and closes the file
func (w *TemplateWriter) Close() error {
	if w.sink == nil {
		return ErrNotOpen
	}
	sink := w.sink
	w.sink = nil

	footer := w.settings.Footer
	if footer == "" {
		footer = "</" + SanitizeName(w.settings.Root()) + ">"
	}
	if err := sink.WriteString(withNewline(footer)); err != nil {
		sink.close()
		return err
	}
	return sink.close()
}

func withNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// RenderElement serializes an element tree with two-space indentation
func RenderElement(el *types.Element) string {
	var b strings.Builder
	renderElement(&b, el, 0)
	return b.String()
}

func renderElement(b *strings.Builder, el *types.Element, depth int) {
	if el == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	name := SanitizeName(el.Name)

	if el.IsLeaf() {
		b.WriteString(indent + "<" + name + ">")
		if el.CDATA {
			b.WriteString(cdata(el.Text))
		} else {
			b.WriteString(EscapeText(el.Text))
		}
		b.WriteString("</" + name + ">\n")
		return
	}

	b.WriteString(indent + "<" + name + ">\n")
	for _, child := range el.Children {
		renderElement(b, child, depth+1)
	}
	b.WriteString(indent + "</" + name + ">\n")
}

// cdata wraps text in a CDATA section, splitting any embedded terminator
func cdata(text string) string {
	return "<![CDATA[" + strings.ReplaceAll(text, "]]>", "]]]]><![CDATA[>") + "]]>"
}
