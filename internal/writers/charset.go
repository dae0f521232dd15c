package writers

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Output charsets with explicit handling; anything else is resolved through the WHATWG index
const (
	CharsetUTF8        = "utf-8"
	CharsetUTF8BOM     = "utf-8-bom"
	CharsetWindows1250 = "windows-1250"
	CharsetWindows1252 = "windows-1252"
	CharsetISO88592    = "iso-8859-2"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// lookupCharset returns nil for UTF-8
func lookupCharset(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CharsetUTF8, "utf8", CharsetUTF8BOM:
		return nil, nil
	case CharsetWindows1250, "cp1250":
		return charmap.Windows1250, nil
	case CharsetWindows1252, "cp1252":
		return charmap.Windows1252, nil
	case CharsetISO88592, "latin2":
		return charmap.ISO8859_2, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported output charset %q: %w", name, err)
	}
	return enc, nil
}

// encodeWriter wraps w so text written as UTF-8 lands in the target charset.
// Characters the charset cannot represent are replaced rather than failing the run.
func encodeWriter(w io.Writer, charset string) (io.Writer, error) {
	if strings.EqualFold(strings.TrimSpace(charset), CharsetUTF8BOM) {
		if _, err := w.Write(utf8BOM); err != nil {
			return nil, err
		}
		return w, nil
	}
	enc, err := lookupCharset(charset)
	if err != nil || enc == nil {
		return w, err
	}
	return transform.NewWriter(w, encoding.ReplaceUnsupported(enc.NewEncoder())), nil
}
