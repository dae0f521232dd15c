// Package validator checks a written feed file before it is published.
package validator

import (
	"bufio"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/kosarica/feed-service/internal/types"
)

// ErrInvalidFeed wraps every structural validation failure
var ErrInvalidFeed = errors.New("invalid feed file")

// Defaults for Options
const (
	DefaultFullCheckLimit   int64 = 50 << 20
	DefaultJSONLSampleLines       = 1000
)

// Options tune how deep large files are checked
type Options struct {
	// FullCheckLimit is the size up to which JSON and JSONL files are parsed completely
	FullCheckLimit int64
	// JSONLSampleLines is the number of lines checked in JSONL files above the limit
	JSONLSampleLines int
}

func (o Options) withDefaults() Options {
	if o.FullCheckLimit <= 0 {
		o.FullCheckLimit = DefaultFullCheckLimit
	}
	if o.JSONLSampleLines <= 0 {
		o.JSONLSampleLines = DefaultJSONLSampleLines
	}
	return o
}

// Validate checks the file at path against the feed's format
func Validate(path string, feed *types.Feed, opts Options) error {
	opts = opts.withDefaults()

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat feed file: %w", err)
	}

	switch feed.Format {
	case types.FormatXML, "":
		return validateXML(path)
	case types.FormatCSV:
		return validateCSV(path, feed.CSV)
	case types.FormatJSON:
		return validateJSON(path, info.Size(), opts)
	case types.FormatJSONL:
		return validateJSONL(path, info.Size(), opts)
	case types.FormatXLSX:
		return validateXLSX(path)
	}
	return fmt.Errorf("%w: %q", types.ErrUnsupportedFormat, feed.Format)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFeed, fmt.Sprintf(format, args...))
}

// validateXML requires a well-formed token stream with exactly one root element
func validateXML(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := xml.NewDecoder(bufio.NewReader(f))
	depth, roots := 0, 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return invalid("xml: %v", err)
		}
		switch tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if roots > 1 {
					return invalid("xml: more than one root element")
				}
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	if roots == 0 {
		return invalid("xml: no root element")
	}
	if depth != 0 {
		return invalid("xml: unclosed elements")
	}
	return nil
}

// validateJSON parses small files completely; larger ones only need to
// start and end with matching brackets
func validateJSON(path string, size int64, opts Options) error {
	if size <= opts.FullCheckLimit {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if !json.Valid(data) {
			return invalid("json: malformed document")
		}
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	first, err := firstNonSpace(f)
	if err != nil {
		return err
	}
	last, err := lastNonSpace(f, size)
	if err != nil {
		return err
	}
	if (first == '[' && last == ']') || (first == '{' && last == '}') {
		return nil
	}
	return invalid("json: unbalanced document (%q ... %q)", first, last)
}

func firstNonSpace(r io.Reader) (byte, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			return 0, invalid("empty file")
		}
		if err != nil {
			return 0, err
		}
		if !isSpace(b) {
			return b, nil
		}
	}
}

func lastNonSpace(f *os.File, size int64) (byte, error) {
	const chunk = 4096
	buf := make([]byte, chunk)
	for end := size; end > 0; {
		start := end - chunk
		if start < 0 {
			start = 0
		}
		n, err := f.ReadAt(buf[:end-start], start)
		if err != nil && err != io.EOF {
			return 0, err
		}
		for i := n - 1; i >= 0; i-- {
			if !isSpace(buf[i]) {
				return buf[i], nil
			}
		}
		end = start
	}
	return 0, invalid("empty file")
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\r' || b == '\t'
}

// validateJSONL checks that each non-empty line is a JSON value; files above
// the full-check limit only have their first lines checked
func validateJSONL(path string, size int64, opts Options) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	limit := -1
	if size > opts.FullCheckLimit {
		limit = opts.JSONLSampleLines
	}

	br := bufio.NewReader(f)
	for n := 1; limit < 0 || n <= limit; n++ {
		line, err := br.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 && !json.Valid(trimmed) {
			return invalid("jsonl: line %d is not valid JSON", n)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func validateXLSX(path string) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return invalid("xlsx: %v", err)
	}
	defer f.Close()
	if len(f.GetSheetList()) == 0 {
		return invalid("xlsx: workbook has no sheets")
	}
	return nil
}
