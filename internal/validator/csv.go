package validator

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kosarica/feed-service/internal/types"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// validateCSV requires every record to have as many fields as the first one.
// Quoted fields may span lines.
func validateCSV(path string, settings types.CSVSettings) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	delimiter, quote := settings.DelimiterRune(), settings.EnclosureRune()
	expected := -1
	if !settings.HeaderEnabled() && len(settings.Columns) > 0 {
		expected = len(settings.Columns)
	}

	br := bufio.NewReaderSize(f, 64*1024)
	var pending strings.Builder
	record := 0
	first := true

	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if first {
			line = string(bytes.TrimPrefix([]byte(line), utf8BOM))
			first = false
		}

		if line != "" {
			pending.WriteString(line)
			fields, open := SplitRecord(strings.TrimRight(pending.String(), "\r\n"), delimiter, quote)
			if !open {
				text := pending.String()
				pending.Reset()
				if strings.TrimSpace(text) != "" {
					record++
					if expected < 0 {
						expected = len(fields)
					} else if len(fields) != expected {
						return invalid("csv: record %d has %d fields, expected %d", record, len(fields), expected)
					}
				}
			}
		}

		if err == io.EOF {
			break
		}
	}

	if pending.Len() > 0 {
		return invalid("csv: unterminated quoted field in record %d", record+1)
	}
	return nil
}

// SplitRecord splits one CSV record honouring quoted fields and doubled
// quotes. open reports that the text ends inside a quoted field.
func SplitRecord(text string, delimiter, quote rune) (fields []string, open bool) {
	fields = make([]string, 0, 16)
	var current strings.Builder
	inQuotes := false

	for i := 0; i < len(text); {
		r, width := utf8.DecodeRuneInString(text[i:])
		i += width

		if inQuotes {
			if r == quote {
				if next, w := utf8.DecodeRuneInString(text[i:]); i < len(text) && next == quote {
					current.WriteRune(quote)
					i += w
					continue
				}
				inQuotes = false
				continue
			}
			current.WriteRune(r)
			continue
		}

		switch r {
		case quote:
			inQuotes = true
		case delimiter:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}

	fields = append(fields, current.String())
	return fields, inQuotes
}
