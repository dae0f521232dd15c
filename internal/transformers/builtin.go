package transformers

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kosarica/feed-service/internal/conditions"
	"github.com/kosarica/feed-service/internal/types"
)

func builtins() map[string]Func {
	return map[string]Func{
		"strip_tags":        stringOp(stripTags),
		"html_decode":       stringOp(func(s string, _ Options) string { return html.UnescapeString(s) }),
		"trim":              stringOp(func(s string, _ Options) string { return strings.TrimSpace(s) }),
		"strip_newlines":    stringOp(stripNewlines),
		"truncate":          stringOp(truncate),
		"uppercase":         stringOp(func(s string, _ Options) string { return strings.ToUpper(s) }),
		"lowercase":         stringOp(func(s string, _ Options) string { return strings.ToLower(s) }),
		"ucfirst":           stringOp(ucfirst),
		"ucwords":           stringOp(ucwords),
		"replace":           stringOp(replace),
		"regex_replace":     stringOp(regexReplace),
		"prefix":            stringOp(func(s string, o Options) string { return o.String("value", "") + s }),
		"suffix":            stringOp(func(s string, o Options) string { return s + o.String("value", "") }),
		"url_encode":        stringOp(func(s string, _ Options) string { return url.QueryEscape(s) }),
		"remove_diacritics": stringOp(removeDiacritics),
		"gtin":              stringOp(gtin),
		"default":           defaultValue,
		"format_price":      formatPrice,
		"number_format":     numberFormat,
		"round":             round,
		"format_date":       formatDate,
		"map_values":        mapValues,
		"conditional":       conditional,
		"combine_fields":    combineFields,
	}
}

// stringOp lifts a string function; nil values pass through untouched
func stringOp(fn func(string, Options) string) Func {
	return func(value any, opts Options, _ Row) any {
		if value == nil {
			return nil
		}
		return fn(types.ToString(value), opts)
	}
}

var (
	tagPattern        = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	placeholder       = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)
)

func stripTags(s string, _ Options) string {
	s = tagPattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

func stripNewlines(s string, _ Options) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// truncate cuts to at most length runes including the suffix
func truncate(s string, opts Options) string {
	length := opts.Int("length", 0)
	if length <= 0 || utf8.RuneCountInString(s) <= length {
		return s
	}
	suffix := opts.String("suffix", "")
	keep := length - utf8.RuneCountInString(suffix)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(s)
	return strings.TrimRightFunc(string(runes[:keep]), unicode.IsSpace) + suffix
}

func ucfirst(s string, _ Options) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func ucwords(s string, _ Options) string {
	prevSpace := true
	return strings.Map(func(r rune) rune {
		if prevSpace && !unicode.IsSpace(r) {
			prevSpace = false
			return unicode.ToUpper(r)
		}
		prevSpace = unicode.IsSpace(r)
		return r
	}, s)
}

func replace(s string, opts Options) string {
	search := opts.String("search", "")
	if search == "" {
		return s
	}
	return strings.ReplaceAll(s, search, opts.String("replace", ""))
}

var (
	regexMu    sync.RWMutex
	regexCache = make(map[string]*regexp.Regexp)
)

func regexReplace(s string, opts Options) string {
	pattern := opts.String("pattern", "")
	if pattern == "" {
		return s
	}

	regexMu.RLock()
	re, ok := regexCache[pattern]
	regexMu.RUnlock()
	if !ok {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return s
		}
		regexMu.Lock()
		regexCache[pattern] = re
		regexMu.Unlock()
	}
	return re.ReplaceAllString(s, opts.String("replacement", ""))
}

func defaultValue(value any, opts Options, _ Row) any {
	if types.IsEmpty(value) {
		return opts.String("value", "")
	}
	return value
}

func formatPrice(value any, opts Options, row Row) any {
	amount, ok := types.ToFloat(value)
	if !ok {
		return value
	}
	return FormatPrice(amount, priceFormatFrom(row, opts))
}

func numberFormat(value any, opts Options, _ Row) any {
	amount, ok := types.ToFloat(value)
	if !ok {
		return value
	}
	return FormatNumber(amount, opts.Int("decimals", 2), opts.String("decimal_point", "."), opts.String("thousands_sep", ""))
}

func round(value any, opts Options, _ Row) any {
	amount, ok := types.ToFloat(value)
	if !ok {
		return value
	}
	return Round(amount, opts.Int("decimals", 0))
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02.01.2006",
}

// dateTokens translates single-letter date tokens (Y-m-d H:i:s) into Go layout fragments
var dateTokens = map[rune]string{
	'Y': "2006", 'y': "06", 'm': "01", 'n': "1", 'd': "02", 'j': "2",
	'H': "15", 'G': "15", 'i': "04", 's': "05", 'D': "Mon", 'l': "Monday",
	'M': "Jan", 'F': "January", 'T': "MST", 'P': "-07:00", 'O': "-0700",
}

// DateLayout converts a token format into a Go layout. Formats that already
// contain the Go reference year are returned unchanged.
func DateLayout(format string) string {
	if strings.Contains(format, "2006") {
		return format
	}
	switch format {
	case "c", "":
		return time.RFC3339
	case "r":
		return time.RFC1123Z
	}
	var b strings.Builder
	escaped := false
	for _, r := range format {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if layout, ok := dateTokens[r]; ok {
			b.WriteString(layout)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatDate(value any, opts Options, _ Row) any {
	var t time.Time
	switch v := value.(type) {
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return value
		}
		t = *v
	default:
		s := strings.TrimSpace(types.ToString(value))
		if s == "" {
			return value
		}
		parsed := false
		for _, layout := range dateLayouts {
			if p, err := time.Parse(layout, s); err == nil {
				t, parsed = p, true
				break
			}
		}
		if !parsed {
			return value
		}
	}
	return t.Format(DateLayout(opts.String("format", "Y-m-d")))
}

// mapValues replaces a value using the option map. Every option other than
// "default" and "map" is a mapping entry; "map" holds entries as "a>b;c>d".
func mapValues(value any, opts Options, _ Row) any {
	key := types.ToString(value)
	if m, ok := opts["map"]; ok {
		for _, entry := range strings.Split(m, ";") {
			from, to, found := strings.Cut(entry, ">")
			if found && strings.TrimSpace(from) == key {
				return strings.TrimSpace(to)
			}
		}
	}
	for from, to := range opts {
		if from == "default" || from == "map" {
			continue
		}
		if from == key {
			return to
		}
	}
	if def, ok := opts["default"]; ok {
		return def
	}
	return value
}

// conditional returns "then" when the value satisfies (operator, compare),
// "else" otherwise; a missing branch keeps the value
func conditional(value any, opts Options, row Row) any {
	cond := types.Condition{
		Attribute: "value",
		Operator:  opts.String("operator", conditions.OpEq),
		Value:     opts.String("compare", opts.String("value", "")),
	}
	lookup := func(string) (any, bool) { return value, value != nil }

	branch := "else"
	if conditions.Evaluate(cond, lookup) {
		branch = "then"
	}
	out, ok := opts[branch]
	if !ok {
		return value
	}
	return expand(out, value, row)
}

// combineFields renders the "template" option with {{attribute}} placeholders
func combineFields(value any, opts Options, row Row) any {
	tpl, ok := opts["template"]
	if !ok {
		return value
	}
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(expand(tpl, value, row), " "))
}

// Expand replaces {{attribute}} placeholders from the row; {{value}} is the current value
func Expand(tpl string, row Row) string {
	return expand(tpl, nil, row)
}

func expand(tpl string, value any, row Row) string {
	if !strings.Contains(tpl, "{{") {
		return tpl
	}
	return placeholder.ReplaceAllStringFunc(tpl, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if name == "value" && value != nil {
			return types.ToString(value)
		}
		if v, ok := row(name); ok {
			return types.ToString(v)
		}
		return ""
	})
}
