package transformers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonDigitPattern = regexp.MustCompile(`[^0-9]`)
	zerosPattern    = regexp.MustCompile(`^0+$`)
	// in-store variable weight codes, EAN-13 prefixes 20-29
	variableWeightPattern = regexp.MustCompile(`^2[0-9]`)
)

// gtin normalizes a barcode to a GTIN-13. UPC-A gains a leading zero;
// placeholder, variable weight and bad check digit codes become empty.
// Codes of other lengths pass through as digits unless pad=true, in which
// case GTIN-8 and GTIN-14 are kept only when their check digit is valid.
func gtin(s string, opts Options) string {
	bc := nonDigitPattern.ReplaceAllString(s, "")
	if bc == "" || zerosPattern.MatchString(bc) {
		return ""
	}
	if len(bc) == 12 {
		bc = "0" + bc
	}

	switch len(bc) {
	case 13:
		if variableWeightPattern.MatchString(bc) && !opts.Bool("keep_variable_weight", false) {
			return ""
		}
		if !validCheckDigit(bc) {
			return ""
		}
		return bc
	case 8, 14:
		if opts.Bool("strict", false) && !validCheckDigit(bc) {
			return ""
		}
		return bc
	default:
		if opts.Bool("strict", false) {
			return ""
		}
		return bc
	}
}

// validCheckDigit applies the GS1 mod-10 check for any GTIN length
func validCheckDigit(code string) bool {
	if len(code) < 2 {
		return false
	}
	sum := 0
	body := code[:len(code)-1]
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		// weights alternate 3,1 from the rightmost body digit
		if (len(body)-1-i)%2 == 0 {
			d *= 3
		}
		sum += d
	}
	check := (10 - sum%10) % 10
	return int(code[len(code)-1]-'0') == check
}

var diacriticsReplacer = strings.NewReplacer(
	"đ", "dj", "Đ", "Dj",
	"ß", "ss",
	"æ", "ae", "Æ", "AE",
	"ø", "o", "Ø", "O",
	"ł", "l", "Ł", "L",
)

// removeDiacritics folds letters to ASCII where a decomposition exists
func removeDiacritics(s string, _ Options) string {
	s = diacriticsReplacer.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
