package transformers

import (
	"math"
	"strconv"
	"strings"

	"github.com/kosarica/feed-service/internal/types"
)

// FeedSettingsKey is the raw-data key holding the feed's price format
const FeedSettingsKey = "_feed"

// FormatPrice renders amount with the feed's price settings, e.g. "1,234.50 USD"
func FormatPrice(amount float64, pf types.PriceFormat) string {
	num := FormatNumber(amount, pf.DecimalsOrDefault(), pf.PointOrDefault(), pf.ThousandsSep)
	if pf.Currency == "" {
		return num
	}
	if pf.SuffixOrDefault() {
		return num + " " + pf.Currency
	}
	return pf.Currency + " " + num
}

// FormatNumber rounds half away from zero and groups thousands
func FormatNumber(v float64, decimals int, point, thousandsSep string) string {
	rounded := Round(v, decimals)
	s := strconv.FormatFloat(math.Abs(rounded), 'f', decimals, 64)

	intPart, frac, _ := strings.Cut(s, ".")
	if thousandsSep != "" && len(intPart) > 3 {
		var b strings.Builder
		lead := len(intPart) % 3
		if lead > 0 {
			b.WriteString(intPart[:lead])
		}
		for i := lead; i < len(intPart); i += 3 {
			if b.Len() > 0 {
				b.WriteString(thousandsSep)
			}
			b.WriteString(intPart[i : i+3])
		}
		intPart = b.String()
	}

	out := intPart
	if decimals > 0 {
		out += point + frac
	}
	if rounded < 0 {
		out = "-" + out
	}
	return out
}

// Round rounds half away from zero. The shifted value is first cut to nine
// decimals so binary artefacts like 1.005*100 = 100.49999... round up.
func Round(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	p := math.Pow(10, float64(decimals))
	shifted, err := strconv.ParseFloat(strconv.FormatFloat(v*p, 'f', 9, 64), 64)
	if err != nil {
		shifted = v * p
	}
	return math.Round(shifted) / p
}

// PriceFormatMap converts a price format into the raw-data sub-map
func PriceFormatMap(pf types.PriceFormat) map[string]any {
	return map[string]any{
		"decimals":        pf.DecimalsOrDefault(),
		"decimal_point":   pf.PointOrDefault(),
		"thousands_sep":   pf.ThousandsSep,
		"currency":        pf.Currency,
		"currency_suffix": pf.SuffixOrDefault(),
	}
}

// priceFormatFrom reads the feed settings from the row and applies option overrides
func priceFormatFrom(row Row, opts Options) types.PriceFormat {
	var pf types.PriceFormat
	if raw, ok := row(FeedSettingsKey); ok {
		if m, ok := raw.(map[string]any); ok {
			if d, ok := types.ToFloat(m["decimals"]); ok {
				pf.Decimals = types.IntPtr(int(d))
			}
			pf.DecimalPoint = types.ToString(m["decimal_point"])
			pf.ThousandsSep = types.ToString(m["thousands_sep"])
			pf.Currency = types.ToString(m["currency"])
			if b, ok := m["currency_suffix"].(bool); ok {
				pf.CurrencySuffix = types.BoolPtr(b)
			}
		}
	}

	if _, ok := opts["decimals"]; ok {
		pf.Decimals = types.IntPtr(opts.Int("decimals", 2))
	}
	if v, ok := opts["decimal_point"]; ok {
		pf.DecimalPoint = v
	}
	if v, ok := opts["thousands_sep"]; ok {
		pf.ThousandsSep = v
	}
	if v, ok := opts["currency"]; ok {
		pf.Currency = v
	}
	if _, ok := opts["currency_suffix"]; ok {
		pf.CurrencySuffix = types.BoolPtr(opts.Bool("currency_suffix", true))
	}
	return pf
}
