package transformers

import (
	"regexp"
	"sort"
	"strings"

	"github.com/kosarica/feed-service/internal/types"
)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ParseChain parses the compact chain format
//
//	code:opt=val,opt=val|code2:...
//
// Entries with an empty or malformed code are skipped, as are option
// pairs without a key.
func ParseChain(chain string) []types.TransformerSpec {
	var specs []types.TransformerSpec
	for _, entry := range strings.Split(chain, "|") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		code, rawOpts, _ := strings.Cut(entry, ":")
		code = strings.TrimSpace(code)
		if !codePattern.MatchString(code) {
			continue
		}

		opts := make(map[string]string)
		if rawOpts != "" {
			for _, pair := range strings.Split(rawOpts, ",") {
				key, value, found := strings.Cut(pair, "=")
				key = strings.TrimSpace(key)
				if !found || key == "" {
					continue
				}
				opts[key] = value
			}
		}
		specs = append(specs, types.TransformerSpec{Code: code, Options: opts})
	}
	return specs
}

// BuildChain renders specs in the compact chain format with sorted option keys
func BuildChain(specs []types.TransformerSpec) string {
	entries := make([]string, 0, len(specs))
	for _, spec := range specs {
		if len(spec.Options) == 0 {
			entries = append(entries, spec.Code)
			continue
		}
		keys := make([]string, 0, len(spec.Options))
		for k := range spec.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + spec.Options[k]
		}
		entries = append(entries, spec.Code+":"+strings.Join(pairs, ","))
	}
	return strings.Join(entries, "|")
}

// Steps returns the explicit transformer list, or the parsed chain when the list is empty
func Steps(list []types.TransformerSpec, chain string) []types.TransformerSpec {
	if len(list) > 0 {
		return list
	}
	if strings.TrimSpace(chain) == "" {
		return nil
	}
	return ParseChain(chain)
}
