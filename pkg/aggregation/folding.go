package aggregation

import (
	"strings"

	"github.com/RitoIssei/bot-mng-ns/pkg/normalizer"
)

// aliasSuffix marks the second ledger spelling of a code family.
const aliasSuffix = "11"

// Alias returns the other spelling of code's family, or "" when code has none.
func Alias(code string) string {
	if strings.HasSuffix(code, aliasSuffix) && len(code) > len(aliasSuffix) {
		return strings.TrimSuffix(code, aliasSuffix)
	}
	if code != "" && !normalizer.HasTrailingDigit(code) {
		return code + aliasSuffix
	}
	return ""
}

// ExpandAliases returns codes plus the alias of each, without duplicates, keeping first-seen order.
func ExpandAliases(codes []string) []string {
	seen := make(map[string]struct{}, len(codes)*2)
	expanded := make([]string, 0, len(codes)*2)
	add := func(code string) {
		if code == "" {
			return
		}
		if _, ok := seen[code]; ok {
			return
		}
		seen[code] = struct{}{}
		expanded = append(expanded, code)
	}
	for _, code := range codes {
		add(code)
		add(Alias(code))
	}
	return expanded
}

// FoldAliases is the human-facing total of code: its own sum plus its alias's sum.
func FoldAliases(code string, sums map[string]int64) int64 {
	total := sums[code]
	if alias := Alias(code); alias != "" {
		total += sums[alias]
	}
	return total
}

// PrefixVariants lists the codes a prefix search covers.
func PrefixVariants(prefix string) []string {
	return []string{prefix, prefix + "9", prefix + "10", prefix + "11"}
}
