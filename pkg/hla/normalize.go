package hla

import "strings"

var locusPrefixes = []struct{ long, short string }{
	{"DRB1*", "DR"},
	{"DQB1*", "DQ"},
	{"DPB1*", "DP"},
}

// Normalize canonicalises an allele code: "hla-DRB1*04" becomes "DR04".
func Normalize(allele string) string {
	s := strings.ToUpper(strings.TrimSpace(allele))
	s = strings.TrimPrefix(s, "HLA-")
	for _, p := range locusPrefixes {
		if strings.HasPrefix(s, p.long) {
			s = p.short + strings.TrimPrefix(s, p.long)
			break
		}
	}
	s = strings.ReplaceAll(s, "*", "")
	return strings.TrimSpace(s)
}
