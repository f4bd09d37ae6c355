package service

import (
	"strings"
	"unicode"
)

// normalizeText lowercases s, drops everything but letters, digits and
// spaces, and collapses whitespace.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		out[w] = struct{}{}
	}
	return out
}

// wordOverlap is |a ∩ b| / max(|a|, |b|) over word sets.
func wordOverlap(a, b string) float64 {
	aw, bw := wordSet(a), wordSet(b)
	denom := len(aw)
	if len(bw) > denom {
		denom = len(bw)
	}
	if denom == 0 {
		return 0
	}
	shared := 0
	for w := range aw {
		if _, ok := bw[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(denom)
}
