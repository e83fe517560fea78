package matcher

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var tokenSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// normalize folds compatibility forms, drops control characters, lowercases
// and collapses whitespace.
func normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokenize splits on anything that is not a letter or digit.
func tokenize(s string) []string {
	var out []string
	for _, tok := range tokenSplit.Split(strings.ToLower(s), -1) {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
