package pipeline

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxFindingTextLen = 4000

// sanitizeText applies NFKC and strips invisible characters from analysis
// output before it is stored. Long text is truncated.
func sanitizeText(s string) string {
	t := transform.Chain(
		norm.NFKC,
		runes.Remove(runes.Predicate(func(r rune) bool {
			if r == '\n' || r == '\t' {
				return false
			}
			if unicode.IsControl(r) {
				return true
			}
			switch r {
			case '\u200B', '\u200C', '\u200D', '\uFEFF':
				return true
			}
			return r >= '\u202A' && r <= '\u202E'
		})),
	)

	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.TrimSpace(out)
	if len(out) > maxFindingTextLen {
		cut := maxFindingTextLen
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
	}
	return out
}
