package export

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxStemLength = 80
	fallbackStem  = "instance"
)

// FilenameSafe folds value into a stable lowercase ASCII file stem:
// diacritics stripped, whitespace and other characters replaced by '_',
// separator runs collapsed and trimmed.
func FilenameSafe(value string) string {
	folded, _, errFold := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), strings.TrimSpace(value))
	if errFold != nil {
		folded = value
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	var last rune
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-':
		default:
			r = '_'
		}
		if (r == '_' || r == '-') && r == last {
			continue
		}
		b.WriteRune(r)
		last = r
	}

	stem := strings.Trim(b.String(), "_-")
	if len(stem) > maxStemLength {
		stem = strings.TrimRight(stem[:maxStemLength], "_-")
	}
	if stem == "" {
		return fallbackStem
	}
	return stem
}
