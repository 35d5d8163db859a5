// Package similarity scores how alike two strings are, in [0, 1].
package similarity

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Trigram follows pg_trgm's similarity(): lowercase alphanumeric words
// padded with two leading blanks and one trailing blank, scored as
// shared / (|A| + |B| - shared).
func Trigram(a, b string) float64 {
	ga, gb := Trigrams(a), Trigrams(b)
	if len(ga) == 0 || len(gb) == 0 {
		if len(ga) == len(gb) && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
			return 1
		}
		return 0
	}

	shared := 0
	for g := range ga {
		if _, ok := gb[g]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(ga)+len(gb)-shared)
}

func Trigrams(s string) map[string]struct{} {
	grams := map[string]struct{}{}
	notWord := func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }
	for _, word := range strings.FieldsFunc(strings.ToLower(s), notWord) {
		padded := []rune("  " + word + " ")
		for i := 3; i <= len(padded); i++ {
			grams[string(padded[i-3:i])] = struct{}{}
		}
	}
	return grams
}

// EditRatio is 1 - levenshtein distance / longer rune length.
func EditRatio(a, b string) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// Best is the higher of Trigram and EditRatio. Trigrams punish short
// strings with one typo, edit distance punishes reordered words.
func Best(a, b string) float64 {
	return max(Trigram(a, b), EditRatio(a, b))
}
