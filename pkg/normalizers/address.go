package normalizers

import (
	"strings"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/fingerprint"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
)

// streetAbbreviations maps full street words to their postal abbreviation.
// Matching is per word so "southampton" is never rewritten.
var streetAbbreviations = map[string]string{
	"street":    "st",
	"avenue":    "ave",
	"boulevard": "blvd",
	"drive":     "dr",
	"road":      "rd",
	"lane":      "ln",
	"court":     "ct",
	"circle":    "cir",
	"place":     "pl",
	"parkway":   "pkwy",
	"highway":   "hwy",
	"terrace":   "ter",
	"square":    "sq",
	"apartment": "apt",
	"suite":     "ste",
	"building":  "bldg",
	"floor":     "fl",
	"north":     "n",
	"south":     "s",
	"east":      "e",
	"west":      "w",
}

// NormalizeStreet lowercases a street line, strips punctuation other than
// '#' and '/', and abbreviates street words.
func NormalizeStreet(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', ';', ':':
			return ' '
		}
		return r
	}, s)

	words := strings.Fields(s)
	for i, w := range words {
		if abbr, ok := streetAbbreviations[w]; ok {
			words[i] = abbr
		}
	}
	return strings.Join(words, " ")
}

// NormalizePostalCode uppercases and removes spaces and dashes.
func NormalizePostalCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "-", "").Replace(s)
}

// NormalizeAddress returns the canonical form used for hashing, dedupe and
// persistence. It is pure: equal logical addresses normalize identically.
func NormalizeAddress(addr models.Address) models.Address {
	return models.Address{
		Line1:      NormalizeStreet(addr.Line1),
		Line2:      NormalizeStreet(addr.Line2),
		City:       strings.ToLower(CollapseWhitespace(addr.City)),
		State:      strings.ToUpper(CollapseWhitespace(addr.State)),
		PostalCode: NormalizePostalCode(addr.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(addr.Country)),
	}
}

// AddressHash fingerprints a normalized address.
func AddressHash(normalized models.Address) string {
	return fingerprint.FromStrings(map[string]string{
		"line1":       normalized.Line1,
		"line2":       normalized.Line2,
		"city":        normalized.City,
		"state":       normalized.State,
		"postal_code": normalized.PostalCode,
		"country":     normalized.Country,
	})
}
