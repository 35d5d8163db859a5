// Package normalizers canonicalizes customer-submitted values so they can be
// compared, hashed and persisted consistently.
package normalizers

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Normalizer maps a raw value to its canonical form.
type Normalizer func(string) string

var (
	mu       sync.RWMutex
	registry = map[string]Normalizer{
		"lowercase":           strings.ToLower,
		"uppercase":           strings.ToUpper,
		"trim":                strings.TrimSpace,
		"collapse_whitespace": CollapseWhitespace,
		"digits_only":         DigitsOnly,
		"alphanumeric":        Alphanumeric,
		"nemail":              NormalizeEmail,
		"nphone":              NormalizePhone,
		"nname":               NormalizeName,
		"nstreet":             NormalizeStreet,
		"npostal":             NormalizePostalCode,
	}
)

var spaceRe = regexp.MustCompile(`\s+`)

// Register adds or replaces a named normalizer.
func Register(name string, fn Normalizer) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = fn
}

func Get(name string) (Normalizer, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Names lists the registered normalizers in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply runs the named normalizer. Unknown names leave the value unchanged.
func Apply(value, name string) string {
	if fn, ok := Get(name); ok {
		return fn(value)
	}
	return value
}

// ApplyChain runs the named normalizers left to right.
func ApplyChain(value string, names ...string) string {
	for _, name := range names {
		value = Apply(value, name)
	}
	return value
}

func CollapseWhitespace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmailPtr is NormalizeEmail with nil passthrough.
func NormalizeEmailPtr(s *string) *string {
	if s == nil {
		return nil
	}
	n := NormalizeEmail(*s)
	return &n
}

// NormalizePhone keeps the digits and a '+' in leading position.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	plus := strings.HasPrefix(s, "+")
	digits := DigitsOnly(s)
	if plus {
		return "+" + digits
	}
	return digits
}

var nameSuffixes = []string{" jr.", " jr", " sr.", " sr", " iii", " ii", " iv"}

// NormalizeName lowercases a person's name, drops one generational suffix,
// turns hyphens into spaces and strips other punctuation.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, suffix := range nameSuffixes {
		if trimmed, ok := strings.CutSuffix(s, suffix); ok {
			s = trimmed
			break
		}
	}

	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case unicode.IsSpace(r), r == '-':
			return ' '
		}
		return -1
	}, s)
	return CollapseWhitespace(s)
}

// BuildFullName joins the non-empty trimmed parts with a single space.
func BuildFullName(first, last string) string {
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	if first == "" || last == "" {
		return first + last
	}
	return first + " " + last
}

func DigitsOnly(s string) string {
	return keep(s, unicode.IsDigit)
}

func Alphanumeric(s string) string {
	return keep(s, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) })
}

func keep(s string, allowed func(rune) bool) string {
	return strings.Map(func(r rune) rune {
		if allowed(r) {
			return r
		}
		return -1
	}, s)
}
