// Package fingerprint produces stable content hashes for records whose
// identity is their content, such as normalized addresses.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Generate returns the SHA-256 of the canonical JSON form of data.
// Keys are sorted at every level so map iteration order never leaks in.
func Generate(data map[string]any) string {
	var b strings.Builder
	writeCanonical(&b, data)
	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

// FromStrings fingerprints an ordered set of named string fields.
func FromStrings(fields map[string]string) string {
	data := make(map[string]any, len(fields))
	for k, v := range fields {
		data[k] = v
	}
	return Generate(data)
}

func writeCanonical(b *strings.Builder, data any) {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			keyJSON, _ := json.Marshal(k)
			b.Write(keyJSON)
			b.WriteByte(':')
			writeCanonical(b, v[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		raw, _ := json.Marshal(v)
		b.Write(raw)
	}
}
