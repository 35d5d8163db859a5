package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"city": "austin", "line1": "1 main st", "nested": map[string]any{"b": 2, "a": 1}}
	b := map[string]any{"nested": map[string]any{"a": 1, "b": 2}, "line1": "1 main st", "city": "austin"}

	assert.Equal(t, Generate(a), Generate(b))
	assert.Len(t, Generate(a), 64)
}

func TestGenerate_DetectsChanges(t *testing.T) {
	a := map[string]any{"line1": "1 main st"}
	b := map[string]any{"line1": "2 main st"}

	assert.NotEqual(t, Generate(a), Generate(b))
}

func TestFromStrings(t *testing.T) {
	fields := map[string]string{"postal_code": "78701", "country": "US"}

	assert.Equal(t, Generate(map[string]any{"country": "US", "postal_code": "78701"}), FromStrings(fields))
}

func TestGenerate_Arrays(t *testing.T) {
	a := map[string]any{"tags": []any{"a", "b"}}
	b := map[string]any{"tags": []any{"b", "a"}}

	assert.NotEqual(t, Generate(a), Generate(b), "array order is significant")
}
