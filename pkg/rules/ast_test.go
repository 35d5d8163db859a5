package rules

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	node, err := Parse(json.RawMessage(`{"op":"or","args":[
		{"op":"call","name":"addressHasIssue"},
		{"op":"in","args":[{"op":"field","path":"$channel"},{"op":"literal","value":["marketplace","pos"]}]}
	]}`))

	require.NoError(t, err)
	assert.Equal(t, OpOr, node.Op)
	require.Len(t, node.Args, 2)
	assert.NotNil(t, node.Args[1].Args[0].query)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		contains  string
	}{
		{name: "empty", condition: ``, contains: "required"},
		{name: "not json", condition: `{"op":`, contains: "not valid JSON"},
		{name: "unknown op", condition: `{"op":"xor","args":[]}`, contains: `unknown op "xor"`},
		{name: "and without args", condition: `{"op":"and"}`, contains: "at least 1"},
		{name: "not with two args", condition: `{"op":"not","args":[{"op":"literal","value":true},{"op":"literal","value":false}]}`, contains: "1 argument"},
		{name: "eq with one arg", condition: `{"op":"eq","args":[{"op":"literal","value":1}]}`, contains: "2 argument"},
		{name: "field without path", condition: `{"op":"field"}`, contains: "requires a path"},
		{name: "bad query", condition: `{"op":"field","path":"$foo[?"}`, contains: "invalid query"},
		{name: "unknown normalizer", condition: `{"op":"field","path":"email.normalized","normalize":["rot13"]}`, contains: `unknown normalizer "rot13"`},
		{name: "unknown helper", condition: `{"op":"call","name":"shellExec"}`, contains: `unknown helper "shellExec"`},
		{name: "exists on literal", condition: `{"op":"exists","args":[{"op":"literal","value":1}]}`, contains: "exists takes a field"},
		{name: "nested error", condition: `{"op":"and","args":[{"op":"literal","value":true},{"op":"bogus"}]}`, contains: `unknown op "bogus"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(json.RawMessage(tt.condition))
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestParse_TooDeep(t *testing.T) {
	condition := `{"op":"literal","value":true}`
	for i := 0; i < maxDepth+1; i++ {
		condition = `{"op":"not","args":[` + condition + `]}`
	}

	_, err := Parse(json.RawMessage(condition))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested deeper")
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse(`{"op":"nope"}`) })
}
