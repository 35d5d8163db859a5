// Package rules evaluates built-in and project rules against an order's
// evaluation context.
package rules

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/jmespath/go-jmespath"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/normalizers"
)

// Op is the tag of an expression node.
type Op string

const (
	OpAnd      Op = "and"
	OpOr       Op = "or"
	OpNot      Op = "not"
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpContains Op = "contains"
	OpExists   Op = "exists"
	OpField    Op = "field"
	OpLiteral  Op = "literal"
	OpCall     Op = "call"
)

const (
	HelperAddressHasIssue = "addressHasIssue"
	HelperRiskLevel       = "riskLevel"
)

const maxDepth = 32

// Node is one expression in a rule condition. Conditions are stored as
// JSON, e.g.
//
//	{"op":"and","args":[
//	  {"op":"eq","args":[{"op":"field","path":"address.po_box"},{"op":"literal","value":true}]},
//	  {"op":"eq","args":[{"op":"field","path":"transaction.payment_method"},{"op":"literal","value":"cod"}]}
//	]}
//
// A field path starting with "$" is a JMESPath query over the order metadata.
// A field may name registered normalizers ("normalize":["trim","lowercase"])
// applied in order to a string value before comparison.
type Node struct {
	Op        Op       `json:"op"`
	Args      []Node   `json:"args,omitempty"`
	Path      string   `json:"path,omitempty"`
	Name      string   `json:"name,omitempty"`
	Value     any      `json:"value,omitempty"`
	Normalize []string `json:"normalize,omitempty"`

	query *jmespath.JMESPath
}

var arity = map[Op][2]int{
	OpAnd:      {1, -1},
	OpOr:       {1, -1},
	OpNot:      {1, 1},
	OpEq:       {2, 2},
	OpNe:       {2, 2},
	OpGt:       {2, 2},
	OpGte:      {2, 2},
	OpLt:       {2, 2},
	OpLte:      {2, 2},
	OpIn:       {2, 2},
	OpContains: {2, 2},
	OpExists:   {1, 1},
	OpField:    {0, 0},
	OpLiteral:  {0, 0},
	OpCall:     {0, 0},
}

var helpers = map[string]struct{}{
	HelperAddressHasIssue: {},
	HelperRiskLevel:       {},
}

// Parse decodes and validates a stored condition. Errors are 400s so rule
// create and update can return them as is.
func Parse(raw json.RawMessage) (*Node, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "rule condition is required")
	}

	var node Node
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "rule condition is not valid JSON: %s", err.Error())
	}
	if err := node.validate(0); err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid rule condition: %s", err.Error())
	}
	return &node, nil
}

// MustParse is Parse for conditions defined in code.
func MustParse(raw string) *Node {
	node, err := Parse(json.RawMessage(raw))
	if err != nil {
		panic(err)
	}
	return node
}

func (n *Node) validate(depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("condition nested deeper than %d", maxDepth)
	}

	bounds, ok := arity[n.Op]
	if !ok {
		return fmt.Errorf("unknown op %q", n.Op)
	}
	if len(n.Args) < bounds[0] || (bounds[1] >= 0 && len(n.Args) > bounds[1]) {
		return fmt.Errorf("op %q takes %s, got %d", n.Op, describeArity(bounds), len(n.Args))
	}

	switch n.Op {
	case OpField:
		if n.Path == "" {
			return fmt.Errorf("field requires a path")
		}
		if expr, isQuery := strings.CutPrefix(n.Path, "$"); isQuery {
			compiled, err := jmespath.Compile(expr)
			if err != nil {
				return fmt.Errorf("invalid query %q: %w", expr, err)
			}
			n.query = compiled
		}
		for _, name := range n.Normalize {
			if _, ok := normalizers.Get(name); !ok {
				return fmt.Errorf("unknown normalizer %q", name)
			}
		}
	case OpCall:
		if _, ok := helpers[n.Name]; !ok {
			return fmt.Errorf("unknown helper %q", n.Name)
		}
	case OpExists:
		if n.Args[0].Op != OpField {
			return fmt.Errorf("exists takes a field")
		}
	}

	for i := range n.Args {
		if err := n.Args[i].validate(depth + 1); err != nil {
			return err
		}
	}
	return nil
}

func describeArity(bounds [2]int) string {
	switch {
	case bounds[1] < 0:
		return fmt.Sprintf("at least %d argument(s)", bounds[0])
	case bounds[0] == bounds[1]:
		return fmt.Sprintf("%d argument(s)", bounds[0])
	default:
		return fmt.Sprintf("%d to %d arguments", bounds[0], bounds[1])
	}
}
