package rules

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/normalizers"
)

// Eval evaluates a node against the context. ctx is checked at every node
// so a runaway predicate stops once its deadline passes.
func Eval(ctx context.Context, n *Node, data Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch n.Op {
	case OpLiteral:
		return n.Value, nil

	case OpField:
		return resolveField(n, data)

	case OpCall:
		switch n.Name {
		case HelperAddressHasIssue:
			return addressHasIssue(data), nil
		case HelperRiskLevel:
			return RiskLevel(data.Score()), nil
		}
		return nil, fmt.Errorf("unknown helper %q", n.Name)

	case OpAnd:
		for i := range n.Args {
			ok, err := Truthy(ctx, &n.Args[i], data)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case OpOr:
		for i := range n.Args {
			ok, err := Truthy(ctx, &n.Args[i], data)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case OpNot:
		ok, err := Truthy(ctx, &n.Args[0], data)
		return !ok, err

	case OpExists:
		v, err := resolveField(&n.Args[0], data)
		return v != nil, err
	}

	left, right, err := evalPair(ctx, n, data)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case OpEq:
		return equal(left, right), nil
	case OpNe:
		return !equal(left, right), nil
	case OpGt, OpGte, OpLt, OpLte:
		return compare(n.Op, left, right), nil
	case OpIn:
		list, ok := right.([]any)
		if !ok {
			return false, nil
		}
		for _, item := range list {
			if equal(left, item) {
				return true, nil
			}
		}
		return false, nil
	case OpContains:
		return contains(left, right), nil
	}

	return nil, fmt.Errorf("unknown op %q", n.Op)
}

// Truthy evaluates a node and coerces the result to a bool.
func Truthy(ctx context.Context, n *Node, data Context) (bool, error) {
	v, err := Eval(ctx, n, data)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func evalPair(ctx context.Context, n *Node, data Context) (any, any, error) {
	left, err := Eval(ctx, &n.Args[0], data)
	if err != nil {
		return nil, nil, err
	}
	right, err := Eval(ctx, &n.Args[1], data)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func resolveField(n *Node, data Context) (any, error) {
	v, err := lookupField(n, data)
	if err != nil {
		return nil, err
	}
	if str, ok := v.(string); ok && len(n.Normalize) > 0 {
		return normalizers.ApplyChain(str, n.Normalize...), nil
	}
	return v, nil
}

func lookupField(n *Node, data Context) (any, error) {
	if n.query != nil {
		metadata, _ := data["metadata"].(map[string]any)
		if metadata == nil {
			return nil, nil
		}
		v, err := n.query.Search(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate query %q: %w", n.Path, err)
		}
		return v, nil
	}
	v, _ := data.Lookup(n.Path)
	return v, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	default:
		return 0, false
	}
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// compare orders numbers numerically and strings lexically. Mixed or
// unordered types never satisfy the comparison.
func compare(op Op, a, b any) bool {
	var c int
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	switch {
	case okA && okB:
		switch {
		case fa < fb:
			c = -1
		case fa > fb:
			c = 1
		}
	default:
		sa, okA := a.(string)
		sb, okB := b.(string)
		if !okA || !okB {
			return false
		}
		c = strings.Compare(sa, sb)
	}

	switch op {
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	}
	return false
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(h, s)
	case []any:
		for _, item := range h {
			if equal(item, needle) {
				return true
			}
		}
	}
	return false
}
