package rules

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
)

// Built-in rule ids.
const (
	BuiltInBlockCriticalRisk         = "block_critical_risk"
	BuiltInHoldPOBoxCOD              = "hold_po_box_cod"
	BuiltInHoldInvalidPhoneHighValue = "hold_invalid_phone_high_value"
)

//go:embed builtin_rules.yaml
var builtinRulesYAML []byte

type builtInDef struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Action      models.Action `yaml:"action"`
	Priority    int           `yaml:"priority"`
	Condition   any           `yaml:"condition"`
}

var builtIns = sync.OnceValue(func() []CompiledRule {
	compiled, err := LoadBuiltIns(builtinRulesYAML)
	if err != nil {
		panic(err)
	}
	return compiled
})

// LoadBuiltIns decodes a YAML list of rule definitions. Each condition is
// re-encoded as JSON and validated the same way a stored rule is.
func LoadBuiltIns(data []byte) ([]CompiledRule, error) {
	var defs []builtInDef
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("decode built-in rules: %w", err)
	}

	compiled := make([]CompiledRule, 0, len(defs))
	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("built-in rule %q has no id", def.Name)
		}
		if _, dup := seen[def.ID]; dup {
			return nil, fmt.Errorf("built-in rule %s defined twice", def.ID)
		}
		seen[def.ID] = struct{}{}

		switch def.Action {
		case models.ActionApprove, models.ActionHold, models.ActionBlock:
		default:
			return nil, fmt.Errorf("built-in rule %s: unknown action %q", def.ID, def.Action)
		}

		raw, err := json.Marshal(def.Condition)
		if err != nil {
			return nil, fmt.Errorf("built-in rule %s: %w", def.ID, err)
		}
		node, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("built-in rule %s: %w", def.ID, err)
		}

		compiled = append(compiled, CompiledRule{
			Rule: models.Rule{
				ID:          def.ID,
				Name:        def.Name,
				Description: def.Description,
				Condition:   raw,
				Action:      def.Action,
				Priority:    def.Priority,
				Enabled:     true,
				BuiltIn:     true,
			},
			Condition: node,
		})
	}
	return compiled, nil
}

// BuiltInRules returns the embedded rules with their parsed conditions.
// Callers get their own slice.
func BuiltInRules() []CompiledRule {
	return append([]CompiledRule(nil), builtIns()...)
}
