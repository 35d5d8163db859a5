// Package risk turns evaluation signals into a 0-100 score, tags, reason
// codes and a final action.
package risk

import (
	"github.com/shopspring/decimal"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
)

const (
	MinScore = 0
	MaxScore = 100
)

// Delta is one step's contribution. Deltas are never mutated after they
// are built.
type Delta struct {
	ScoreDelta  int
	Tags        []string
	ReasonCodes []string
	// Cap, when set, clamps the running score after ScoreDelta is added.
	Cap *int
}

// Cap returns a pointer for Delta.Cap.
func Cap(n int) *int {
	return &n
}

// Merge combines deltas into one. The lowest cap wins.
func Merge(deltas ...Delta) Delta {
	var merged Delta
	for _, d := range deltas {
		merged.ScoreDelta += d.ScoreDelta
		merged.Tags = append(merged.Tags, d.Tags...)
		merged.ReasonCodes = append(merged.ReasonCodes, d.ReasonCodes...)
		if d.Cap != nil && (merged.Cap == nil || *d.Cap < *merged.Cap) {
			merged.Cap = Cap(*d.Cap)
		}
	}
	return merged
}

// Score is the fold of a list of deltas.
type Score struct {
	// Raw is the plain sum of every ScoreDelta, ignoring caps.
	Raw         int
	Running     int
	Tags        []string
	ReasonCodes []string
}

// Fold reduces deltas in order.
func Fold(deltas ...Delta) Score {
	s := Score{Tags: []string{}, ReasonCodes: []string{}}
	for _, d := range deltas {
		s = s.Add(d)
	}
	return s
}

// Add returns s with d applied.
func (s Score) Add(d Delta) Score {
	next := Score{
		Raw:         s.Raw + d.ScoreDelta,
		Running:     s.Running + d.ScoreDelta,
		Tags:        append(append([]string{}, s.Tags...), d.Tags...),
		ReasonCodes: append(append([]string{}, s.ReasonCodes...), d.ReasonCodes...),
	}
	if d.Cap != nil && next.Running > *d.Cap {
		next.Running = *d.Cap
	}
	return next
}

// Clamped is the running score bounded to [0, 100].
func (s Score) Clamped() int {
	return Clamp(s.Running)
}

func Clamp(score int) int {
	return max(MinScore, min(MaxScore, score))
}

// Thresholds holds the order-level decision configuration.
type Thresholds struct {
	Block                     int
	Hold                      int
	HighValue                 decimal.Decimal
	VeryHighValue             decimal.Decimal
	FirstOccurrenceCapTrigger int
	FirstOccurrenceCap        int
}

// DefaultThresholds returns the default order thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		Block:                     70,
		Hold:                      40,
		HighValue:                 decimal.NewFromInt(1000),
		VeryHighValue:             decimal.NewFromInt(100000),
		FirstOccurrenceCapTrigger: 100,
		FirstOccurrenceCap:        60,
	}
}

// ActionForScore applies the score thresholds.
func (t Thresholds) ActionForScore(score int) models.Action {
	switch {
	case score >= t.Block:
		return models.ActionBlock
	case score >= t.Hold:
		return models.ActionHold
	default:
		return models.ActionApprove
	}
}

// OrderAction maps a rule engine action onto the actions an order can have.
func OrderAction(a models.Action) models.Action {
	switch a {
	case models.ActionBlock:
		return models.ActionBlock
	case models.ActionApprove:
		return models.ActionApprove
	default:
		return models.ActionHold
	}
}

// DecisionInput is what the final steps need besides the folded score.
type DecisionInput struct {
	// RuleAction is set when a rule triggered.
	RuleAction      *models.Action
	Amount          decimal.Decimal
	FirstOccurrence bool
}

// Outcome is the final, response-ready result.
type Outcome struct {
	Score       int
	Action      models.Action
	Tags        []string
	ReasonCodes []string
	// FirstOccurrenceCapped is true when the first-occurrence cap lowered
	// the score.
	FirstOccurrenceCapped bool
}

// Decide runs the final steps: rule or threshold action, very large order
// override, first-occurrence cap, clamp and de-duplication.
func Decide(s Score, in DecisionInput, t Thresholds) Outcome {
	score := s.Clamped()

	action := t.ActionForScore(score)
	if in.RuleAction != nil {
		action = OrderAction(*in.RuleAction)
	}

	reasons := s.ReasonCodes
	if in.Amount.GreaterThan(t.VeryHighValue) {
		if action != models.ActionBlock {
			action = models.ActionHold
		}
		reasons = append(append([]string{}, reasons...), ReasonVeryHighValue)
	}

	capped := false
	if in.FirstOccurrence && s.Raw > t.FirstOccurrenceCapTrigger && score > t.FirstOccurrenceCap {
		score = t.FirstOccurrenceCap
		capped = true
	}

	return Outcome{
		Score:                 Clamp(score),
		Action:                action,
		Tags:                  Unique(s.Tags),
		ReasonCodes:           Unique(reasons),
		FirstOccurrenceCapped: capped,
	}
}

// Unique keeps the first occurrence of each value, preserving order.
func Unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
