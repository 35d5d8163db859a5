package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/metrics"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing"
)

// Rule outcomes as counted in metrics.
const (
	OutcomeTriggered    = "triggered"
	OutcomeNotTriggered = "not_triggered"
	OutcomeError        = "error"
	OutcomeTimeout      = "timeout"
	OutcomePanic        = "panic"
	OutcomeInvalid      = "invalid"
)

// RuleSource lists the enabled rules of a project.
type RuleSource interface {
	ListEnabled(ctx context.Context, projectID string) ([]models.Rule, error)
}

// CompiledRule is a rule with its parsed condition.
type CompiledRule struct {
	Rule      models.Rule
	Condition *Node
}

// Config bounds rule evaluation.
type Config struct {
	RuleTimeout   time.Duration // per rule (default: 50ms)
	EngineTimeout time.Duration // whole pass (default: 10s)
}

// DefaultConfig returns default engine configuration
func DefaultConfig() Config {
	return Config{
		RuleTimeout:   50 * time.Millisecond,
		EngineTimeout: 10 * time.Second,
	}
}

// DegradedKind names why a pass could not use every rule.
type DegradedKind string

const (
	DegradedRuleSource DegradedKind = "rule_source_unavailable"
	DegradedTimeout    DegradedKind = "engine_timeout"
	DegradedEnrichment DegradedKind = "enrichment_failed"
)

// DegradedReason describes a degraded pass. It is a value, not a failure:
// callers log it and fall back to score thresholds where no decision exists.
type DegradedReason struct {
	Kind DegradedKind
	Err  error
}

func (d *DegradedReason) Error() string {
	if d.Err == nil {
		return string(d.Kind)
	}
	return fmt.Sprintf("%s: %v", d.Kind, d.Err)
}

func (d *DegradedReason) Unwrap() error {
	return d.Err
}

// Degrade builds a DegradedReason.
func Degrade(kind DegradedKind, err error) *DegradedReason {
	return &DegradedReason{Kind: kind, Err: err}
}

// Decision is the reconciled outcome of a rule pass.
type Decision struct {
	Action    models.Action
	Triggered []models.Rule
	RiskLevel string
	// FromRules is false when no rule triggered and Action came from the
	// score bands.
	FromRules bool
}

// Result carries a decision, a degradation, or both when only part of the
// rule set could be evaluated.
type Result struct {
	Decision *Decision
	Degraded *DegradedReason
}

// Engine runs rules concurrently, each under its own timeout.
type Engine struct {
	source   RuleSource
	config   Config
	logger   ectologger.Logger
	evaluate func(ctx context.Context, n *Node, data Context) (bool, error)
}

func NewEngine(source RuleSource, config Config, logger ectologger.Logger) *Engine {
	defaults := DefaultConfig()
	if config.RuleTimeout <= 0 {
		config.RuleTimeout = defaults.RuleTimeout
	}
	if config.EngineTimeout <= 0 {
		config.EngineTimeout = defaults.EngineTimeout
	}
	return &Engine{
		source:   source,
		config:   config,
		logger:   logger,
		evaluate: Truthy,
	}
}

// Evaluate runs the built-in rules and the project's enabled rules. When the
// project rules cannot be loaded the built-ins still run and the result is
// marked degraded.
func (e *Engine) Evaluate(ctx context.Context, projectID string, data Context) Result {
	ctx, span := tracing.StartSpan(ctx, "rules.Engine.Evaluate")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.config.EngineTimeout)
	defer cancel()

	rules := BuiltInRules()
	var degraded *DegradedReason

	projectRules, err := e.source.ListEnabled(ctx, projectID)
	if err != nil {
		degraded = Degrade(DegradedRuleSource, err)
		e.logger.WithContext(ctx).WithError(err).Warnf("project rules unavailable for %s, evaluating built-ins only", projectID)
		metrics.RecordRuleEngineDegraded(string(DegradedRuleSource))
	} else {
		rules = append(rules, e.Compile(ctx, projectRules)...)
	}

	result := e.Run(ctx, rules, data)
	if result.Degraded == nil {
		result.Degraded = degraded
	}
	return result
}

// Compile parses stored conditions. Rules whose condition no longer parses
// are skipped.
func (e *Engine) Compile(ctx context.Context, rules []models.Rule) []CompiledRule {
	compiled := make([]CompiledRule, 0, len(rules))
	for _, rule := range rules {
		condition, err := Parse(rule.Condition)
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"rule_id": rule.ID,
			}).Warn("skipping rule with invalid condition")
			metrics.RecordRuleOutcome(OutcomeInvalid)
			continue
		}
		compiled = append(compiled, CompiledRule{Rule: rule, Condition: condition})
	}
	return compiled
}

// Run evaluates the given rules and reconciles the triggered ones.
func (e *Engine) Run(ctx context.Context, rules []CompiledRule, data Context) Result {
	rules = sortRules(rules)
	outcomes := make([]bool, len(rules))

	var wg sync.WaitGroup
	for i := range rules {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = e.evaluateRule(ctx, rules[i], data)
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	// Rules cut short by the pass deadline make the outcome set partial.
	if err := ctx.Err(); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("rule pass did not finish in time")
		metrics.RecordRuleEngineDegraded(string(DegradedTimeout))
		return Result{Degraded: Degrade(DegradedTimeout, err)}
	}

	triggered := []models.Rule{}
	for i, ok := range outcomes {
		if ok {
			triggered = append(triggered, rules[i].Rule)
		}
	}

	return Result{Decision: Reconcile(triggered, data.Score())}
}

func (e *Engine) evaluateRule(ctx context.Context, rule CompiledRule, data Context) bool {
	ruleCtx, cancel := context.WithTimeout(ctx, e.config.RuleTimeout)
	defer cancel()

	type outcome struct {
		triggered bool
		err       error
		panicked  bool
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("rule panicked: %v", r), panicked: true}
			}
		}()
		ok, err := e.evaluate(ruleCtx, rule.Condition, data)
		ch <- outcome{triggered: ok, err: err}
	}()

	logger := e.logger.WithContext(ctx).WithFields(map[string]any{
		"rule_id":   rule.Rule.ID,
		"rule_name": rule.Rule.Name,
	})

	select {
	case out := <-ch:
		switch {
		case out.panicked:
			logger.WithError(out.err).Error("rule evaluation panicked")
			metrics.RecordRuleOutcome(OutcomePanic)
			return false
		case errors.Is(out.err, context.DeadlineExceeded):
			logger.Warn("rule evaluation timed out")
			metrics.RecordRuleOutcome(OutcomeTimeout)
			return false
		case out.err != nil:
			logger.WithError(out.err).Warn("rule evaluation failed")
			metrics.RecordRuleOutcome(OutcomeError)
			return false
		case out.triggered:
			metrics.RecordRuleOutcome(OutcomeTriggered)
			return true
		default:
			metrics.RecordRuleOutcome(OutcomeNotTriggered)
			return false
		}
	case <-ruleCtx.Done():
		logger.Warn("rule evaluation timed out")
		metrics.RecordRuleOutcome(OutcomeTimeout)
		return false
	}
}

// Reconcile applies rule precedence: approve, then block, then hold
// (escalated to review at score 80 or critical level). With nothing
// triggered the score bands decide: 80 block, 60 review, 35 hold.
func Reconcile(triggered []models.Rule, score int) *Decision {
	level := RiskLevel(score)
	decision := &Decision{
		Triggered: triggered,
		RiskLevel: level,
		FromRules: len(triggered) > 0,
	}

	actions := ectolinq.Map(triggered, func(r models.Rule) models.Action { return r.Action })
	switch {
	case ectolinq.Contains(actions, models.ActionApprove):
		decision.Action = models.ActionApprove
	case ectolinq.Contains(actions, models.ActionBlock):
		decision.Action = models.ActionBlock
	case ectolinq.Contains(actions, models.ActionHold):
		decision.Action = models.ActionHold
		if score >= 80 || level == RiskLevelCritical {
			decision.Action = models.ActionReview
		}
	case score >= 80:
		decision.Action = models.ActionBlock
	case score >= 60:
		decision.Action = models.ActionReview
	case score >= 35:
		decision.Action = models.ActionHold
	default:
		decision.Action = models.ActionApprove
	}
	return decision
}

// sortRules orders by priority descending, then creation time ascending.
func sortRules(rules []CompiledRule) []CompiledRule {
	sorted := make([]CompiledRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Rule.Priority != sorted[j].Rule.Priority {
			return sorted[i].Rule.Priority > sorted[j].Rule.Priority
		}
		return sorted[i].Rule.CreatedAt.Before(sorted[j].Rule.CreatedAt)
	})
	return sorted
}
