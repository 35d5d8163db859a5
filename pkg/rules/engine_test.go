package rules

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/validators"
)

type fakeSource struct {
	rules []models.Rule
	err   error
}

func (f fakeSource) ListEnabled(_ context.Context, _ string) ([]models.Rule, error) {
	return f.rules, f.err
}

const always = `{"op":"literal","value":true}`

func projectRule(id string, action models.Action, priority int, condition string) models.Rule {
	return models.Rule{
		ID:        id,
		Name:      id,
		Action:    action,
		Priority:  priority,
		Enabled:   true,
		Condition: json.RawMessage(condition),
	}
}

func newEngine(source RuleSource, cfg Config) *Engine {
	return NewEngine(source, cfg, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func scoredContext(score int) Context {
	return NewContext(ContextInput{
		Email:         &validators.EmailResult{Valid: true},
		Phone:         &validators.PhoneResult{Valid: true, Country: "US"},
		Address:       &validators.AddressResult{Valid: true},
		Amount:        decimal.NewFromInt(100),
		Currency:      "USD",
		PaymentMethod: "card",
		RiskScore:     score,
	})
}

func triggeredIDs(d *Decision) []string {
	ids := []string{}
	for _, r := range d.Triggered {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestEngine_CleanContextApproves(t *testing.T) {
	result := newEngine(fakeSource{}, Config{}).Evaluate(context.Background(), "p1", scoredContext(0))

	require.NotNil(t, result.Decision)
	assert.Nil(t, result.Degraded)
	assert.Equal(t, models.ActionApprove, result.Decision.Action)
	assert.False(t, result.Decision.FromRules)
	assert.Empty(t, result.Decision.Triggered)
}

func TestEngine_BuiltInCriticalRiskBlocks(t *testing.T) {
	result := newEngine(fakeSource{}, Config{}).Evaluate(context.Background(), "p1", scoredContext(95))

	require.NotNil(t, result.Decision)
	assert.Equal(t, models.ActionBlock, result.Decision.Action)
	assert.Equal(t, []string{BuiltInBlockCriticalRisk}, triggeredIDs(result.Decision))
	assert.True(t, result.Decision.Triggered[0].BuiltIn)
}

func TestEngine_BuiltInPOBoxCOD(t *testing.T) {
	data := NewContext(ContextInput{
		Address:       &validators.AddressResult{Valid: false, POBox: true, ReasonCodes: []string{validators.ReasonAddressPOBox}},
		Amount:        decimal.NewFromInt(100),
		PaymentMethod: "cod",
		RiskScore:     50,
	})

	result := newEngine(fakeSource{}, Config{}).Evaluate(context.Background(), "p1", data)
	require.NotNil(t, result.Decision)
	assert.Equal(t, []string{BuiltInHoldPOBoxCOD}, triggeredIDs(result.Decision))
	assert.Equal(t, models.ActionHold, result.Decision.Action)
}

func TestEngine_BuiltInInvalidPhoneHighValue(t *testing.T) {
	data := NewContext(ContextInput{
		Phone:     &validators.PhoneResult{Valid: false},
		Amount:    decimal.RequireFromString("1000.01"),
		RiskScore: 35,
	})

	result := newEngine(fakeSource{}, Config{}).Evaluate(context.Background(), "p1", data)
	require.NotNil(t, result.Decision)
	assert.Equal(t, []string{BuiltInHoldInvalidPhoneHighValue}, triggeredIDs(result.Decision))

	noPhone := NewContext(ContextInput{Amount: decimal.NewFromInt(5000)})
	result = newEngine(fakeSource{}, Config{}).Evaluate(context.Background(), "p1", noPhone)
	assert.Empty(t, result.Decision.Triggered)
}

func TestEngine_ApproveWinsOverBlock(t *testing.T) {
	source := fakeSource{rules: []models.Rule{
		projectRule("allow-vip", models.ActionApprove, 10, always),
		projectRule("deny-all", models.ActionBlock, 50, always),
	}}

	result := newEngine(source, Config{}).Evaluate(context.Background(), "p1", scoredContext(95))
	require.NotNil(t, result.Decision)
	assert.Equal(t, models.ActionApprove, result.Decision.Action)
	assert.Equal(t, []string{BuiltInBlockCriticalRisk, "deny-all", "allow-vip"}, triggeredIDs(result.Decision))
}

func TestEngine_HoldEscalation(t *testing.T) {
	source := fakeSource{rules: []models.Rule{projectRule("hold", models.ActionHold, 10, always)}}
	engine := newEngine(source, Config{})

	tests := []struct {
		score int
		want  models.Action
	}{
		{score: 10, want: models.ActionHold},
		{score: 79, want: models.ActionHold},
		{score: 80, want: models.ActionReview},
	}
	for _, tt := range tests {
		result := engine.Evaluate(context.Background(), "p1", scoredContext(tt.score))
		require.NotNil(t, result.Decision)
		assert.Equal(t, tt.want, result.Decision.Action, "score %d", tt.score)
	}
}

func TestReconcile_FallbackBands(t *testing.T) {
	tests := []struct {
		score int
		want  models.Action
	}{
		{score: 0, want: models.ActionApprove},
		{score: 34, want: models.ActionApprove},
		{score: 35, want: models.ActionHold},
		{score: 60, want: models.ActionReview},
		{score: 80, want: models.ActionBlock},
	}
	for _, tt := range tests {
		decision := Reconcile([]models.Rule{}, tt.score)
		assert.Equal(t, tt.want, decision.Action, "score %d", tt.score)
		assert.False(t, decision.FromRules)
	}
}

func TestReconcile_CriticalHoldIsReview(t *testing.T) {
	decision := Reconcile([]models.Rule{{ID: "h", Action: models.ActionHold}}, 85)
	assert.Equal(t, models.ActionReview, decision.Action)
	assert.Equal(t, RiskLevelCritical, decision.RiskLevel)
}

func TestEngine_SourceFailureStillRunsBuiltIns(t *testing.T) {
	result := newEngine(fakeSource{err: errors.New("db down")}, Config{}).Evaluate(context.Background(), "p1", scoredContext(90))

	require.NotNil(t, result.Degraded)
	assert.Equal(t, DegradedRuleSource, result.Degraded.Kind)
	assert.ErrorContains(t, result.Degraded, "db down")
	require.NotNil(t, result.Decision)
	assert.Equal(t, models.ActionBlock, result.Decision.Action)
}

func TestEngine_InvalidStoredConditionSkipped(t *testing.T) {
	source := fakeSource{rules: []models.Rule{
		projectRule("broken", models.ActionBlock, 10, `{"op":"nope"}`),
		projectRule("ok", models.ActionHold, 5, always),
	}}

	result := newEngine(source, Config{}).Evaluate(context.Background(), "p1", scoredContext(0))
	require.NotNil(t, result.Decision)
	assert.Equal(t, []string{"ok"}, triggeredIDs(result.Decision))
	assert.Nil(t, result.Degraded)
}

func TestEngine_PanickingRuleIsNotTriggered(t *testing.T) {
	engine := newEngine(fakeSource{}, Config{})
	rules := []CompiledRule{
		{Rule: models.Rule{ID: "nil-condition", Action: models.ActionBlock, Priority: 5}},
		{Rule: models.Rule{ID: "ok", Action: models.ActionHold, Priority: 1}, Condition: MustParse(always)},
	}

	result := engine.Run(context.Background(), rules, scoredContext(0))
	require.NotNil(t, result.Decision)
	assert.Equal(t, []string{"ok"}, triggeredIDs(result.Decision))
	assert.Equal(t, models.ActionHold, result.Decision.Action)
}

func TestEngine_SlowRuleTimesOut(t *testing.T) {
	engine := newEngine(fakeSource{}, Config{RuleTimeout: 20 * time.Millisecond})
	slow := MustParse(always)
	engine.evaluate = func(ctx context.Context, n *Node, data Context) (bool, error) {
		if n == slow {
			<-ctx.Done()
			return true, ctx.Err()
		}
		return Truthy(ctx, n, data)
	}

	rules := []CompiledRule{
		{Rule: models.Rule{ID: "slow", Action: models.ActionBlock, Priority: 9}, Condition: slow},
		{Rule: models.Rule{ID: "fast", Action: models.ActionHold, Priority: 1}, Condition: MustParse(always)},
	}

	start := time.Now()
	result := engine.Run(context.Background(), rules, scoredContext(0))
	assert.Less(t, time.Since(start), time.Second)
	require.NotNil(t, result.Decision)
	assert.Equal(t, []string{"fast"}, triggeredIDs(result.Decision))
}

func TestEngine_PassTimeoutIsDegraded(t *testing.T) {
	engine := newEngine(fakeSource{}, Config{RuleTimeout: time.Second})
	block := make(chan struct{})
	defer close(block)
	engine.evaluate = func(_ context.Context, _ *Node, _ Context) (bool, error) {
		<-block
		return true, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := engine.Run(ctx, []CompiledRule{{Rule: models.Rule{ID: "stuck"}, Condition: MustParse(always)}}, scoredContext(0))
	assert.Nil(t, result.Decision)
	require.NotNil(t, result.Degraded)
	assert.Equal(t, DegradedTimeout, result.Degraded.Kind)
}

func TestSortRules_PriorityThenCreatedAt(t *testing.T) {
	now := time.Now()
	rules := []CompiledRule{
		{Rule: models.Rule{ID: "low", Priority: 1, CreatedAt: now}},
		{Rule: models.Rule{ID: "newer", Priority: 5, CreatedAt: now.Add(time.Minute)}},
		{Rule: models.Rule{ID: "older", Priority: 5, CreatedAt: now}},
	}

	sorted := sortRules(rules)
	assert.Equal(t, "older", sorted[0].Rule.ID)
	assert.Equal(t, "newer", sorted[1].Rule.ID)
	assert.Equal(t, "low", sorted[2].Rule.ID)
	assert.Equal(t, "low", rules[0].Rule.ID)
}
