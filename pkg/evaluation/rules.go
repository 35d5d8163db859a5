package evaluation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/metrics"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/risk"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/rules"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/validators"
)

type ruleInput struct {
	customer      models.CustomerInput
	address       *models.Address
	amount        decimal.Decimal
	currency      string
	paymentMethod models.PaymentMethod
	sessionID     string
	metadata      map[string]any
}

// enrichment is the test-mode validation of an order used as rule context.
type enrichment struct {
	email   *validators.EmailResult
	phone   *validators.PhoneResult
	address *validators.AddressResult
}

// enrich re-validates the order with caching off and short timeouts. Unlike
// the scoring pass, an infrastructure failure here is returned.
func (s *Service) enrich(ctx context.Context, in ruleInput) (enrichment, error) {
	ctx, span := tracing.StartSpan(ctx, "evaluation.Service.enrich")
	defer span.End()

	opts := validators.TestMode(s.config.TestModeTimeout)
	var out enrichment

	if in.customer.Email != "" {
		email, err := s.deps.Email.Validate(ctx, in.customer.Email, opts)
		if err != nil {
			return out, fmt.Errorf("email: %w", err)
		}
		out.email = &email
	}

	country := ""
	if in.address != nil {
		country = in.address.Country
		address, err := s.deps.Address.Validate(ctx, *in.address, opts)
		if err != nil {
			return out, fmt.Errorf("address: %w", err)
		}
		out.address = &address
	}

	if in.customer.Phone != "" {
		phone, err := s.deps.Phone.Validate(ctx, validators.PhoneInput{Phone: in.customer.Phone, Country: country}, opts)
		if err != nil {
			return out, fmt.Errorf("phone: %w", err)
		}
		out.phone = &phone
	}
	return out, nil
}

func (e enrichment) context(in ruleInput, score risk.Score) rules.Context {
	return rules.NewContext(rules.ContextInput{
		Email:         e.email,
		Phone:         e.phone,
		Address:       e.address,
		FirstName:     in.customer.FirstName,
		LastName:      in.customer.LastName,
		Amount:        in.amount,
		Currency:      in.currency,
		PaymentMethod: string(in.paymentMethod),
		SessionID:     in.sessionID,
		RiskScore:     score.Clamped(),
		ReasonCodes:   risk.Unique(score.ReasonCodes),
		Metadata:      in.metadata,
	})
}

// evaluateRules runs the enrichment pass and the rule engine on the running
// score. It never fails: problems come back as a degraded result.
func (s *Service) evaluateRules(ctx context.Context, projectID string, in ruleInput, score risk.Score) (result rules.Result) {
	ctx, span := tracing.StartSpan(ctx, "evaluation.Service.evaluateRules")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{"project_id": projectID})

	defer func() {
		if r := recover(); r != nil {
			result = rules.Result{Degraded: rules.Degrade(rules.DegradedEnrichment, fmt.Errorf("rule evaluation panicked: %v", r))}
			log.WithError(result.Degraded).Error("rule evaluation panicked, falling back to score thresholds")
			metrics.RecordRuleEngineDegraded(string(rules.DegradedEnrichment))
		}
	}()

	enriched, err := s.enrich(ctx, in)
	if err != nil {
		log.WithError(err).Warn("rule enrichment failed, falling back to score thresholds")
		metrics.RecordRuleEngineDegraded(string(rules.DegradedEnrichment))
		return rules.Result{Degraded: rules.Degrade(rules.DegradedEnrichment, err)}
	}

	result = s.deps.Rules.Evaluate(ctx, projectID, enriched.context(in, score))
	if result.Degraded != nil {
		log.WithError(result.Degraded).Warn("rule evaluation degraded")
	}
	return result
}

// TestRules evaluates a payload without persisting anything. The score
// covers the validation and payment signals only; dedupe and duplicate
// checks need a real order.
func (s *Service) TestRules(ctx context.Context, projectID string, req models.TestRulesRequest) (*models.TestRulesResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "evaluation.Service.TestRules")
	defer span.End()

	adhoc := make([]rules.CompiledRule, 0, len(req.Rules))
	for i, r := range req.Rules {
		condition, err := rules.Parse(r.Condition)
		if err != nil {
			return nil, err
		}
		rule := models.Rule{
			ID:          fmt.Sprintf("test_rule_%d", i+1),
			ProjectID:   projectID,
			Name:        r.Name,
			Description: r.Description,
			Condition:   r.Condition,
			Action:      r.Action,
			Priority:    r.Priority,
			Enabled:     true,
		}
		adhoc = append(adhoc, rules.CompiledRule{Rule: rule, Condition: condition})
	}

	in := ruleInput{
		customer:      req.Customer,
		address:       req.ShippingAddress,
		amount:        req.TotalAmount,
		currency:      req.Currency,
		paymentMethod: req.PaymentMethod,
		sessionID:     req.SessionID,
		metadata:      req.Metadata,
	}

	enriched, err := s.enrich(ctx, in)
	var result rules.Result
	var score risk.Score
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("rule test enrichment failed")
		result.Degraded = rules.Degrade(rules.DegradedEnrichment, err)
	} else {
		country := ""
		if req.ShippingAddress != nil {
			country = req.ShippingAddress.Country
		}
		score = risk.Fold(s.signalDeltas(req.Customer.Email, country, req.PaymentMethod, req.TotalAmount, signals{
			email:   enriched.email,
			phone:   enriched.phone,
			address: enriched.address,
		})...)

		data := enriched.context(in, score)
		if len(adhoc) == 0 {
			result = s.deps.Rules.Evaluate(ctx, projectID, data)
		} else {
			runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
			result = s.deps.Rules.Run(runCtx, append(rules.BuiltInRules(), adhoc...), data)
			cancel()
		}
	}

	resp := &models.TestRulesResponse{
		RiskScore:      score.Clamped(),
		RiskLevel:      rules.RiskLevel(score.Clamped()),
		ReasonCodes:    risk.Unique(score.ReasonCodes),
		TriggeredRules: []models.Rule{},
	}
	if d := result.Decision; d != nil {
		resp.TriggeredRules = d.Triggered
		action := d.Action
		resp.FinalDecision = &action
	}
	if result.Degraded != nil {
		resp.Degraded = string(result.Degraded.Kind)
	}
	return resp, nil
}
