package evaluation

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/normalizers"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/risk"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/rules"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/validators"
)

// evaluated is everything the pipeline learned about one order.
type evaluated struct {
	firstOccurrence bool
	outcome         risk.Outcome
	customerDedupe  models.DedupeResult
	addressDedupe   models.DedupeResult
	email           *validators.EmailResult
	phone           *validators.PhoneResult
	address         *validators.AddressResult
	rules           rules.Result
}

// signals holds the validator and dedupe outputs that feed the score.
type signals struct {
	email          *validators.EmailResult
	phone          *validators.PhoneResult
	address        *validators.AddressResult
	customerDedupe *models.DedupeResult
	addressDedupe  *models.DedupeResult
	returning      bool
}

func (s *Service) evaluate(ctx context.Context, projectID string, req models.OrderRequest, first bool) *evaluated {
	ctx, span := tracing.StartSpan(ctx, "evaluation.Service.evaluate")
	defer span.End()

	sig := signals{
		customerDedupe: s.dedupeCustomer(ctx, projectID, req.Customer),
		address:        s.validateAddress(ctx, req.ShippingAddress, validators.Options{}),
		addressDedupe:  s.dedupeAddress(ctx, projectID, req.ShippingAddress),
		email:          s.validateEmail(ctx, req.Customer.Email, validators.Options{}),
		phone:          s.validatePhone(ctx, req.Customer.Phone, req.ShippingAddress.Country, validators.Options{}),
	}
	if sig.addressDedupe != nil && len(sig.addressDedupe.Matches) > 0 {
		sig.returning = s.isReturning(ctx, projectID, req.Customer.Email, req.ShippingAddress)
	}

	deltas := append([]risk.Delta{risk.Duplicate(!first)}, s.signalDeltas(req.Customer.Email, req.ShippingAddress.Country, req.PaymentMethod, req.TotalAmount, sig)...)
	score := risk.Fold(deltas...)

	result := s.evaluateRules(ctx, projectID, ruleInput{
		customer:      req.Customer,
		address:       &req.ShippingAddress,
		amount:        req.TotalAmount,
		currency:      req.Currency,
		paymentMethod: req.PaymentMethod,
		sessionID:     req.SessionID,
		metadata:      req.Metadata,
	}, score)
	if result.Degraded != nil {
		score = score.Add(risk.Delta{ReasonCodes: []string{risk.ReasonRulesDegraded}})
	}

	in := risk.DecisionInput{Amount: req.TotalAmount, FirstOccurrence: first}
	if result.Decision != nil && result.Decision.FromRules {
		action := result.Decision.Action
		in.RuleAction = &action
	}

	ev := &evaluated{
		firstOccurrence: first,
		outcome:         risk.Decide(score, in, s.config.Thresholds),
		email:           sig.email,
		phone:           sig.phone,
		address:         sig.address,
		rules:           result,
		customerDedupe:  emptyDedupe(),
		addressDedupe:   emptyDedupe(),
	}
	if sig.customerDedupe != nil {
		ev.customerDedupe = *sig.customerDedupe
	}
	if sig.addressDedupe != nil {
		ev.addressDedupe = *sig.addressDedupe
	}
	return ev
}

// signalDeltas builds the deltas of the customer, address, email, phone,
// payment and value checks, in that order.
func (s *Service) signalDeltas(email, country string, method models.PaymentMethod, amount decimal.Decimal, sig signals) []risk.Delta {
	var deltas []risk.Delta

	newCustomer := false
	if sig.customerDedupe != nil {
		deltas = append(deltas, risk.CustomerDedupe(*sig.customerDedupe, email))
		newCustomer = len(sig.customerDedupe.Matches) == 0
	}

	if sig.addressDedupe != nil {
		deltas = append(deltas, risk.AddressDedupe(*sig.addressDedupe, sig.returning))
	}
	postalMismatch := false
	if sig.address != nil {
		deltas = append(deltas, risk.Address(*sig.address))
		postalMismatch = validators.HasReason(sig.address.ReasonCodes, validators.ReasonAddressPostalCityMismatch)
		if sig.address.Normalized.Country != "" {
			country = sig.address.Normalized.Country
		}
	}

	if sig.email != nil {
		deltas = append(deltas, risk.Email(*sig.email))
	}
	if sig.phone != nil {
		deltas = append(deltas, risk.Phone(*sig.phone))
	}
	countryMismatch := risk.PhoneCountryMismatch(sig.phone, country)
	deltas = append(deltas, risk.CountryMismatch(countryMismatch))

	deltas = append(deltas, risk.COD(method, risk.RTOInput{
		NewCustomer:          newCustomer,
		PostalMismatch:       postalMismatch,
		PhoneCountryMismatch: countryMismatch,
		DisposableEmail:      sig.email != nil && sig.email.Disposable,
	}))

	return append(deltas, risk.HighValue(amount, s.config.Thresholds.HighValue))
}

func (s *Service) dedupeCustomer(ctx context.Context, projectID string, input models.CustomerInput) *models.DedupeResult {
	if input.Email == "" && input.Phone == "" && input.FirstName == "" && input.LastName == "" {
		return nil
	}
	result, err := s.deps.Dedupe.DedupeCustomer(ctx, projectID, input)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("customer dedupe failed, continuing without it")
		return nil
	}
	return &result
}

func (s *Service) dedupeAddress(ctx context.Context, projectID string, addr models.Address) *models.DedupeResult {
	result, err := s.deps.Dedupe.DedupeAddress(ctx, projectID, addr)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("address dedupe failed, continuing without it")
		return nil
	}
	return &result
}

func (s *Service) isReturning(ctx context.Context, projectID, email string, addr models.Address) bool {
	if email == "" {
		return false
	}
	ok, err := s.deps.Dedupe.IsReturningCustomerAddress(ctx, projectID, email, addr.PostalCode, addr.Line1)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("returning customer check failed")
		return false
	}
	return ok
}

func (s *Service) validateEmail(ctx context.Context, email string, opts validators.Options) *validators.EmailResult {
	if strings.TrimSpace(email) == "" {
		return nil
	}
	result, err := s.deps.Email.Validate(ctx, email, opts)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("email validation unavailable")
		return nil
	}
	return &result
}

func (s *Service) validatePhone(ctx context.Context, phone, country string, opts validators.Options) *validators.PhoneResult {
	if strings.TrimSpace(phone) == "" {
		return nil
	}
	result, err := s.deps.Phone.Validate(ctx, validators.PhoneInput{Phone: phone, Country: country}, opts)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("phone validation unavailable")
		return nil
	}
	return &result
}

func (s *Service) validateAddress(ctx context.Context, addr models.Address, opts validators.Options) *validators.AddressResult {
	result, err := s.deps.Address.Validate(ctx, addr, opts)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("address validation unavailable")
		return nil
	}
	return &result
}

// persistIdentity stores the customer and the address unless they already
// exist. Failures are logged and skipped.
func (s *Service) persistIdentity(ctx context.Context, projectID string, req models.OrderRequest, ev *evaluated) {
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"project_id": projectID,
		"order_id":   req.OrderID,
	})

	if email := normalizers.NormalizeEmail(req.Customer.Email); email != "" {
		_, err := s.deps.Customers.InsertIfAbsent(ctx, models.Customer{
			ProjectID:       projectID,
			Email:           req.Customer.Email,
			NormalizedEmail: email,
			Phone:           req.Customer.Phone,
			NormalizedPhone: normalizers.NormalizePhone(req.Customer.Phone),
			FirstName:       req.Customer.FirstName,
			LastName:        req.Customer.LastName,
		})
		if err != nil {
			log.WithError(err).Warn("skipping customer persistence")
		}
	}

	normalized := normalizers.NormalizeAddress(req.ShippingAddress)
	hash := normalizers.AddressHash(normalized)
	if ev.address != nil && ev.address.AddressHash != "" {
		normalized, hash = ev.address.Normalized, ev.address.AddressHash
	}
	_, err := s.deps.Addresses.InsertIfAbsent(ctx, models.AddressRecord{
		ProjectID:   projectID,
		Line1:       normalized.Line1,
		Line2:       normalized.Line2,
		City:        normalized.City,
		State:       normalized.State,
		PostalCode:  normalized.PostalCode,
		Country:     normalized.Country,
		AddressHash: hash,
	})
	if err != nil {
		log.WithError(err).Warn("skipping address persistence")
	}
}

func (e *evaluated) order(projectID string, req models.OrderRequest) models.Order {
	return models.Order{
		ProjectID:       projectID,
		OrderID:         req.OrderID,
		CustomerEmail:   normalizers.NormalizeEmail(req.Customer.Email),
		CustomerPhone:   normalizers.NormalizePhone(req.Customer.Phone),
		ShippingAddress: req.ShippingAddress,
		TotalAmount:     req.TotalAmount,
		Currency:        req.Currency,
		PaymentMethod:   req.PaymentMethod,
		RiskScore:       e.outcome.Score,
		Status:          e.outcome.Action,
		ReasonCodes:     e.outcome.ReasonCodes,
		Tags:            e.outcome.Tags,
	}
}

func (e *evaluated) response(orderID, requestID string) *models.OrderResponse {
	resp := &models.OrderResponse{
		OrderID:        orderID,
		RiskScore:      e.outcome.Score,
		Action:         e.outcome.Action,
		Tags:           e.outcome.Tags,
		ReasonCodes:    e.outcome.ReasonCodes,
		CustomerDedupe: e.customerDedupe,
		AddressDedupe:  e.addressDedupe,
		RulesEvaluation: models.RulesEvaluation{
			TriggeredRules: []models.Rule{},
		},
		RequestID: requestID,
	}

	if e.email != nil {
		resp.Validations.Email = e.email
	}
	if e.phone != nil {
		resp.Validations.Phone = e.phone
	}
	if e.address != nil {
		resp.Validations.Address = e.address
	}

	if d := e.rules.Decision; d != nil {
		resp.RulesEvaluation.TriggeredRules = d.Triggered
		action := d.Action
		resp.RulesEvaluation.FinalDecision = &action
	}
	if e.rules.Degraded != nil {
		resp.RulesEvaluation.Degraded = string(e.rules.Degraded.Kind)
	}
	return resp
}

func emptyDedupe() models.DedupeResult {
	return models.DedupeResult{
		Matches:         []models.Match{},
		SuggestedAction: models.SuggestedActionCreateNew,
	}
}
