package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctxmiddleware "github.com/guillemso1er/orbitcheck-sub004/pkg/context"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/database"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/middleware"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/risk"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/rules"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/validators"
)

type fakeOrders struct {
	existing  *models.Order
	lockErr   error
	insertErr error
	inserted  []models.Order
	lockedTx  bool
}

func (f *fakeOrders) LockByOrderID(ctx context.Context, _, _ string) (*models.Order, error) {
	_, f.lockedTx = database.TxFromContext(ctx)
	return f.existing, f.lockErr
}

func (f *fakeOrders) Insert(ctx context.Context, o models.Order) (bool, error) {
	if _, ok := database.TxFromContext(ctx); !ok {
		return false, errors.New("insert outside transaction")
	}
	if f.insertErr != nil {
		return false, f.insertErr
	}
	f.inserted = append(f.inserted, o)
	return true, nil
}

type fakeCustomers struct {
	err      error
	inserted []models.Customer
}

func (f *fakeCustomers) InsertIfAbsent(_ context.Context, c models.Customer) (bool, error) {
	f.inserted = append(f.inserted, c)
	return f.err == nil, f.err
}

type fakeAddresses struct {
	err      error
	inserted []models.AddressRecord
}

func (f *fakeAddresses) InsertIfAbsent(_ context.Context, a models.AddressRecord) (bool, error) {
	f.inserted = append(f.inserted, a)
	return f.err == nil, f.err
}

type fakeDedupe struct {
	customer  models.DedupeResult
	address   models.DedupeResult
	returning bool
	err       error
}

func (f *fakeDedupe) DedupeCustomer(context.Context, string, models.CustomerInput) (models.DedupeResult, error) {
	return f.customer, f.err
}

func (f *fakeDedupe) DedupeAddress(context.Context, string, models.Address) (models.DedupeResult, error) {
	return f.address, f.err
}

func (f *fakeDedupe) IsReturningCustomerAddress(context.Context, string, string, string, string) (bool, error) {
	return f.returning, f.err
}

// Test-mode calls (SkipCache) fail with testErr when it is set.
type fakeEmail struct {
	result  validators.EmailResult
	testErr error
}

func (f *fakeEmail) Validate(_ context.Context, _ string, opts validators.Options) (validators.EmailResult, error) {
	if opts.SkipCache && f.testErr != nil {
		return validators.EmailResult{}, f.testErr
	}
	return f.result, nil
}

type fakePhone struct {
	result validators.PhoneResult
}

func (f *fakePhone) Validate(context.Context, validators.PhoneInput, validators.Options) (validators.PhoneResult, error) {
	return f.result, nil
}

type fakeAddress struct {
	result validators.AddressResult
}

func (f *fakeAddress) Validate(context.Context, models.Address, validators.Options) (validators.AddressResult, error) {
	return f.result, nil
}

type fakeRuleSource struct {
	rules []models.Rule
	err   error
}

func (f *fakeRuleSource) ListEnabled(context.Context, string) ([]models.Rule, error) {
	return f.rules, f.err
}

type fakeAudit struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (f *fakeAudit) Record(_ context.Context, e models.AuditEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

type harness struct {
	svc       *Service
	mock      sqlmock.Sqlmock
	orders    *fakeOrders
	customers *fakeCustomers
	addresses *fakeAddresses
	dedupe    *fakeDedupe
	email     *fakeEmail
	phone     *fakePhone
	address   *fakeAddress
	source    *fakeRuleSource
	audit     *fakeAudit
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	h := &harness{
		mock:      mock,
		orders:    &fakeOrders{},
		customers: &fakeCustomers{},
		addresses: &fakeAddresses{},
		dedupe:    &fakeDedupe{customer: noMatches(), address: noMatches()},
		email:     &fakeEmail{result: validators.EmailResult{Valid: true, Normalized: "jane@example.com", MXFound: true, ReasonCodes: []string{}}},
		phone:     &fakePhone{result: validators.PhoneResult{Valid: true, E164: "+14155550100", Country: "US", LineType: "mobile", ReasonCodes: []string{}}},
		address:   &fakeAddress{result: validAddress()},
		source:    &fakeRuleSource{},
		audit:     &fakeAudit{},
	}

	engine := rules.NewEngine(h.source, rules.Config{RuleTimeout: time.Second, EngineTimeout: 5 * time.Second}, logger)
	h.svc = NewService(Dependencies{
		DB:        database.New(sqlx.NewDb(raw, "sqlmock"), logger),
		Orders:    h.orders,
		Customers: h.customers,
		Addresses: h.addresses,
		Dedupe:    h.dedupe,
		Email:     h.email,
		Phone:     h.phone,
		Address:   h.address,
		Rules:     engine,
		Audit:     h.audit,
	}, DefaultConfig(), logger)
	return h
}

func (h *harness) expectCommit() {
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()
}

func (h *harness) expectRollback() {
	h.mock.ExpectBegin()
	h.mock.ExpectRollback()
}

func noMatches() models.DedupeResult {
	return models.DedupeResult{Matches: []models.Match{}, SuggestedAction: models.SuggestedActionCreateNew}
}

func validAddress() validators.AddressResult {
	inBounds := true
	return validators.AddressResult{
		Valid: true,
		Normalized: models.Address{
			Line1:      "1600 amphitheatre pkwy",
			City:       "mountain view",
			State:      "ca",
			PostalCode: "94043",
			Country:    "US",
		},
		AddressHash:     "hash-1",
		PostalCityMatch: true,
		InBounds:        &inBounds,
		ReasonCodes:     []string{},
	}
}

func cleanOrder() models.OrderRequest {
	return models.OrderRequest{
		OrderID: "order-1",
		Customer: models.CustomerInput{
			Email:     "Jane@Example.com",
			Phone:     "+1 415 555 0100",
			FirstName: "Jane",
			LastName:  "Doe",
		},
		ShippingAddress: models.Address{
			Line1:      "1600 Amphitheatre Parkway",
			City:       "Mountain View",
			State:      "CA",
			PostalCode: "94043",
			Country:    "US",
		},
		TotalAmount:   decimal.NewFromInt(100),
		Currency:      "USD",
		PaymentMethod: models.PaymentMethodCard,
	}
}

func (h *harness) usePOBox() {
	addr := validAddress()
	addr.Valid = false
	addr.POBox = true
	addr.ReasonCodes = []string{validators.ReasonAddressPOBox}
	h.address.result = addr
}

func ruleIDs(rs []models.Rule) []string {
	ids := make([]string, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestEvaluateOrder_CleanOrderApproved(t *testing.T) {
	h := newHarness(t)
	h.expectCommit()

	resp, err := h.svc.EvaluateOrder(context.Background(), "p1", cleanOrder())
	require.NoError(t, err)

	assert.Equal(t, 0, resp.RiskScore)
	assert.Equal(t, models.ActionApprove, resp.Action)
	assert.Empty(t, resp.Tags)
	assert.Empty(t, resp.ReasonCodes)
	assert.Equal(t, models.SuggestedActionCreateNew, resp.CustomerDedupe.SuggestedAction)
	assert.NotEmpty(t, resp.RequestID)
	assert.NotNil(t, resp.Validations.Email)
	assert.NotNil(t, resp.Validations.Phone)
	assert.NotNil(t, resp.Validations.Address)
	require.NotNil(t, resp.RulesEvaluation.FinalDecision)
	assert.Equal(t, models.ActionApprove, *resp.RulesEvaluation.FinalDecision)
	assert.Empty(t, resp.RulesEvaluation.TriggeredRules)
	assert.Empty(t, resp.RulesEvaluation.Degraded)

	assert.True(t, h.orders.lockedTx)
	require.Len(t, h.orders.inserted, 1)
	order := h.orders.inserted[0]
	assert.Equal(t, "p1", order.ProjectID)
	assert.Equal(t, "jane@example.com", order.CustomerEmail)
	assert.Equal(t, models.ActionApprove, order.Status)
	assert.Equal(t, 0, order.RiskScore)

	require.Len(t, h.customers.inserted, 1)
	assert.Equal(t, "jane@example.com", h.customers.inserted[0].NormalizedEmail)
	require.Len(t, h.addresses.inserted, 1)
	assert.Equal(t, "hash-1", h.addresses.inserted[0].AddressHash)

	require.Len(t, h.audit.events, 1)
	event := h.audit.events[0]
	assert.Equal(t, models.AuditTypeOrder, event.Type)
	assert.Equal(t, EvaluateEndpoint, event.Endpoint)
	assert.Equal(t, http.StatusOK, event.Status)
	assert.Equal(t, resp.RequestID, event.RequestID)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(event.Meta, &meta))
	assert.Equal(t, "order-1", meta["order_id"])
	assert.Equal(t, true, meta["first_occurrence"])

	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestEvaluateOrder_POBoxWithCOD(t *testing.T) {
	h := newHarness(t)
	h.usePOBox()
	h.expectCommit()

	req := cleanOrder()
	req.PaymentMethod = models.PaymentMethodCOD

	resp, err := h.svc.EvaluateOrder(context.Background(), "p1", req)
	require.NoError(t, err)

	assert.Equal(t, 50, resp.RiskScore)
	assert.Equal(t, models.ActionHold, resp.Action)
	assert.ElementsMatch(t, []string{risk.TagPOBoxDetected, risk.TagCODOrder}, resp.Tags)
	assert.ElementsMatch(t, []string{risk.ReasonPOBoxBlock, risk.ReasonCODRisk}, resp.ReasonCodes)
	assert.Contains(t, ruleIDs(resp.RulesEvaluation.TriggeredRules), rules.BuiltInHoldPOBoxCOD)
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestEvaluateOrder_DisposableCODCountryMismatch(t *testing.T) {
	h := newHarness(t)
	h.email.result = validators.EmailResult{
		Valid:       false,
		Normalized:  "x@mailinator.com",
		Disposable:  true,
		ReasonCodes: []string{validators.ReasonEmailDisposable},
	}
	h.phone.result = validators.PhoneResult{Valid: true, E164: "+525512345678", Country: "MX", ReasonCodes: []string{}}
	h.expectCommit()

	req := cleanOrder()
	req.Customer.Email = "x@mailinator.com"
	req.PaymentMethod = models.PaymentMethodCOD

	resp, err := h.svc.EvaluateOrder(context.Background(), "p1", req)
	require.NoError(t, err)

	assert.Equal(t, 95, resp.RiskScore)
	assert.Equal(t, models.ActionBlock, resp.Action)
	assert.Subset(t, resp.Tags, []string{risk.TagDisposableEmail, risk.TagCODOrder, risk.TagHighRiskRTO})
	assert.Contains(t, resp.ReasonCodes, risk.ReasonPhoneCountryMismatch)
	assert.Contains(t, ruleIDs(resp.RulesEvaluation.TriggeredRules), rules.BuiltInBlockCriticalRisk)
	require.Len(t, h.orders.inserted, 1)
	assert.Equal(t, models.ActionBlock, h.orders.inserted[0].Status)
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestEvaluateOrder_ResubmittedOrder(t *testing.T) {
	h := newHarness(t)
	h.orders.existing = &models.Order{ID: "row-1", ProjectID: "p1", OrderID: "order-1"}
	h.expectCommit()

	resp, err := h.svc.EvaluateOrder(context.Background(), "p1", cleanOrder())
	require.NoError(t, err)

	assert.Equal(t, 50, resp.RiskScore)
	assert.Equal(t, models.ActionHold, resp.Action)
	assert.Contains(t, resp.Tags, risk.TagDuplicateOrder)
	assert.Contains(t, resp.ReasonCodes, risk.ReasonDuplicateDetected)

	var meta map[string]any
	require.Len(t, h.audit.events, 1)
	require.NoError(t, json.Unmarshal(h.audit.events[0].Meta, &meta))
	assert.Equal(t, false, meta["first_occurrence"])
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestEvaluateOrder_DuplicateCheckFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.orders.lockErr = httperror.NewHTTPError(http.StatusInternalServerError, "failed to check for duplicate order")
	h.expectRollback()

	ctx := ctxmiddleware.SetRequestID(context.Background(), "req-42")
	resp, err := h.svc.EvaluateOrder(ctx, "p1", cleanOrder())

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, http.StatusInternalServerError, httperror.GetStatusCode(err))
	assert.Equal(t, CodeDuplicateCheckFailed, httperror.ToHTTPError(err).Meta[middleware.MetaCode])
	assert.Empty(t, h.orders.inserted)
	assert.Empty(t, h.customers.inserted)

	require.Len(t, h.audit.events, 1)
	assert.Equal(t, "req-42", h.audit.events[0].RequestID)
	assert.Equal(t, http.StatusInternalServerError, h.audit.events[0].Status)
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestEvaluateOrder_OrderInsertFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.orders.insertErr = httperror.NewHTTPError(http.StatusInternalServerError, "failed to persist order")
	h.expectRollback()

	_, err := h.svc.EvaluateOrder(context.Background(), "p1", cleanOrder())

	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, httperror.GetStatusCode(err))
	assert.Equal(t, CodeOrderPersistFailed, httperror.ToHTTPError(err).Meta[middleware.MetaCode])
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestEvaluateOrder_BeginFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := h.svc.EvaluateOrder(context.Background(), "p1", cleanOrder())

	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, httperror.GetStatusCode(err))
	assert.Equal(t, CodeDuplicateCheckFailed, httperror.ToHTTPError(err).Meta[middleware.MetaCode])
}

func TestEvaluateOrder_SideWriteFailuresAreSkipped(t *testing.T) {
	h := newHarness(t)
	h.customers.err = errors.New("customers unavailable")
	h.addresses.err = errors.New("addresses unavailable")
	h.expectCommit()

	resp, err := h.svc.EvaluateOrder(context.Background(), "p1", cleanOrder())
	require.NoError(t, err)

	assert.Equal(t, models.ActionApprove, resp.Action)
	assert.Len(t, h.orders.inserted, 1)
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestEvaluateOrder_DedupeFailureContinues(t *testing.T) {
	h := newHarness(t)
	h.dedupe.err = errors.New("dedupe unavailable")
	h.expectCommit()

	resp, err := h.svc.EvaluateOrder(context.Background(), "p1", cleanOrder())
	require.NoError(t, err)

	assert.Equal(t, 0, resp.RiskScore)
	assert.Equal(t, models.SuggestedActionCreateNew, resp.CustomerDedupe.SuggestedAction)
	assert.Empty(t, resp.AddressDedupe.Matches)
}

func TestEvaluateOrder_RuleSourceDownStillRunsBuiltIns(t *testing.T) {
	h := newHarness(t)
	h.source.err = errors.New("rules table unavailable")
	h.usePOBox()
	h.expectCommit()

	req := cleanOrder()
	req.PaymentMethod = models.PaymentMethodCOD

	resp, err := h.svc.EvaluateOrder(context.Background(), "p1", req)
	require.NoError(t, err)

	assert.Equal(t, models.ActionHold, resp.Action)
	assert.Equal(t, string(rules.DegradedRuleSource), resp.RulesEvaluation.Degraded)
	assert.Contains(t, resp.ReasonCodes, risk.ReasonRulesDegraded)
	assert.Contains(t, ruleIDs(resp.RulesEvaluation.TriggeredRules), rules.BuiltInHoldPOBoxCOD)
}

func TestEvaluateOrder_EnrichmentFailureFallsBackToThresholds(t *testing.T) {
	h := newHarness(t)
	h.email.testErr = errors.New("resolver unavailable")
	h.orders.existing = &models.Order{ID: "row-1"}
	h.expectCommit()

	resp, err := h.svc.EvaluateOrder(context.Background(), "p1", cleanOrder())
	require.NoError(t, err)

	assert.Equal(t, 50, resp.RiskScore)
	assert.Equal(t, models.ActionHold, resp.Action)
	assert.Equal(t, string(rules.DegradedEnrichment), resp.RulesEvaluation.Degraded)
	assert.Nil(t, resp.RulesEvaluation.FinalDecision)
	assert.Contains(t, resp.ReasonCodes, risk.ReasonRulesDegraded)
}

func TestEvaluateOrder_ApproveRuleWins(t *testing.T) {
	h := newHarness(t)
	h.source.rules = []models.Rule{{
		ID:        "allow-cod",
		Name:      "Allow COD",
		Condition: json.RawMessage(`{"op":"eq","args":[{"op":"field","path":"transaction.payment_method"},{"op":"literal","value":"cod"}]}`),
		Action:    models.ActionApprove,
		Priority:  10,
		Enabled:   true,
	}}
	h.usePOBox()
	h.expectCommit()

	req := cleanOrder()
	req.PaymentMethod = models.PaymentMethodCOD

	resp, err := h.svc.EvaluateOrder(context.Background(), "p1", req)
	require.NoError(t, err)

	assert.Equal(t, 50, resp.RiskScore)
	assert.Equal(t, models.ActionApprove, resp.Action)
	assert.ElementsMatch(t, []string{rules.BuiltInHoldPOBoxCOD, "allow-cod"}, ruleIDs(resp.RulesEvaluation.TriggeredRules))
}

func TestEvaluateOrder_ReturningCustomerAddress(t *testing.T) {
	addressMatch := models.DedupeResult{
		Matches: []models.Match{{
			ID:              "addr-1",
			SimilarityScore: 0.8,
			MatchType:       models.MatchTypeExactPostal,
		}},
		SuggestedAction: models.SuggestedActionReview,
	}

	tests := []struct {
		name      string
		returning bool
		score     int
		tagged    bool
	}{
		{name: "returning customer is not penalized", returning: true, score: 0, tagged: false},
		{name: "unknown shipper is penalized", returning: false, score: 15, tagged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.dedupe.address = addressMatch
			h.dedupe.returning = tt.returning
			h.expectCommit()

			resp, err := h.svc.EvaluateOrder(context.Background(), "p1", cleanOrder())
			require.NoError(t, err)

			assert.Equal(t, tt.score, resp.RiskScore)
			if tt.tagged {
				assert.Contains(t, resp.Tags, risk.TagPotentialDuplicateAddress)
			} else {
				assert.NotContains(t, resp.Tags, risk.TagPotentialDuplicateAddress)
			}
			assert.Equal(t, models.SuggestedActionReview, resp.AddressDedupe.SuggestedAction)
		})
	}
}

func TestEvaluateOrder_VeryLargeOrderIsHeld(t *testing.T) {
	h := newHarness(t)
	h.expectCommit()

	req := cleanOrder()
	req.TotalAmount = decimal.NewFromInt(150000)

	resp, err := h.svc.EvaluateOrder(context.Background(), "p1", req)
	require.NoError(t, err)

	assert.Equal(t, 15, resp.RiskScore)
	assert.Equal(t, models.ActionHold, resp.Action)
	assert.Contains(t, resp.ReasonCodes, risk.ReasonHighValue)
	assert.Contains(t, resp.ReasonCodes, risk.ReasonVeryHighValue)
}

func TestEvaluateOrder_RequestIDAndRouteFromContext(t *testing.T) {
	h := newHarness(t)
	h.expectCommit()

	ctx := ctxmiddleware.SetRequestID(context.Background(), "req-1")
	ctx = ctxmiddleware.SetRoute(ctx, "/api/v1/orders/evaluate")

	resp, err := h.svc.EvaluateOrder(ctx, "p1", cleanOrder())
	require.NoError(t, err)

	assert.Equal(t, "req-1", resp.RequestID)
	require.Len(t, h.audit.events, 1)
	assert.Equal(t, "req-1", h.audit.events[0].RequestID)
}

func TestEvaluateOrder_CancelledCallerStillCompletes(t *testing.T) {
	h := newHarness(t)
	h.expectCommit()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := h.svc.EvaluateOrder(ctx, "p1", cleanOrder())
	require.NoError(t, err)

	assert.Equal(t, models.ActionApprove, resp.Action)
	assert.Len(t, h.orders.inserted, 1)
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestTestRules_AdhocRules(t *testing.T) {
	h := newHarness(t)
	h.usePOBox()

	addr := cleanOrder().ShippingAddress
	resp, err := h.svc.TestRules(context.Background(), "p1", models.TestRulesRequest{
		Customer:        cleanOrder().Customer,
		ShippingAddress: &addr,
		TotalAmount:     decimal.NewFromInt(2500),
		Currency:        "USD",
		PaymentMethod:   models.PaymentMethodCard,
		Rules: []models.CreateRuleRequest{{
			Name:      "Block big orders",
			Condition: json.RawMessage(`{"op":"gt","args":[{"op":"field","path":"transaction.amount"},{"op":"literal","value":2000}]}`),
			Action:    models.ActionBlock,
		}},
	})
	require.NoError(t, err)

	// 30 PO box + 15 high value
	assert.Equal(t, 45, resp.RiskScore)
	assert.Equal(t, rules.RiskLevelMedium, resp.RiskLevel)
	require.NotNil(t, resp.FinalDecision)
	assert.Equal(t, models.ActionBlock, *resp.FinalDecision)
	assert.Equal(t, []string{"test_rule_1"}, ruleIDs(resp.TriggeredRules))
	assert.Empty(t, h.orders.inserted)
	assert.Empty(t, h.audit.events)
}

func TestTestRules_ProjectRules(t *testing.T) {
	h := newHarness(t)
	h.source.rules = []models.Rule{{
		ID:        "hold-new-session",
		Condition: json.RawMessage(`{"op":"eq","args":[{"op":"field","path":"$channel"},{"op":"literal","value":"mobile"}]}`),
		Action:    models.ActionHold,
		Enabled:   true,
	}}

	resp, err := h.svc.TestRules(context.Background(), "p1", models.TestRulesRequest{
		Customer:      cleanOrder().Customer,
		TotalAmount:   decimal.NewFromInt(10),
		PaymentMethod: models.PaymentMethodCard,
		Metadata:      map[string]any{"channel": "mobile"},
	})
	require.NoError(t, err)

	require.NotNil(t, resp.FinalDecision)
	assert.Equal(t, models.ActionHold, *resp.FinalDecision)
	assert.Equal(t, []string{"hold-new-session"}, ruleIDs(resp.TriggeredRules))
}

func TestTestRules_InvalidCondition(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.TestRules(context.Background(), "p1", models.TestRulesRequest{
		Rules: []models.CreateRuleRequest{{
			Name:      "broken",
			Condition: json.RawMessage(`{"op":"nope"}`),
			Action:    models.ActionBlock,
		}},
	})

	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}
