// Package evaluation turns an incoming order into a risk score, tags, reason
// codes and an approve/hold/block decision, and persists the result.
package evaluation

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	ctxmiddleware "github.com/guillemso1er/orbitcheck-sub004/pkg/context"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/database"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/metrics"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/middleware"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/risk"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/rules"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/validators"
)

// EvaluateEndpoint is recorded on order audit events when the request carries
// no route.
const EvaluateEndpoint = "/api/v1/orders/evaluate"

// Machine error codes of fatal evaluation failures.
const (
	CodeDuplicateCheckFailed = "duplicate_check_failed"
	CodeOrderPersistFailed   = "order_persist_failed"
)

// Transactor runs fn inside a transaction. database.DB satisfies it.
type Transactor interface {
	WithTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx database.Tx) error) error
}

// OrderStore is the order table. LockByOrderID must run inside the
// transaction carried by ctx.
type OrderStore interface {
	LockByOrderID(ctx context.Context, projectID, orderID string) (*models.Order, error)
	Insert(ctx context.Context, o models.Order) (bool, error)
}

type CustomerWriter interface {
	InsertIfAbsent(ctx context.Context, c models.Customer) (bool, error)
}

type AddressWriter interface {
	InsertIfAbsent(ctx context.Context, a models.AddressRecord) (bool, error)
}

// Deduper is implemented by *dedupe.Matcher.
type Deduper interface {
	DedupeCustomer(ctx context.Context, projectID string, input models.CustomerInput) (models.DedupeResult, error)
	DedupeAddress(ctx context.Context, projectID string, addr models.Address) (models.DedupeResult, error)
	IsReturningCustomerAddress(ctx context.Context, projectID, email, postalCode, line1 string) (bool, error)
}

type EmailValidator interface {
	Validate(ctx context.Context, email string, opts validators.Options) (validators.EmailResult, error)
}

type PhoneValidator interface {
	Validate(ctx context.Context, input validators.PhoneInput, opts validators.Options) (validators.PhoneResult, error)
}

type AddressValidator interface {
	Validate(ctx context.Context, addr models.Address, opts validators.Options) (validators.AddressResult, error)
}

// RuleEvaluator is implemented by *rules.Engine.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, projectID string, data rules.Context) rules.Result
	Run(ctx context.Context, compiled []rules.CompiledRule, data rules.Context) rules.Result
}

// AuditRecorder is implemented by *events.Recorder.
type AuditRecorder interface {
	Record(ctx context.Context, event models.AuditEvent)
}

// Dependencies are the collaborators of a Service.
type Dependencies struct {
	DB        Transactor
	Orders    OrderStore
	Customers CustomerWriter
	Addresses AddressWriter
	Dedupe    Deduper
	Email     EmailValidator
	Phone     PhoneValidator
	Address   AddressValidator
	Rules     RuleEvaluator
	Audit     AuditRecorder
}

// Config contains evaluation settings
type Config struct {
	Thresholds      risk.Thresholds
	TestModeTimeout time.Duration // validator timeout of the rule enrichment pass (default: 500ms)
	Timeout         time.Duration // bound on an evaluation once detached from the caller (default: 30s)
}

// DefaultConfig returns default evaluation configuration
func DefaultConfig() Config {
	return Config{
		Thresholds:      risk.DefaultThresholds(),
		TestModeTimeout: 500 * time.Millisecond,
		Timeout:         30 * time.Second,
	}
}

type Service struct {
	deps   Dependencies
	config Config
	logger ectologger.Logger
}

func NewService(deps Dependencies, config Config, logger ectologger.Logger) *Service {
	defaults := DefaultConfig()
	if config.TestModeTimeout <= 0 {
		config.TestModeTimeout = defaults.TestModeTimeout
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Thresholds.Block <= 0 && config.Thresholds.Hold <= 0 {
		config.Thresholds = defaults.Thresholds
	}
	return &Service{
		deps:   deps,
		config: config,
		logger: logger,
	}
}

// EvaluateOrder scores and persists an order. Only a failed duplicate check
// and a failed order insert are returned as errors; every other failure
// degrades the evaluation and is logged.
func (s *Service) EvaluateOrder(ctx context.Context, projectID string, req models.OrderRequest) (*models.OrderResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "evaluation.Service.EvaluateOrder",
		attribute.String("project_id", projectID),
		attribute.String("order_id", req.OrderID),
	)
	defer span.End()

	start := time.Now()
	requestID := ctxmiddleware.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
		ctx = ctxmiddleware.SetRequestID(ctx, requestID)
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"project_id": projectID,
		"order_id":   req.OrderID,
		"request_id": requestID,
	})

	// From here on a disconnecting caller no longer cancels the evaluation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.Timeout)
	defer cancel()

	var (
		result *evaluated
		code   = CodeDuplicateCheckFailed
	)
	err := s.deps.DB.WithTx(ctx, nil, func(txCtx context.Context, _ database.Tx) error {
		existing, err := s.deps.Orders.LockByOrderID(txCtx, projectID, req.OrderID)
		if err != nil {
			return err
		}

		// Reads and side writes use ctx so a failed lookup cannot abort the
		// transaction that holds the order lock.
		result = s.evaluate(ctx, projectID, req, existing == nil)
		s.persistIdentity(ctx, projectID, req, result)

		code = CodeOrderPersistFailed
		if _, err := s.deps.Orders.Insert(txCtx, result.order(projectID, req)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		log.WithError(err).WithFields(map[string]any{"code": code}).Error("Order evaluation failed")
		metrics.RecordEvaluationFailure(time.Since(start).Seconds())
		tracing.Fail(span, err)

		fatal := fatalError(code, err)
		s.audit(ctx, projectID, requestID, req.OrderID, httperror.GetStatusCode(fatal), []string{}, map[string]any{
			"order_id": req.OrderID,
			"code":     code,
		})
		return nil, fatal
	}

	resp := result.response(req.OrderID, requestID)
	s.audit(ctx, projectID, requestID, req.OrderID, http.StatusOK, resp.ReasonCodes, map[string]any{
		"order_id":         req.OrderID,
		"risk_score":       resp.RiskScore,
		"action":           resp.Action,
		"first_occurrence": result.firstOccurrence,
		"tags":             resp.Tags,
		"rules_degraded":   resp.RulesEvaluation.Degraded,
	})

	metrics.RecordEvaluation(string(resp.Action), result.firstOccurrence, resp.RiskScore, time.Since(start).Seconds())
	log.WithFields(map[string]any{
		"risk_score": resp.RiskScore,
		"action":     resp.Action,
	}).Info("Order evaluated")

	return resp, nil
}

func (s *Service) audit(ctx context.Context, projectID, requestID, orderID string, status int, reasonCodes []string, meta map[string]any) {
	if s.deps.Audit == nil {
		return
	}

	endpoint := ctxmiddleware.GetRoute(ctx)
	if endpoint == "" {
		endpoint = EvaluateEndpoint
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warnf("failed to encode audit meta for order %s", orderID)
		raw = json.RawMessage(`{}`)
	}

	s.deps.Audit.Record(ctx, models.AuditEvent{
		ProjectID:   projectID,
		RequestID:   requestID,
		Type:        models.AuditTypeOrder,
		Endpoint:    endpoint,
		ReasonCodes: reasonCodes,
		Status:      status,
		Meta:        raw,
	})
}

// fatalError turns a failure into a 500 carrying a machine code.
func fatalError(code string, err error) error {
	message := "order evaluation failed"
	if httperror.IsHTTPError(err) {
		message = httperror.ToHTTPError(err).Error()
	}

	fatal := httperror.ToHTTPError(httperror.NewHTTPError(http.StatusInternalServerError, message))
	fatal.Meta = map[string]any{middleware.MetaCode: code}
	return fatal
}
