package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod values accepted on an order.
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodCOD          PaymentMethod = "cod"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// OrderRequest is an already-parsed order submitted for evaluation.
type OrderRequest struct {
	OrderID         string          `json:"order_id" validate:"required"`
	Customer        CustomerInput   `json:"customer"`
	ShippingAddress Address         `json:"shipping_address" validate:"required"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency" validate:"required,len=3"`
	PaymentMethod   PaymentMethod   `json:"payment_method" validate:"required,oneof=card cod bank_transfer"`
	SessionID       string          `json:"session_id,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
}

// Order is the persisted order row. It is written once and never mutated.
type Order struct {
	ID              string          `json:"id" db:"id"`
	ProjectID       string          `json:"project_id" db:"project_id"`
	OrderID         string          `json:"order_id" db:"order_id"`
	CustomerEmail   string          `json:"customer_email" db:"customer_email"`
	CustomerPhone   string          `json:"customer_phone" db:"customer_phone"`
	ShippingAddress Address         `json:"shipping_address" db:"-"`
	TotalAmount     decimal.Decimal `json:"total_amount" db:"total_amount"`
	Currency        string          `json:"currency" db:"currency"`
	PaymentMethod   PaymentMethod   `json:"payment_method" db:"payment_method"`
	RiskScore       int             `json:"risk_score" db:"risk_score"`
	Status          Action          `json:"status" db:"status"`
	ReasonCodes     []string        `json:"reason_codes" db:"-"`
	Tags            []string        `json:"tags" db:"-"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// PriorShipment is the slice of order history used by the returning
// customer check.
type PriorShipment struct {
	OrderID    string `db:"order_id"`
	PostalCode string `db:"postal_code"`
	Line1      string `db:"line1"`
}

// RulesEvaluation is the rules block of an order response.
type RulesEvaluation struct {
	TriggeredRules []Rule  `json:"triggered_rules"`
	FinalDecision  *Action `json:"final_decision"`
	Degraded       string  `json:"degraded,omitempty"`
}

// OrderValidations groups the validator outputs echoed in the response.
type OrderValidations struct {
	Email   any `json:"email"`
	Phone   any `json:"phone"`
	Address any `json:"address"`
}

// OrderResponse is the result of evaluating an order.
type OrderResponse struct {
	OrderID         string           `json:"order_id"`
	RiskScore       int              `json:"risk_score"`
	Action          Action           `json:"action"`
	Tags            []string         `json:"tags"`
	ReasonCodes     []string         `json:"reason_codes"`
	CustomerDedupe  DedupeResult     `json:"customer_dedupe"`
	AddressDedupe   DedupeResult     `json:"address_dedupe"`
	Validations     OrderValidations `json:"validations"`
	RulesEvaluation RulesEvaluation  `json:"rules_evaluation"`
	RequestID       string           `json:"request_id"`
}
