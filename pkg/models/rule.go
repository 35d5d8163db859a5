package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the decision attached to a rule or an order.
type Action string

const (
	ActionApprove Action = "approve"
	ActionHold    Action = "hold"
	ActionBlock   Action = "block"
	// ActionReview only appears inside rule engine decisions; orders map it to hold.
	ActionReview Action = "review"
)

// Rule is a project-defined rule. Built-in rules share the shape but have
// no project and are never persisted.
type Rule struct {
	ID          string          `json:"id" db:"id"`
	ProjectID   string          `json:"project_id,omitempty" db:"project_id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Condition   json.RawMessage `json:"condition" db:"condition"`
	Action      Action          `json:"action" db:"action"`
	Priority    int             `json:"priority" db:"priority"`
	Enabled     bool            `json:"enabled" db:"enabled"`
	BuiltIn     bool            `json:"built_in" db:"-"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// CreateRuleRequest is the request to create a project rule
type CreateRuleRequest struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Condition   json.RawMessage `json:"condition" validate:"required"`
	Action      Action          `json:"action" validate:"required,oneof=approve hold block"`
	Priority    int             `json:"priority"`
	Enabled     *bool           `json:"enabled,omitempty"`
}

// UpdateRuleRequest is the request to update a project rule
type UpdateRuleRequest struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Condition   json.RawMessage `json:"condition,omitempty"`
	Action      *Action         `json:"action,omitempty" validate:"omitempty,oneof=approve hold block"`
	Priority    *int            `json:"priority,omitempty"`
	Enabled     *bool           `json:"enabled,omitempty"`
}

// TestRulesRequest is a dry-run payload. When Rules is empty the project's
// enabled rules are evaluated.
type TestRulesRequest struct {
	Customer        CustomerInput       `json:"customer"`
	ShippingAddress *Address            `json:"shipping_address,omitempty"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	Currency        string              `json:"currency"`
	PaymentMethod   PaymentMethod       `json:"payment_method" validate:"omitempty,oneof=card cod bank_transfer"`
	SessionID       string              `json:"session_id,omitempty"`
	Metadata        map[string]any      `json:"metadata,omitempty"`
	Rules           []CreateRuleRequest `json:"rules,omitempty" validate:"dive"`
}

// TestRulesResponse reports what a dry run would decide. Nothing is persisted.
type TestRulesResponse struct {
	RiskScore      int      `json:"risk_score"`
	RiskLevel      string   `json:"risk_level"`
	ReasonCodes    []string `json:"reason_codes"`
	TriggeredRules []Rule   `json:"triggered_rules"`
	FinalDecision  *Action  `json:"final_decision"`
	Degraded       string   `json:"degraded,omitempty"`
}
