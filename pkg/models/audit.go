package models

import (
	"encoding/json"
	"time"
)

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	ID          string          `json:"id" db:"id"`
	ProjectID   string          `json:"project_id" db:"project_id"`
	RequestID   string          `json:"request_id" db:"request_id"`
	Type        string          `json:"type" db:"type"`
	Endpoint    string          `json:"endpoint" db:"endpoint"`
	ReasonCodes []string        `json:"reason_codes" db:"reason_codes"`
	Status      int             `json:"status" db:"status"`
	Meta        json.RawMessage `json:"meta" db:"meta"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

const (
	AuditTypeOrder      = "order"
	AuditTypeValidation = "validation"
	AuditTypeDedupe     = "dedupe"
	AuditTypeRule       = "rule"
)
