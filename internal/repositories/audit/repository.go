package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/database"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing"
)

// Repository writes the audit trail.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Insert writes one audit event.
func (r *Repository) Insert(ctx context.Context, e models.AuditEvent) error {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.Insert")
	defer span.End()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	codes := e.ReasonCodes
	if codes == nil {
		codes = []string{}
	}
	meta := e.Meta
	if len(meta) == 0 {
		meta = []byte("{}")
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("audit_logs")
	ib.Cols("id", "project_id", "request_id", "type", "endpoint", "reason_codes", "status", "meta", "created_at")
	ib.Values(e.ID, e.ProjectID, e.RequestID, e.Type, e.Endpoint, pq.Array(codes), e.Status, string(meta), e.CreatedAt)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
