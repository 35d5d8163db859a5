package rule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/database"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing"
)

var columns = []string{"id", "project_id", "name", "description", "condition", "action", "priority", "enabled", "created_at", "updated_at", "deleted_at"}

// Repository handles project rule persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new rule repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new project rule. The condition must already be validated.
func (r *Repository) Create(ctx context.Context, projectID string, req models.CreateRuleRequest) (*models.Rule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":     "Create",
		"project_id": projectID,
		"name":       req.Name,
	})

	now := time.Now().UTC()
	rule := &models.Rule{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Name:        req.Name,
		Description: req.Description,
		Condition:   req.Condition,
		Action:      req.Action,
		Priority:    req.Priority,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("rules")
	ib.Cols("id", "project_id", "name", "description", "condition", "action", "priority", "enabled", "created_at", "updated_at")
	ib.Values(rule.ID, rule.ProjectID, rule.Name, rule.Description, string(rule.Condition), string(rule.Action), rule.Priority, rule.Enabled, rule.CreatedAt, rule.UpdatedAt)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to create rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create rule")
	}

	log.WithFields(map[string]any{"id": rule.ID}).Info("Created rule")
	return rule, nil
}

// Get retrieves a rule by ID
func (r *Repository) Get(ctx context.Context, projectID, id string) (*models.Rule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("rule %s not found", id))
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("rules")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("project_id", projectID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var rule models.Rule
	if err := r.db.GetContext(ctx, &rule, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("rule %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get rule")
	}

	return &rule, nil
}

// List retrieves all rules of a project, in evaluation order
func (r *Repository) List(ctx context.Context, projectID string) ([]models.Rule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("rules")
	sb.Where(
		sb.Equal("project_id", projectID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("priority DESC", "created_at ASC")

	return r.list(ctx, sb.Build)
}

// ListEnabled retrieves the enabled rules of a project, highest priority first
// and oldest first within a priority.
func (r *Repository) ListEnabled(ctx context.Context, projectID string) ([]models.Rule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.ListEnabled")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("rules")
	sb.Where(
		sb.Equal("project_id", projectID),
		sb.Equal("enabled", true),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("priority DESC", "created_at ASC")

	return r.list(ctx, sb.Build)
}

// Update updates a rule. The condition, when present, must already be validated.
func (r *Repository) Update(ctx context.Context, projectID, id string, req models.UpdateRuleRequest) (*models.Rule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.Update")
	defer span.End()

	existing, err := r.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Description != nil {
		existing.Description = *req.Description
	}
	if len(req.Condition) > 0 {
		existing.Condition = req.Condition
	}
	if req.Action != nil {
		existing.Action = *req.Action
	}
	if req.Priority != nil {
		existing.Priority = *req.Priority
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}
	existing.UpdatedAt = time.Now().UTC()

	ub := database.NewUpdateBuilder()
	ub.Update("rules")
	ub.Set(
		ub.Assign("name", existing.Name),
		ub.Assign("description", existing.Description),
		ub.Assign("condition", string(existing.Condition)),
		ub.Assign("action", string(existing.Action)),
		ub.Assign("priority", existing.Priority),
		ub.Assign("enabled", existing.Enabled),
		ub.Assign("updated_at", existing.UpdatedAt),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("project_id", projectID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update rule")
	}

	return existing, nil
}

// Delete soft deletes a rule
func (r *Repository) Delete(ctx context.Context, projectID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.Delete")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("rule %s not found", id))
	}

	ub := database.NewUpdateBuilder()
	ub.Update("rules")
	ub.Set(ub.Assign("deleted_at", time.Now().UTC()))
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("project_id", projectID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete rule")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("rule %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted rule")
	return nil
}

func (r *Repository) list(ctx context.Context, build func() (string, []any)) ([]models.Rule, error) {
	query, args := build()
	rules := []models.Rule{}
	if err := r.db.SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list rules")
	}
	return rules, nil
}
