package customer

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/database"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing"
)

var columns = []string{"id", "project_id", "email", "normalized_email", "phone", "normalized_phone", "first_name", "last_name", "created_at"}

// candidateLimit bounds the rows fetched for application-side name scoring.
const candidateLimit = 200

// Repository handles customer persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new customer repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FindByEmail returns customers with the given normalized email
func (r *Repository) FindByEmail(ctx context.Context, projectID, normalizedEmail string) ([]models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.FindByEmail")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("customers")
	sb.Where(
		sb.Equal("project_id", projectID),
		sb.Equal("normalized_email", normalizedEmail),
	)
	sb.OrderBy("created_at ASC")

	return r.list(ctx, "FindByEmail", sb.Build)
}

// FindByPhone returns customers with the given normalized phone
func (r *Repository) FindByPhone(ctx context.Context, projectID, normalizedPhone string) ([]models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.FindByPhone")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("customers")
	sb.Where(
		sb.Equal("project_id", projectID),
		sb.Equal("normalized_phone", normalizedPhone),
	)
	sb.OrderBy("created_at ASC")

	return r.list(ctx, "FindByPhone", sb.Build)
}

// FindNameCandidates returns customers whose first or last name shares a
// two-letter prefix with the given names. Scoring happens in the caller.
func (r *Repository) FindNameCandidates(ctx context.Context, projectID, firstName, lastName string) ([]models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.FindNameCandidates")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("customers")

	var prefixes []string
	if p := namePrefix(firstName); p != "" {
		prefixes = append(prefixes, sb.Like("lower(first_name)", p+"%"))
	}
	if p := namePrefix(lastName); p != "" {
		prefixes = append(prefixes, sb.Like("lower(last_name)", p+"%"))
	}
	if len(prefixes) == 0 {
		return []models.Customer{}, nil
	}

	sb.Where(
		sb.Equal("project_id", projectID),
		sb.Or(prefixes...),
	)
	sb.OrderBy("created_at DESC")
	sb.Limit(candidateLimit)

	return r.list(ctx, "FindNameCandidates", sb.Build)
}

// InsertIfAbsent inserts the customer unless one with the same normalized
// email already exists for the project. Existing rows are never updated.
func (r *Repository) InsertIfAbsent(ctx context.Context, c models.Customer) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.InsertIfAbsent")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":     "InsertIfAbsent",
		"project_id": c.ProjectID,
	})

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("customers")
	ib.Cols(columns...)
	ib.Values(c.ID, c.ProjectID, c.Email, c.NormalizedEmail, c.Phone, c.NormalizedPhone, c.FirstName, c.LastName, c.CreatedAt)
	ib.OnConflictDoNothing("project_id", "normalized_email")

	query, args := ib.Build()
	result, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		log.WithError(err).Error("Failed to insert customer")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert customer")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *Repository) list(ctx context.Context, method string, build func() (string, []any)) ([]models.Customer, error) {
	query, args := build()
	customers := []models.Customer{}
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &customers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"method": method}).Error("Failed to query customers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to query customers")
	}
	return customers, nil
}

func namePrefix(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	runes := []rune(name)
	if len(runes) < 2 {
		return ""
	}
	return string(runes[:2])
}
