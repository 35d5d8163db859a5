package address

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/database"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing"
)

var columns = []string{"id", "project_id", "line1", "line2", "city", "state", "postal_code", "country", "address_hash", "created_at"}

const candidateLimit = 200

// Repository handles address persistence. Address rows are immutable.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new address repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FindByHash returns addresses with the given content hash
func (r *Repository) FindByHash(ctx context.Context, projectID, hash string) ([]models.AddressRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "address.Repository.FindByHash")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("addresses")
	sb.Where(
		sb.Equal("project_id", projectID),
		sb.Equal("address_hash", hash),
	)

	return r.list(ctx, "FindByHash", sb.Build)
}

// FindByPostal returns addresses in the same country and postal code
func (r *Repository) FindByPostal(ctx context.Context, projectID, country, postalCode string) ([]models.AddressRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "address.Repository.FindByPostal")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("addresses")
	sb.Where(
		sb.Equal("project_id", projectID),
		sb.Equal("country", country),
		sb.Equal("postal_code", postalCode),
	)
	sb.OrderBy("created_at ASC")
	sb.Limit(candidateLimit)

	return r.list(ctx, "FindByPostal", sb.Build)
}

// FindLine1Candidates returns addresses in the same country and city for
// application-side line1 scoring.
func (r *Repository) FindLine1Candidates(ctx context.Context, projectID, country, city string) ([]models.AddressRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "address.Repository.FindLine1Candidates")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("addresses")
	sb.Where(
		sb.Equal("project_id", projectID),
		sb.Equal("country", country),
		sb.Equal("city", city),
	)
	sb.OrderBy("created_at DESC")
	sb.Limit(candidateLimit)

	return r.list(ctx, "FindLine1Candidates", sb.Build)
}

// InsertIfAbsent inserts a normalized address unless its hash already exists
// for the project.
func (r *Repository) InsertIfAbsent(ctx context.Context, a models.AddressRecord) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "address.Repository.InsertIfAbsent")
	defer span.End()

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("addresses")
	ib.Cols(columns...)
	ib.Values(a.ID, a.ProjectID, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country, a.AddressHash, a.CreatedAt)
	ib.OnConflictDoNothing("project_id", "address_hash")

	query, args := ib.Build()
	result, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"method":     "InsertIfAbsent",
			"project_id": a.ProjectID,
		}).Error("Failed to insert address")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert address")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *Repository) list(ctx context.Context, method string, build func() (string, []any)) ([]models.AddressRecord, error) {
	query, args := build()
	addresses := []models.AddressRecord{}
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &addresses, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"method": method}).Error("Failed to query addresses")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to query addresses")
	}
	return addresses, nil
}
