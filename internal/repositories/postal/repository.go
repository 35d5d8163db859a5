package postal

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/database"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/validators"
)

// Repository reads the reference postal code dataset.
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

// LookupPostal implements validators.PostalLookup.
func (r *Repository) LookupPostal(ctx context.Context, country, postalCode string) ([]validators.PostalPlace, error) {
	ctx, span := tracing.StartSpan(ctx, "postal.Repository.LookupPostal")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("place_name", "admin_code")
	sb.From("postal_codes")
	sb.Where(
		sb.Equal("country", country),
		sb.Equal("postal_code", postalCode),
	)

	query, args := sb.Build()
	places := []validators.PostalPlace{}
	if err := r.db.SelectContext(ctx, &places, query, args...); err != nil {
		return nil, fmt.Errorf("postal lookup %s/%s: %w", country, postalCode, err)
	}
	return places, nil
}
