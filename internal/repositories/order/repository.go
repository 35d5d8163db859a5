package order

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/database"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing"
)

// historyLimit bounds the prior orders read for the returning customer check.
const historyLimit = 100

const advisoryLockQuery = "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))"

// Repository handles order persistence. Orders are written once.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new order repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// LockByOrderID serializes evaluations of one order id and selects the
// order row FOR UPDATE. A row lock alone does not cover an order that does
// not exist yet, so a transaction-scoped advisory lock on the
// (project_id, order_id) key is taken first. It must run inside a
// transaction carried by ctx; it returns nil when no row exists.
func (r *Repository) LockByOrderID(ctx context.Context, projectID, orderID string) (*models.Order, error) {
	ctx, span := tracing.StartSpan(ctx, "order.Repository.LockByOrderID")
	defer span.End()

	tx, ok := database.TxFromContext(ctx)
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "order lock requires a transaction")
	}

	if _, err := tx.ExecContext(ctx, advisoryLockQuery, projectID+":"+orderID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project_id": projectID,
			"order_id":   orderID,
		}).Error("Failed to take order lock")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check for duplicate order")
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "project_id", "order_id", "risk_score", "status", "created_at")
	sb.From("orders")
	sb.Where(
		sb.Equal("project_id", projectID),
		sb.Equal("order_id", orderID),
	)
	database.ForUpdate(sb)

	query, args := sb.Build()
	var existing models.Order
	if err := tx.GetContext(ctx, &existing, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project_id": projectID,
			"order_id":   orderID,
		}).Error("Failed to lock order")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check for duplicate order")
	}

	return &existing, nil
}

// Insert writes the order unless (project_id, order_id) already exists. The
// boolean reports whether a row was written.
func (r *Repository) Insert(ctx context.Context, o models.Order) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "order.Repository.Insert")
	defer span.End()

	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	reasonCodes := o.ReasonCodes
	if reasonCodes == nil {
		reasonCodes = []string{}
	}
	tags := o.Tags
	if tags == nil {
		tags = []string{}
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("orders")
	ib.Cols("id", "project_id", "order_id", "customer_email", "customer_phone", "shipping_address",
		"shipping_postal_code", "shipping_line1", "total_amount", "currency", "payment_method",
		"risk_score", "status", "reason_codes", "tags", "created_at")
	ib.Values(o.ID, o.ProjectID, o.OrderID, o.CustomerEmail, o.CustomerPhone, database.NewJSONB(o.ShippingAddress),
		o.ShippingAddress.PostalCode, o.ShippingAddress.Line1, o.TotalAmount, o.Currency, string(o.PaymentMethod),
		o.RiskScore, string(o.Status), pq.Array(reasonCodes), pq.Array(tags), o.CreatedAt)
	ib.OnConflictDoNothing("project_id", "order_id")

	query, args := ib.Build()
	result, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project_id": o.ProjectID,
			"order_id":   o.OrderID,
		}).Error("Failed to insert order")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to persist order")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// PriorShipments returns the shipping postal code and line1 of earlier
// orders placed with the given customer email, newest first.
func (r *Repository) PriorShipments(ctx context.Context, projectID, customerEmail string) ([]models.PriorShipment, error) {
	ctx, span := tracing.StartSpan(ctx, "order.Repository.PriorShipments")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("order_id", "shipping_postal_code AS postal_code", "shipping_line1 AS line1")
	sb.From("orders")
	sb.Where(
		sb.Equal("project_id", projectID),
		sb.Equal("customer_email", customerEmail),
	)
	sb.OrderBy("created_at DESC")
	sb.Limit(historyLimit)

	query, args := sb.Build()
	shipments := []models.PriorShipment{}
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &shipments, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to read order history")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read order history")
	}

	return shipments, nil
}
