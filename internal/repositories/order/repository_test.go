package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/database"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
)

func newRepo(t *testing.T) (*Repository, database.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db := database.New(sqlx.NewDb(raw, "sqlmock"), logger)
	return NewRepository(db, logger), db, mock
}

func TestLockByOrderID_NotFound(t *testing.T) {
	repo, db, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs("p1:o1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM orders WHERE project_id = \$1 AND order_id = \$2 FOR UPDATE`).
		WithArgs("p1", "o1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "order_id", "risk_score", "status", "created_at"}))
	mock.ExpectCommit()

	err := db.WithTx(context.Background(), nil, func(ctx context.Context, _ database.Tx) error {
		existing, err := repo.LockByOrderID(ctx, "p1", "o1")
		assert.Nil(t, existing)
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockByOrderID_Found(t *testing.T) {
	repo, db, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs("p1:o1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM orders .* FOR UPDATE`).
		WithArgs("p1", "o1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "order_id", "risk_score", "status", "created_at"}).
			AddRow("7b1a", "p1", "o1", 20, "approve", time.Now()))
	mock.ExpectCommit()

	var existing *models.Order
	err := db.WithTx(context.Background(), nil, func(ctx context.Context, _ database.Tx) error {
		var err error
		existing, err = repo.LockByOrderID(ctx, "p1", "o1")
		return err
	})

	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, 20, existing.RiskScore)
	assert.Equal(t, models.ActionApprove, existing.Status)
}

func TestLockByOrderID_RequiresTransaction(t *testing.T) {
	repo, _, _ := newRepo(t)

	_, err := repo.LockByOrderID(context.Background(), "p1", "o1")
	require.Error(t, err)
	assert.Equal(t, 500, httperror.GetStatusCode(err))
}

func TestLockByOrderID_QueryFailure(t *testing.T) {
	repo, db, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs("p1:o1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM orders`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := db.WithTx(context.Background(), nil, func(ctx context.Context, _ database.Tx) error {
		_, err := repo.LockByOrderID(ctx, "p1", "o1")
		return err
	})

	require.Error(t, err)
	assert.Equal(t, 500, httperror.GetStatusCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockByOrderID_AdvisoryLockFailure(t *testing.T) {
	repo, db, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	err := db.WithTx(context.Background(), nil, func(ctx context.Context, _ database.Tx) error {
		_, err := repo.LockByOrderID(ctx, "p1", "o1")
		return err
	})

	require.Error(t, err)
	assert.Equal(t, 500, httperror.GetStatusCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_ConflictIsNoop(t *testing.T) {
	repo, _, mock := newRepo(t)

	mock.ExpectExec(`INSERT INTO orders .* ON CONFLICT \(project_id, order_id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.Insert(context.Background(), models.Order{
		ProjectID:       "p1",
		OrderID:         "o1",
		ShippingAddress: models.Address{Line1: "1 main st", City: "x", PostalCode: "1", Country: "US"},
		TotalAmount:     decimal.RequireFromString("100.00"),
		Currency:        "USD",
		PaymentMethod:   models.PaymentMethodCard,
		Status:          models.ActionApprove,
	})

	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_Failure(t *testing.T) {
	repo, _, mock := newRepo(t)

	mock.ExpectExec(`INSERT INTO orders`).WillReturnError(errors.New("disk full"))

	_, err := repo.Insert(context.Background(), models.Order{ProjectID: "p1", OrderID: "o1"})
	require.Error(t, err)
	assert.Equal(t, 500, httperror.GetStatusCode(err))
}

func TestPriorShipments(t *testing.T) {
	repo, _, mock := newRepo(t)

	mock.ExpectQuery(`SELECT order_id, shipping_postal_code AS postal_code, shipping_line1 AS line1 FROM orders .* ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("p1", "jane@example.com", historyLimit).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "postal_code", "line1"}).
			AddRow("o0", "94043", "1600 amphitheatre pkwy"))

	shipments, err := repo.PriorShipments(context.Background(), "p1", "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, []models.PriorShipment{{OrderID: "o0", PostalCode: "94043", Line1: "1600 amphitheatre pkwy"}}, shipments)
	assert.NoError(t, mock.ExpectationsWereMet())
}
