//go:build integration

package order

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/database"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
)

// startPostgres runs a throwaway postgres and migrates it to the latest schema.
func startPostgres(t *testing.T) *database.Handle {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "orbitcheck",
				"POSTGRES_PASSWORD": "orbitcheck",
				"POSTGRES_DB":       "orbitcheck",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	dsn := fmt.Sprintf("postgres://orbitcheck:orbitcheck@%s:%s/orbitcheck?sslmode=disable", host, port.Port())
	db, err := database.Connect(ctx, "postgres", dsn, database.PoolConfig{MaxOpenConns: 10, MaxIdleConns: 2, ConnMaxLifetime: time.Minute}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrator := database.NewMigrator(logger, database.MigrateOptions{Folder: "../../../db/pg"})
	require.NoError(t, migrator.Postgres(db.DB.DB, "orbitcheck"))
	return db
}

func integrationOrder(orderID string) models.Order {
	return models.Order{
		ProjectID:     "p1",
		OrderID:       orderID,
		CustomerEmail: "jane@example.com",
		ShippingAddress: models.Address{
			Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US",
		},
		TotalAmount:   decimal.RequireFromString("42.00"),
		Currency:      "USD",
		PaymentMethod: models.PaymentMethodCard,
		RiskScore:     10,
		Status:        models.ActionApprove,
	}
}

func TestIntegration_LockSerializesFirstSubmission(t *testing.T) {
	db := startPostgres(t)
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	repo := NewRepository(db, logger)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		start    = make(chan struct{})
		found    int
		inserted int
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := db.WithTx(context.Background(), nil, func(ctx context.Context, _ database.Tx) error {
				existing, err := repo.LockByOrderID(ctx, "p1", "race-1")
				if err != nil {
					return err
				}
				if existing != nil {
					mu.Lock()
					found++
					mu.Unlock()
					return nil
				}
				// Hold the lock long enough for the other submission to queue on it.
				time.Sleep(200 * time.Millisecond)
				ok, err := repo.Insert(ctx, integrationOrder("race-1"))
				if ok {
					mu.Lock()
					inserted++
					mu.Unlock()
				}
				return err
			})
			assert.NoError(t, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, inserted)
	assert.Equal(t, 1, found)

	var count int
	require.NoError(t, db.GetContext(context.Background(), &count, "SELECT count(*) FROM orders WHERE project_id = $1 AND order_id = $2", "p1", "race-1"))
	assert.Equal(t, 1, count)
}

func TestIntegration_InsertConflictDoesNothing(t *testing.T) {
	db := startPostgres(t)
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	repo := NewRepository(db, logger)
	ctx := context.Background()

	first := integrationOrder("dup-1")
	first.RiskScore = 10
	ok, err := repo.Insert(ctx, first)
	require.NoError(t, err)
	assert.True(t, ok)

	second := integrationOrder("dup-1")
	second.RiskScore = 90
	ok, err = repo.Insert(ctx, second)
	require.NoError(t, err)
	assert.False(t, ok)

	var score int
	require.NoError(t, db.GetContext(ctx, &score, "SELECT risk_score FROM orders WHERE project_id = $1 AND order_id = $2", "p1", "dup-1"))
	assert.Equal(t, 10, score)

	shipments, err := repo.PriorShipments(ctx, "p1", "jane@example.com")
	require.NoError(t, err)
	require.Len(t, shipments, 1)
	assert.Equal(t, "12345", shipments[0].PostalCode)
}
