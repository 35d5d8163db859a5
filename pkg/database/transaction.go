package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type txContextKey struct{}

// Tx is a transaction that can be finished more than once; only the first
// Commit or Rollback reaches the database.
type Tx interface {
	Queryer
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type sqlxTx struct {
	*sqlx.Tx
	logger ectologger.Logger

	mu   sync.Mutex
	done bool
}

func wrapTx(tx *sqlx.Tx, logger ectologger.Logger) *sqlxTx {
	return &sqlxTx{Tx: tx, logger: logger}
}

func begin(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, *sqlxTx, error) {
	raw, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("begin transaction failed")
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}
	tx := wrapTx(raw, logger)
	return context.WithValue(ctx, txContextKey{}, Tx(tx)), tx, nil
}

// GetTx joins the open transaction carried by ctx. Without one it begins a
// transaction the caller owns and returns a ctx that carries it.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if tx, ok := TxFromContext(ctx); ok {
		return ctx, tx, nil
	}
	ctx, tx, err := begin(ctx, logger, db, opts)
	if err != nil {
		return ctx, nil, err
	}
	return ctx, tx, nil
}

func TxFromContext(ctx context.Context) (Tx, bool) {
	tx, _ := ctx.Value(txContextKey{}).(Tx)
	if tx == nil || !tx.IsOpen() {
		return nil, false
	}
	return tx, true
}

// Executor picks the transaction in ctx over db.
func Executor(ctx context.Context, db Queryer) Queryer {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db
}

// WithTx runs fn inside a new transaction. A nil return commits; an error
// or a panic rolls back.
func WithTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions, fn func(ctx context.Context, tx Tx) error) error {
	txCtx, tx, err := begin(ctx, logger, db, opts)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.WithContext(ctx).WithError(rbErr).Warn("rollback failed")
		}
	}()

	if err := fn(txCtx, tx); err != nil {
		return err
	}
	committed = true
	return tx.Commit(ctx)
}

func (t *sqlxTx) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.done
}

// finish marks the transaction done and reports whether this call did it.
func (t *sqlxTx) finish() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (t *sqlxTx) Commit(ctx context.Context) error {
	if !t.finish() {
		return nil
	}
	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("commit failed")
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (t *sqlxTx) Rollback(ctx context.Context) error {
	if !t.finish() {
		return nil
	}
	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("rollback failed")
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}
