// Package database wraps sqlx with context-carried transactions, schema
// migrations and the postgres flavour of go-sqlbuilder.
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

// Queryer is what repositories need from *sqlx.DB or *sqlx.Tx.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
}

type DB interface {
	Queryer
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	PingContext(ctx context.Context) error
	Close() error
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error)
	WithTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Handle is the pooled connection shared by the repositories.
type Handle struct {
	*sqlx.DB
	logger ectologger.Logger
}

func New(db *sqlx.DB, logger ectologger.Logger) *Handle {
	return &Handle{DB: db, logger: logger}
}

// Connect opens the pool and pings it once.
func Connect(ctx context.Context, driver, dsn string, pool PoolConfig, logger ectologger.Logger) (*Handle, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	return New(db, logger), nil
}

func (h *Handle) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error) {
	return GetTx(ctx, h.logger, h, opts)
}

func (h *Handle) WithTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx Tx) error) error {
	return WithTx(ctx, h.logger, h, opts, fn)
}
