package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/stock-approval/internal/application/port"
)

type txKeyType struct{}

var txKey txKeyType

// DB is the TransactionManager over a SQLite handle. Repositories read the
// active transaction back out of ctx with ExecutorFor.
type DB struct {
	*sql.DB
	logger       *zap.Logger
	beginRetries int
}

// Option configures a DB
type Option func(*DB)

// WithBeginRetries sets how many extra BEGIN attempts are made when the
// database stays locked past the driver's busy timeout.
func WithBeginRetries(n int) Option {
	return func(db *DB) {
		if n >= 0 {
			db.beginRetries = n
		}
	}
}

// NewDB creates a new transaction manager
func NewDB(sqlDB *sql.DB, logger *zap.Logger, opts ...Option) *DB {
	db := &DB{DB: sqlDB, logger: logger, beginRetries: 2}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// WithTransaction implements port.TransactionManager.
// Nested calls join the transaction already carried by ctx.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if TxFrom(ctx) != nil {
		return fn(ctx)
	}

	tx, err := db.begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) begin(ctx context.Context) (*sql.Tx, error) {
	for attempt := 0; ; attempt++ {
		tx, err := db.BeginTx(ctx, nil)
		if err == nil {
			return tx, nil
		}
		if !isBusy(err) || attempt >= db.beginRetries {
			db.logger.Error("Failed to begin transaction", zap.Error(err), zap.Int("attempt", attempt+1))
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 25 * time.Millisecond):
		}
	}
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// TxFrom retrieves the transaction carried by ctx, if any
func TxFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey).(*sql.Tx)
	return tx
}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ExecutorFor returns the transaction in ctx, or db when there is none
func ExecutorFor(ctx context.Context, db *sql.DB) Executor {
	if tx := TxFrom(ctx); tx != nil {
		return tx
	}
	return db
}

var _ port.TransactionManager = (*DB)(nil)
