package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/dialect"
	"github.com/syssam/objstore/dialect/sql/sqlgraph"
)

// CommitHook runs after a transaction committed.
type CommitHook func(context.Context)

// txn is the transaction of one store operation.
type txn struct {
	dialect.Tx
	ctx context.Context
	op  string

	mu       sync.Mutex
	onCommit []CommitHook
}

// OnCommit adds a hook to call after a successful commit.
func (tx *txn) OnCommit(h CommitHook) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.onCommit = append(tx.onCommit, h)
}

func (tx *txn) committed() {
	tx.mu.Lock()
	hooks := append([]CommitHook(nil), tx.onCommit...)
	tx.mu.Unlock()
	for _, h := range hooks {
		h(tx.ctx)
	}
}

// withTx runs fn in a new transaction. The transaction is committed when fn
// returns nil and rolled back otherwise, including when fn panics. Driver
// errors are returned as objstore.TransactionError.
func (s *Store) withTx(ctx context.Context, op string, fn func(*txn) error) error {
	tx, err := s.driver.Tx(ctx)
	if err != nil {
		return objstore.NewTransactionError(op, err)
	}
	t := &txn{Tx: tx, ctx: ctx, op: op}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(t); err != nil {
		// A canceled context has already aborted the transaction.
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = errors.Join(err, &objstore.RollbackError{Err: rerr})
		}
		s.logger.WarnContext(ctx, "transaction rolled back", "op", op, "error", err)
		return wrapError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return objstore.NewTransactionError(op, sqlgraph.Classify(err))
	}
	t.committed()
	return nil
}

// kinds lists the error kinds reported to callers as is.
var kinds = []error{
	objstore.ErrSchemaNotFound,
	objstore.ErrSchemaAlreadyExists,
	objstore.ErrInvalidColumnDefinition,
	objstore.ErrUnsupportedOperation,
	objstore.ErrColumnInUse,
	objstore.ErrUnknownColumn,
	objstore.ErrValidationFailed,
	objstore.ErrNotNullViolation,
	objstore.ErrCoercionFailed,
	objstore.ErrUniqueConstraintMissing,
	objstore.ErrTransactionFailed,
	objstore.ErrInstanceNotFound,
}

// wrapError returns err as a TransactionError unless it already carries
// one of the store error kinds.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return err
		}
	}
	return objstore.NewTransactionError(op, sqlgraph.Classify(err))
}
