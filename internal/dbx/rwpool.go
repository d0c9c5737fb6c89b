package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenk/backoff"
)

// TxStage identifies where in a transaction's lifecycle a failure happened.
type TxStage int

const (
	TxStageAcquire TxStage = iota
	TxStageWorkload
	TxStageCommit
	TxStageRollback
)

func (s TxStage) String() string {
	switch s {
	case TxStageAcquire:
		return "acquire"
	case TxStageWorkload:
		return "workload"
	case TxStageCommit:
		return "commit"
	case TxStageRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// TxError attributes a transaction failure to a lifecycle stage and, for
// writes, to the operation that held the lease. When a rollback itself fails
// the workload error that triggered it is preserved as text in Workload,
// since the structured error would otherwise be lost.
type TxError struct {
	Stage     TxStage
	Write     bool
	Operation string
	Workload  string
	Err       error
}

func (e *TxError) Error() string {
	kind := "read"
	if e.Write {
		kind = "write"
	}
	var msg string
	switch e.Stage {
	case TxStageAcquire:
		msg = fmt.Sprintf("failed to acquire a %s transaction", kind)
	case TxStageWorkload:
		msg = fmt.Sprintf("%s transaction workload failed", kind)
	case TxStageCommit:
		msg = fmt.Sprintf("failed to commit %s transaction", kind)
	case TxStageRollback:
		msg = fmt.Sprintf("failed to roll back %s transaction", kind)
	default:
		msg = fmt.Sprintf("%s transaction failed", kind)
	}
	if e.Operation != "" {
		msg += fmt.Sprintf(" for operation %q", e.Operation)
	}
	if e.Workload != "" {
		msg += fmt.Sprintf(" (after workload error: %s)", e.Workload)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// WorkloadFailed reports whether the workload itself returned the error, as
// opposed to an infrastructure failure around it. Only for workload failures
// does Unwrap yield an error the caller constructed.
func (e *TxError) WorkloadFailed() bool {
	return e.Stage == TxStageWorkload
}

// RWPool hands out transactions over a shared *sql.DB with single-writer
// semantics: any number of read transactions may run concurrently, but only
// one write transaction is ever in flight. A second writer blocks until the
// first one resolves. Every transaction is driven to a commit or a rollback
// before its lease is released, even on cancellation or panic.
type RWPool struct {
	db       *sql.DB
	writeSem chan struct{}

	// ReadTxOptions and WriteTxOptions are passed to BeginTx. Nil means the
	// driver default. The Postgres deployment sets repeatable-read here so
	// workloads observe one consistent snapshot.
	ReadTxOptions  *sql.TxOptions
	WriteTxOptions *sql.TxOptions
}

func NewRWPool(db *sql.DB) *RWPool {
	return &RWPool{db: db, writeSem: make(chan struct{}, 1)}
}

// DB exposes the underlying handle for code that runs outside transactions,
// such as migrations at startup.
func (p *RWPool) DB() *sql.DB {
	return p.db
}

func (p *RWPool) Close() error {
	return p.db.Close()
}

// RunInReadTransaction runs workload inside a read transaction.
func (p *RWPool) RunInReadTransaction(ctx context.Context, workload func(ctx context.Context, tx DBTX) error) error {
	tx, err := p.begin(ctx, p.ReadTxOptions)
	if err != nil {
		return &TxError{Stage: TxStageAcquire, Err: err}
	}
	return p.resolve(ctx, tx, workload, false, "")
}

// RunInWriteTransaction acquires the write lease and runs workload inside a
// write transaction. The operation name is carried into any resulting TxError
// so failures can be attributed in logs.
func (p *RWPool) RunInWriteTransaction(ctx context.Context, operation string, workload func(ctx context.Context, tx DBTX) error) error {
	select {
	case p.writeSem <- struct{}{}:
	case <-ctx.Done():
		return &TxError{Stage: TxStageAcquire, Write: true, Operation: operation, Err: ctx.Err()}
	}
	defer func() { <-p.writeSem }()

	tx, err := p.begin(ctx, p.WriteTxOptions)
	if err != nil {
		return &TxError{Stage: TxStageAcquire, Write: true, Operation: operation, Err: err}
	}
	return p.resolve(ctx, tx, workload, true, operation)
}

// begin starts a transaction, retrying with exponential backoff while the
// context allows it. Acquisition is the only stage where a retry is safe.
func (p *RWPool) begin(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	var tx *sql.Tx
	attempt := func() error {
		var err error
		tx, err = p.db.BeginTx(ctx, opts)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 1 * time.Second
	bo.MaxElapsedTime = 5 * time.Second

	if err := backoff.Retry(attempt, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return tx, nil
}

// resolve runs the workload and drives the transaction to exactly one of
// commit or rollback. Panics roll the transaction back and are rethrown.
func (p *RWPool) resolve(ctx context.Context, tx *sql.Tx, workload func(ctx context.Context, tx DBTX) error, write bool, operation string) error {
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if werr := workload(ctx, tx); werr != nil {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			return &TxError{Stage: TxStageRollback, Write: write, Operation: operation, Workload: werr.Error(), Err: rerr}
		}
		return &TxError{Stage: TxStageWorkload, Write: write, Operation: operation, Err: werr}
	}

	if cerr := tx.Commit(); cerr != nil {
		return &TxError{Stage: TxStageCommit, Write: write, Operation: operation, Err: cerr}
	}
	return nil
}
