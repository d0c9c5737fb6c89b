package dbx

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupPool(t *testing.T) *RWPool {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.db")
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	require.NoError(t, err)
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(8)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY, v TEXT);`)
	require.NoError(t, err)
	return NewRWPool(db)
}

func countRows(t *testing.T, pool *RWPool) int {
	t.Helper()
	var n int
	err := pool.RunInReadTransaction(context.Background(), func(ctx context.Context, tx DBTX) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM t`).Scan(&n)
	})
	require.NoError(t, err)
	return n
}

func TestRunInWriteTransaction_CommitsOnSuccess(t *testing.T) {
	pool := setupPool(t)

	err := pool.RunInWriteTransaction(context.Background(), "insert_row", func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('ok')`)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 1, countRows(t, pool), "a read after commit must observe the write")
}

func TestRunInWriteTransaction_RollbackOnWorkloadError(t *testing.T) {
	pool := setupPool(t)

	boom := errors.New("boom")
	err := pool.RunInWriteTransaction(context.Background(), "insert_row", func(ctx context.Context, tx DBTX) error {
		_, e := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('fail')`)
		require.NoError(t, e)
		return boom
	})

	require.Error(t, err)
	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, TxStageWorkload, txErr.Stage)
	assert.True(t, txErr.Write)
	assert.Equal(t, "insert_row", txErr.Operation)
	assert.ErrorIs(t, err, boom, "the workload error must stay reachable")

	require.Equal(t, 0, countRows(t, pool), "no mutation may survive a failed workload")
}

func TestRunInWriteTransaction_RollbackOnPanic(t *testing.T) {
	pool := setupPool(t)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = pool.RunInWriteTransaction(context.Background(), "insert_row", func(ctx context.Context, tx DBTX) error {
			_, e := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('panic')`)
			require.NoError(t, e)
			panic("kaput")
		})
	}()

	require.Equal(t, 0, countRows(t, pool), "must rollback on panic")

	// the write lease must have been released
	err := pool.RunInWriteTransaction(context.Background(), "insert_row", func(ctx context.Context, tx DBTX) error {
		_, e := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('after')`)
		return e
	})
	require.NoError(t, err)
}

func TestRunInWriteTransaction_SingleWriter(t *testing.T) {
	pool := setupPool(t)

	var inFlight, overlapped int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.RunInWriteTransaction(context.Background(), "concurrent_insert", func(ctx context.Context, tx DBTX) error {
				if atomic.AddInt32(&inFlight, 1) > 1 {
					atomic.StoreInt32(&overlapped, 1)
				}
				defer atomic.AddInt32(&inFlight, -1)
				time.Sleep(10 * time.Millisecond)
				_, err := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('w')`)
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), atomic.LoadInt32(&overlapped), "two write workloads must never overlap")
	assert.Equal(t, 4, countRows(t, pool))
}

func TestRunInReadTransaction_NoDirtyReads(t *testing.T) {
	pool := setupPool(t)

	err := pool.RunInWriteTransaction(context.Background(), "seed", func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('seed')`)
		return err
	})
	require.NoError(t, err)

	inserted := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- pool.RunInWriteTransaction(context.Background(), "slow_insert", func(ctx context.Context, tx DBTX) error {
			if _, err := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('uncommitted')`); err != nil {
				return err
			}
			close(inserted)
			<-release
			return nil
		})
	}()

	<-inserted
	assert.Equal(t, 1, countRows(t, pool), "a concurrent read must observe the pre-write snapshot")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 2, countRows(t, pool), "a read after commit must observe the write")
}

func TestRunInReadTransaction_ReadsRunConcurrently(t *testing.T) {
	pool := setupPool(t)

	first := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- pool.RunInReadTransaction(context.Background(), func(ctx context.Context, tx DBTX) error {
			close(first)
			<-release
			return nil
		})
	}()

	<-first
	// a second read must not wait for the first one
	finished := make(chan struct{})
	go func() {
		_ = countRows(t, pool)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("a concurrent read transaction appears to be blocked")
	}

	close(release)
	require.NoError(t, <-done)
}

func TestRunInWriteTransaction_AcquireCanceled(t *testing.T) {
	pool := setupPool(t)

	acquired := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- pool.RunInWriteTransaction(context.Background(), "holder", func(ctx context.Context, tx DBTX) error {
			close(acquired)
			<-release
			return nil
		})
	}()

	<-acquired
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.RunInWriteTransaction(ctx, "blocked_writer", func(ctx context.Context, tx DBTX) error {
		return nil
	})

	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, TxStageAcquire, txErr.Stage)
	assert.True(t, txErr.Write)
	assert.Equal(t, "blocked_writer", txErr.Operation)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
}

func TestTxErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *TxError
		want string
	}{
		{
			"read acquire",
			&TxError{Stage: TxStageAcquire, Err: errors.New("db closed")},
			`failed to acquire a read transaction: db closed`,
		},
		{
			"write workload with operation",
			&TxError{Stage: TxStageWorkload, Write: true, Operation: "create_user_token", Err: errors.New("boom")},
			`write transaction workload failed for operation "create_user_token": boom`,
		},
		{
			"commit",
			&TxError{Stage: TxStageCommit, Write: true, Operation: "publish_crate", Err: errors.New("disk full")},
			`failed to commit write transaction for operation "publish_crate": disk full`,
		},
		{
			"rollback keeps workload text",
			&TxError{Stage: TxStageRollback, Write: true, Operation: "publish_crate", Workload: "boom", Err: errors.New("conn lost")},
			`failed to roll back write transaction for operation "publish_crate" (after workload error: boom): conn lost`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestTxStageString(t *testing.T) {
	assert.Equal(t, "acquire", TxStageAcquire.String())
	assert.Equal(t, "workload", TxStageWorkload.String())
	assert.Equal(t, "commit", TxStageCommit.String())
	assert.Equal(t, "rollback", TxStageRollback.String())
}
