// Package txfake provides an in-memory stand-in for pgxpool.Pool transactions so that
// services can be unit tested without PostgreSQL. Transactions are serialized by a
// single lock, and fake stores stage writes with OnCommit so a rollback discards them.
package txfake

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Pool implements db.TxBeginner.
type Pool struct {
	mu sync.Mutex

	statsMu    sync.Mutex
	BeginErr   error
	CommitErr  error
	Begun      int
	Committed  int
	RolledBack int
}

func (p *Pool) Begin(ctx context.Context) (pgx.Tx, error) {
	p.statsMu.Lock()
	beginErr := p.BeginErr
	p.statsMu.Unlock()
	if beginErr != nil {
		return nil, beginErr
	}

	p.mu.Lock()
	p.statsMu.Lock()
	p.Begun++
	p.statsMu.Unlock()
	return &Tx{pool: p}, nil
}

// Stats returns counters under the lock, for assertions after concurrent use.
func (p *Pool) Stats() (begun, committed, rolledBack int) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.Begun, p.Committed, p.RolledBack
}

// Tx is a fake pgx.Tx. Only Commit and Rollback do anything.
type Tx struct {
	pool     *Pool
	done     bool
	onCommit []func()
}

// OnCommit registers fn to run if and when the transaction commits.
func (t *Tx) OnCommit(fn func()) {
	t.onCommit = append(t.onCommit, fn)
}

// Stage registers fn on tx when it is a *Tx, otherwise runs it immediately.
func Stage(tx pgx.Tx, fn func()) {
	if ft, ok := tx.(*Tx); ok {
		ft.OnCommit(fn)
		return
	}
	fn()
}

func (t *Tx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("txfake: nested transactions are not supported")
}

func (t *Tx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	defer t.pool.mu.Unlock()

	t.pool.statsMu.Lock()
	commitErr := t.pool.CommitErr
	if commitErr == nil {
		t.pool.Committed++
	} else {
		t.pool.RolledBack++
	}
	t.pool.statsMu.Unlock()
	if commitErr != nil {
		return commitErr
	}

	for _, fn := range t.onCommit {
		fn()
	}
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.pool.statsMu.Lock()
	t.pool.RolledBack++
	t.pool.statsMu.Unlock()
	t.pool.mu.Unlock()
	return nil
}

func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (t *Tx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (t *Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (t *Tx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (t *Tx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (t *Tx) Conn() *pgx.Conn {
	return nil
}
