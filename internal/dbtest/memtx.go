// Package dbtest provides an in-memory stand-in for a pgx transaction source.
// Transactions are serialized and every mock write registers an undo func, so
// a rolled back transaction leaves in-memory repositories untouched.
package dbtest

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errUnsupported = errors.New("dbtest: SQL is not supported by the in-memory transaction")

// DB hands out one transaction at a time.
type DB struct {
	mu sync.Mutex

	statsMu   sync.Mutex
	commits   int
	rollbacks int
}

func New() *DB { return &DB{} }

func (d *DB) Begin(context.Context) (pgx.Tx, error) {
	d.mu.Lock()
	return &Tx{db: d}, nil
}

// Commits returns how many transactions committed.
func (d *DB) Commits() int {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.commits
}

// Rollbacks returns how many transactions were rolled back before commit.
func (d *DB) Rollbacks() int {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.rollbacks
}

// Tx is a journaled fake of pgx.Tx.
type Tx struct {
	db   *DB
	undo []func()
	done bool
}

// OnRollback registers fn to run if tx rolls back. Writes made outside a
// dbtest transaction (tx nil or a different implementation) are not journaled.
func OnRollback(tx pgx.Tx, fn func()) {
	if t, ok := tx.(*Tx); ok && !t.done {
		t.undo = append(t.undo, fn)
	}
}

func (t *Tx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.undo = nil
	t.db.statsMu.Lock()
	t.db.commits++
	t.db.statsMu.Unlock()
	t.db.mu.Unlock()
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.db.statsMu.Lock()
	t.db.rollbacks++
	t.db.statsMu.Unlock()
	t.db.mu.Unlock()
	return nil
}

func (t *Tx) Begin(context.Context) (pgx.Tx, error) { return nil, errUnsupported }
func (t *Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), errUnsupported
}
func (t *Tx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, errUnsupported }
func (t *Tx) QueryRow(context.Context, string, ...any) pgx.Row        { return errRow{} }
func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errUnsupported
}
func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errUnsupported
}
func (t *Tx) Conn() *pgx.Conn { return nil }

type errRow struct{}

func (errRow) Scan(...any) error { return errUnsupported }
