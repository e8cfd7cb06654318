package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// call records one statement the fake pool saw.
type call struct {
	sql  string
	args []any
}

// fakePool implements PgxPool in memory. Scan results are queued per
// QueryRow call; Exec returns the configured tag.
type fakePool struct {
	calls    []call
	execTag  pgconn.CommandTag
	execErr  error
	rowScans [][]any // consumed in order by QueryRow
	rowErr   error
	queryErr error
	tx       *fakeTx
}

func (f *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, call{sql: sql, args: args})
	return f.execTag, f.execErr
}

func (f *fakePool) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.calls = append(f.calls, call{sql: sql, args: args})
	if f.rowErr != nil {
		return &fakeRow{err: f.rowErr}
	}
	if len(f.rowScans) == 0 {
		return &fakeRow{err: pgx.ErrNoRows}
	}
	vals := f.rowScans[0]
	f.rowScans = f.rowScans[1:]
	return &fakeRow{vals: vals}
}

func (f *fakePool) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.calls = append(f.calls, call{sql: sql, args: args})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &emptyRows{}, nil
}

func (f *fakePool) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	if f.tx == nil {
		f.tx = &fakeTx{pool: f}
	}
	return f.tx, nil
}

type fakeRow struct {
	vals []any
	err  error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return errors.New("scan arity mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int:
			*p = r.vals[i].(int)
		case *int64:
			*p = r.vals[i].(int64)
		case *string:
			*p = r.vals[i].(string)
		default:
			return errors.New("unsupported scan dest in fake")
		}
	}
	return nil
}

// emptyRows is a pgx.Rows with no rows; list methods use it.
type emptyRows struct{}

func (*emptyRows) Close()                                       {}
func (*emptyRows) Err() error                                   { return nil }
func (*emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (*emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (*emptyRows) Next() bool                                   { return false }
func (*emptyRows) Scan(...any) error                            { return pgx.ErrNoRows }
func (*emptyRows) Values() ([]any, error)                       { return nil, nil }
func (*emptyRows) RawValues() [][]byte                          { return nil }
func (*emptyRows) Conn() *pgx.Conn                              { return nil }

// fakeTx records statements like the pool and tracks commit/rollback.
type fakeTx struct {
	pool       *fakePool
	calls      []call
	committed  bool
	rolledBack bool
	execErr    error
}

func (t *fakeTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) Commit(context.Context) error          { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}
func (t *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.calls = append(t.calls, call{sql: sql, args: args})
	return pgconn.NewCommandTag("UPDATE 1"), t.execErr
}
func (t *fakeTx) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	t.calls = append(t.calls, call{sql: sql, args: args})
	return &emptyRows{}, nil
}
func (t *fakeTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	t.calls = append(t.calls, call{sql: sql, args: args})
	return t.pool.QueryRow(context.Background(), sql, args...)
}
func (t *fakeTx) Conn() *pgx.Conn { return nil }
