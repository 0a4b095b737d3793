// Package warehousetest provides a scripted warehouse connection for tests.
package warehousetest

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn records every statement and answers queries through QueryFunc.
type Conn struct {
	// ExecFunc returns the command tag for a statement. Nil answers "OK".
	ExecFunc func(sql string) (pgconn.CommandTag, error)
	// QueryFunc returns the first row of a query. A nil row means the
	// query returned nothing.
	QueryFunc func(sql string) (*Rows, error)

	mu        sync.Mutex
	execs     []string
	queries   []string
	commits   int
	rollbacks int
	closed    bool
}

// Exec records sql and answers through ExecFunc.
func (c *Conn) Exec(ctx context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if err := ctx.Err(); err != nil {
		return pgconn.CommandTag{}, err
	}
	c.mu.Lock()
	c.execs = append(c.execs, sql)
	c.mu.Unlock()
	if c.ExecFunc != nil {
		return c.ExecFunc(sql)
	}
	return pgconn.NewCommandTag("OK"), nil
}

// Query records sql and answers through QueryFunc.
func (c *Conn) Query(ctx context.Context, sql string, _ ...any) (pgx.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.queries = append(c.queries, sql)
	c.mu.Unlock()
	if c.QueryFunc == nil {
		return &Rows{}, nil
	}
	rows, err := c.QueryFunc(sql)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = &Rows{}
	}
	return rows, nil
}

// Begin starts a recorded transaction.
func (c *Conn) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{conn: c}, nil
}

// Close marks the connection closed.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Execs returns the executed statements in order.
func (c *Conn) Execs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.execs...)
}

// Queries returns the queries in order.
func (c *Conn) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

// Commits returns the number of committed transactions.
func (c *Conn) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

// Rollbacks returns the number of transactions rolled back before commit.
func (c *Conn) Rollbacks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollbacks
}

// Tx is a transaction on a Conn. Only Exec, Commit and Rollback are
// implemented.
type Tx struct {
	pgx.Tx
	conn *Conn
	done bool
}

// Exec runs the statement on the parent connection.
func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.conn.Exec(ctx, sql, args...)
}

// Commit ends the transaction.
func (t *Tx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.conn.mu.Lock()
	t.conn.commits++
	t.conn.mu.Unlock()
	return nil
}

// Rollback ends the transaction unless it was already committed.
func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.conn.mu.Lock()
	t.conn.rollbacks++
	t.conn.mu.Unlock()
	return nil
}

// Rows is a single-row result.
type Rows struct {
	pgx.Rows
	// Row is the only row. Nil means no rows.
	Row []any
	// Columns names the row's values.
	Columns []string
	// Error is returned from Err.
	Error error

	read bool
}

// Row returns a result holding one row.
func Row(values ...any) *Rows {
	return &Rows{Row: values}
}

func (r *Rows) Next() bool {
	if r.read || r.Row == nil {
		return false
	}
	r.read = true
	return true
}

func (r *Rows) Values() ([]any, error) { return r.Row, nil }

func (r *Rows) Err() error { return r.Error }

func (r *Rows) Close() {}

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription {
	fields := make([]pgconn.FieldDescription, len(r.Columns))
	for i, name := range r.Columns {
		fields[i] = pgconn.FieldDescription{Name: name}
	}
	return fields
}
