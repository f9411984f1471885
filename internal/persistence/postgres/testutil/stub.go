// Package testutil provides an in-memory stub database driver emulating the
// records table for postgres store tests, so the store's SQL paths run
// without a live server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
)

var stubSeq uint64

// RecordKey addresses one stub row.
type RecordKey struct {
	EntityType string
	ID         string
}

// RecordRow is the stored shape of one stub row.
type RecordRow struct {
	Operator string
	Version  int64
	Payload  []byte
}

// StubConn is an in-memory records table plus failure toggles.
type StubConn struct {
	Rows  map[RecordKey]RecordRow
	Execs []string

	FailPing   bool
	FailBegin  bool
	FailExec   bool
	FailQuery  bool
	FailCommit bool
}

// NewStubDB registers a stub driver under a unique name and opens a sql.DB
// over it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Rows: make(map[RecordKey]RecordRow)}
	name := fmt.Sprintf("stubpg%d", atomic.AddUint64(&stubSeq, 1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext. It understands the schema
// bootstrap plus the store's insert, update, and delete statements.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "CREATE TABLE"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(upper, "INSERT INTO RECORDS"):
		if len(args) != 5 {
			return nil, fmt.Errorf("insert: want 5 args, got %d", len(args))
		}
		key := RecordKey{EntityType: asString(args[0]), ID: asString(args[1])}
		if _, exists := c.Rows[key]; exists {
			return nil, fmt.Errorf("duplicate key %s/%s", key.EntityType, key.ID)
		}
		c.Rows[key] = RecordRow{Operator: asString(args[2]), Version: asInt64(args[3]), Payload: asBytes(args[4])}
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(upper, "UPDATE RECORDS"):
		if len(args) != 5 {
			return nil, fmt.Errorf("update: want 5 args, got %d", len(args))
		}
		key := RecordKey{EntityType: asString(args[3]), ID: asString(args[4])}
		if _, exists := c.Rows[key]; !exists {
			return driver.RowsAffected(0), nil
		}
		c.Rows[key] = RecordRow{Operator: asString(args[0]), Version: asInt64(args[1]), Payload: asBytes(args[2])}
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(upper, "DELETE FROM RECORDS"):
		if len(args) != 2 {
			return nil, fmt.Errorf("delete: want 2 args, got %d", len(args))
		}
		key := RecordKey{EntityType: asString(args[0]), ID: asString(args[1])}
		if _, exists := c.Rows[key]; !exists {
			return driver.RowsAffected(0), nil
		}
		delete(c.Rows, key)
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unexpected exec: %s", query)
}

// QueryContext implements driver.QueryerContext. It understands the store's
// single-row payload lookup and the operator-scoped list query.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "select payload from records"):
		if len(args) != 2 {
			return nil, fmt.Errorf("select: want 2 args, got %d", len(args))
		}
		key := RecordKey{EntityType: asString(args[0]), ID: asString(args[1])}
		rows := &stubRows{cols: []string{"payload"}}
		if row, ok := c.Rows[key]; ok {
			rows.rows = [][]driver.Value{{row.Payload}}
		}
		return rows, nil
	case strings.Contains(lower, "select id, payload from records"):
		if len(args) != 2 {
			return nil, fmt.Errorf("list: want 2 args, got %d", len(args))
		}
		entityType := asString(args[0])
		operator := asString(args[1])
		var ids []string
		for key, row := range c.Rows {
			if key.EntityType == entityType && row.Operator == operator {
				ids = append(ids, key.ID)
			}
		}
		sort.Strings(ids)
		rows := &stubRows{cols: []string{"id", "payload"}}
		for _, id := range ids {
			row := c.Rows[RecordKey{EntityType: entityType, ID: id}]
			rows.rows = append(rows.rows, []driver.Value{id, row.Payload})
		}
		return rows, nil
	}
	return nil, fmt.Errorf("unexpected query: %s", query)
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func asString(v driver.NamedValue) string {
	switch s := v.Value.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func asInt64(v driver.NamedValue) int64 {
	if n, ok := v.Value.(int64); ok {
		return n
	}
	return 0
}

func asBytes(v driver.NamedValue) []byte {
	switch b := v.Value.(type) {
	case []byte:
		out := make([]byte, len(b))
		copy(out, b)
		return out
	case string:
		return []byte(b)
	default:
		return nil
	}
}
