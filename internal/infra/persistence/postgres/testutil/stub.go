// Package testutil provides a stub database understanding the statements the
// shared document table issues, so postgres store tests run without a server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// StubRow is one stored document row.
type StubRow struct {
	Name    *string
	Payload string
}

// StubConn records statements and keeps documents keyed by collection and id.
type StubConn struct {
	mu         sync.Mutex
	Execs      []string
	Docs       map[string]map[string]StubRow
	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	RowsErr    error
}

var stubSeq struct {
	sync.Mutex
	n int
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Docs: make(map[string]map[string]StubRow)}
	stubSeq.Lock()
	stubSeq.n++
	name := fmt.Sprintf("stubpg%d_%d", time.Now().UnixNano(), stubSeq.n)
	stubSeq.Unlock()
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

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

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

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "CREATE"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(upper, "INSERT INTO DOCUMENTS"):
		if len(args) != 4 {
			return nil, fmt.Errorf("insert expects 4 args, got %d", len(args))
		}
		coll, id := str(args[0]), str(args[1])
		row := StubRow{Payload: str(args[3])}
		if args[2].Value != nil {
			name := str(args[2])
			row.Name = &name
		}
		if c.Docs[coll] == nil {
			c.Docs[coll] = make(map[string]StubRow)
		}
		c.Docs[coll][id] = row
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(upper, "DELETE FROM DOCUMENTS"):
		if len(args) != 2 {
			return nil, fmt.Errorf("delete expects 2 args, got %d", len(args))
		}
		coll, id := str(args[0]), str(args[1])
		if _, ok := c.Docs[coll][id]; !ok {
			return driver.RowsAffected(0), nil
		}
		delete(c.Docs[coll], id)
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unsupported statement: %s", query)
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailExec {
		return nil, fmt.Errorf("query fail")
	}
	lower := strings.ToLower(query)
	if len(args) < 2 {
		return nil, fmt.Errorf("select expects collection and key args: %s", query)
	}
	coll := str(args[0])
	var ids []string
	switch {
	case strings.Contains(lower, "id <>"):
		for _, id := range c.sortedIDs(coll) {
			row := c.Docs[coll][id]
			if row.Name != nil && *row.Name == str(args[1]) && id != str(args[2]) {
				ids = append(ids, id)
				break
			}
		}
		return c.rows([]string{"id"}, coll, ids), nil
	case strings.Contains(lower, "and id ="):
		if _, ok := c.Docs[coll][str(args[1])]; ok {
			ids = append(ids, str(args[1]))
		}
	case strings.Contains(lower, "and name ="):
		for _, id := range c.sortedIDs(coll) {
			if row := c.Docs[coll][id]; row.Name != nil && *row.Name == str(args[1]) {
				ids = append(ids, id)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	return c.rows([]string{"id", "payload"}, coll, ids), nil
}

func (c *StubConn) sortedIDs(coll string) []string {
	ids := make([]string, 0, len(c.Docs[coll]))
	for id := range c.Docs[coll] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *StubConn) rows(cols []string, coll string, ids []string) *stubRows {
	values := make([][]driver.Value, 0, len(ids))
	for _, id := range ids {
		if len(cols) == 1 {
			values = append(values, []driver.Value{id})
			continue
		}
		values = append(values, []driver.Value{id, []byte(c.Docs[coll][id].Payload)})
	}
	return &stubRows{cols: cols, rows: values, err: c.RowsErr}
}

func str(v driver.NamedValue) string {
	switch t := v.Value.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	}
	return fmt.Sprint(v.Value)
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
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
