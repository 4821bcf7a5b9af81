package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"strings"
	"sync"
	"testing"

	"emissiontrade/internal/ledger"
)

type stubConn struct {
	mu    sync.Mutex
	execs []string
}

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }
func (c *stubConn) Ping(context.Context) error          { return nil }

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return stubTx{}, nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	c.execs = append(c.execs, query)
	c.mu.Unlock()
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	switch {
	case strings.Contains(query, "FROM meta"):
		return emptyRows{columns: []string{"height"}}, nil
	case strings.Contains(query, "FROM ledger"):
		return emptyRows{columns: []string{"key", "version", "value"}}, nil
	}
	return emptyRows{}, nil
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type emptyRows struct{ columns []string }

func (r emptyRows) Columns() []string            { return r.columns }
func (emptyRows) Close() error                   { return nil }
func (emptyRows) Next(dest []driver.Value) error { return io.EOF }

type stubConnector struct{ conn *stubConn }

func (c stubConnector) Connect(context.Context) (driver.Conn, error) { return c.conn, nil }
func (c stubConnector) Driver() driver.Driver                        { return nil }

func newStubDB() (*sql.DB, *stubConn) {
	conn := &stubConn{}
	return sql.OpenDB(stubConnector{conn: conn}), conn
}

func (c *stubConn) executed(fragment string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, stmt := range c.execs {
		if strings.Contains(stmt, fragment) {
			return true
		}
	}
	return false
}

func TestNewStoreEnsuresSchema(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if !conn.executed("CREATE TABLE IF NOT EXISTS ledger") {
		t.Fatalf("ledger table not created, execs: %v", conn.execs)
	}
	if !conn.executed("CREATE TABLE IF NOT EXISTS meta") {
		t.Fatalf("meta table not created, execs: %v", conn.execs)
	}
	if store.Height() != 0 {
		t.Fatalf("fresh store height %d", store.Height())
	}
}

func TestCommitWritesThrough(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("ignored")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	key := ledger.MustComposeKey(ledger.PrefixUser, "alice")
	height, err := store.Commit(ledger.ReadWriteSet{
		Writes: map[string][]byte{key: []byte(`{}`)},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if height != 1 {
		t.Fatalf("height %d", height)
	}
	if !conn.executed("INSERT INTO ledger") {
		t.Fatalf("write not persisted, execs: %v", conn.execs)
	}
	if !conn.executed("INSERT INTO meta") {
		t.Fatalf("height not persisted, execs: %v", conn.execs)
	}
}

func TestCommitConflictSkipsPersistence(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	key := ledger.MustComposeKey(ledger.PrefixUser, "alice")
	if _, err := store.Commit(ledger.ReadWriteSet{
		Reads:  map[string]uint64{key: 5}, // stale, key is absent
		Writes: map[string][]byte{key: []byte(`{}`)},
	}); err == nil {
		t.Fatal("expected conflict")
	}
	if conn.executed("INSERT INTO ledger") {
		t.Fatalf("conflicting write persisted, execs: %v", conn.execs)
	}
}
