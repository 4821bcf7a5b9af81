// Package postgres provides a Postgres-backed ledger that mirrors the
// in-memory commit semantics while persisting committed state through pgx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"emissiontrade/internal/ledger"
)

var _ ledger.Backend = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/emissiontrade?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// OverrideSQLOpen swaps the database opener for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}

// Store wraps the in-memory ledger and writes each committed write-set
// through to Postgres.
type Store struct {
	*ledger.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed ledger using the provided DSN (falls back
// to defaultDSN), ensures the schema, and hydrates the in-memory ledger from
// any persisted state.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS ledger (
		key TEXT PRIMARY KEY,
		version BIGINT NOT NULL,
		value BYTEA NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create ledger table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (
		name TEXT PRIMARY KEY,
		height BIGINT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create meta table: %w", err)
	}
	s := &Store{Store: ledger.NewStore(), db: db}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	var height uint64
	err := s.db.QueryRowContext(ctx, `SELECT height FROM meta WHERE name = 'ledger'`).Scan(&height)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load height: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, version, value FROM ledger`)
	if err != nil {
		return fmt.Errorf("select ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.Key, &e.Version, &e.Value); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate ledger: %w", err)
	}
	s.Store.Import(entries, height)
	return nil
}

// Commit applies the read-write set in memory, then persists the writes.
func (s *Store) Commit(rw ledger.ReadWriteSet) (uint64, error) {
	height, err := s.Store.Commit(rw)
	if err != nil {
		return height, err
	}
	if err := s.persist(context.Background(), rw, height); err != nil {
		return height, err
	}
	return height, nil
}

func (s *Store) persist(ctx context.Context, rw ledger.ReadWriteSet, height uint64) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for key, value := range rw.Writes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger(key,version,value) VALUES($1,$2,$3)
			 ON CONFLICT(key) DO UPDATE SET version=excluded.version, value=excluded.value`,
			key, height, value,
		); err != nil {
			retErr = fmt.Errorf("upsert key: %w", err)
			return retErr
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta(name,height) VALUES('ledger',$1)
		 ON CONFLICT(name) DO UPDATE SET height=excluded.height`,
		height,
	); err != nil {
		retErr = fmt.Errorf("upsert height: %w", err)
		return retErr
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }
