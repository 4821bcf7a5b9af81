// Package sqlite provides a SQLite-backed ledger that mirrors the in-memory
// commit semantics and persists every committed write-set.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"emissiontrade/internal/ledger"
)

var _ ledger.Backend = (*Store)(nil)

// Store wraps the in-memory ledger and writes each committed transaction's
// write-set through to a SQLite table, so the full state and block height
// survive a restart.
type Store struct {
	*ledger.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens or creates the database at path and hydrates the in-memory
// ledger from it.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "emissiontrade.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ledger (
		key TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		value BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create ledger table: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (
		name TEXT PRIMARY KEY,
		height INTEGER NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create meta table: %w", err)
	}
	s := &Store{Store: ledger.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	var height uint64
	err := s.db.QueryRow(`SELECT height FROM meta WHERE name = 'ledger'`).Scan(&height)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load height: %w", err)
	}

	rows, err := s.db.Query(`SELECT key, version, value FROM ledger`)
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

// Commit applies the read-write set in memory, then persists the written
// keys at their new version together with the new height. MVCC conflicts
// surface before anything touches disk.
func (s *Store) Commit(rw ledger.ReadWriteSet) (uint64, error) {
	height, err := s.Store.Commit(rw)
	if err != nil {
		return height, err
	}
	if err := s.persist(rw, height); err != nil {
		return height, err
	}
	return height, nil
}

func (s *Store) persist(rw ledger.ReadWriteSet, height uint64) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for key, value := range rw.Writes {
		if _, err := tx.Exec(
			`INSERT INTO ledger(key,version,value) VALUES(?,?,?)
			 ON CONFLICT(key) DO UPDATE SET version=excluded.version, value=excluded.value`,
			key, height, value,
		); err != nil {
			retErr = fmt.Errorf("upsert key: %w", err)
			return retErr
		}
	}
	if _, err := tx.Exec(
		`INSERT INTO meta(name,height) VALUES('ledger',?)
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

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
