// Package persistence selects a concrete ledger backend from environment
// configuration.
package persistence

import (
	"fmt"
	"os"

	"emissiontrade/internal/infra/persistence/postgres"
	"emissiontrade/internal/infra/persistence/sqlite"
	"emissiontrade/internal/ledger"
)

// Driver identifies a concrete ledger persistence implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Open selects a ledger backend using environment variables. Defaults to
// sqlite when unset.
//
//	EMTRADE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	EMTRADE_SQLITE_PATH: path to sqlite file (default ./emissiontrade.db)
//	EMTRADE_POSTGRES_DSN: postgres DSN when driver=postgres
//
// The returned close function is a no-op for the memory driver.
func Open() (ledger.Backend, func() error, error) {
	driver := os.Getenv("EMTRADE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverMemory:
		return ledger.NewStore(), func() error { return nil }, nil
	case DriverSQLite:
		s, err := sqlite.NewStore(os.Getenv("EMTRADE_SQLITE_PATH"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case DriverPostgres:
		s, err := postgres.NewStore(os.Getenv("EMTRADE_POSTGRES_DSN"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
