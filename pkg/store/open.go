package store

import (
	"context"
	"fmt"

	"github.com/vango-go/vai-wellness/pkg/store/kv"
	"github.com/vango-go/vai-wellness/pkg/store/kv/postgres"
	"github.com/vango-go/vai-wellness/pkg/store/kv/sqlite"
)

// Backend drivers accepted by OpenKV.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OpenKV opens the backend named by driver. dsn is a file path for the
// file and sqlite drivers and a connection string for postgres.
func OpenKV(ctx context.Context, driver, dsn string) (kv.Store, error) {
	switch driver {
	case DriverMemory, "":
		return kv.NewMemory(), nil
	case DriverFile:
		if dsn == "" {
			return nil, fmt.Errorf("store: file driver requires a path")
		}
		f, err := kv.OpenFile(dsn)
		if err != nil {
			return nil, err
		}
		return f, nil
	case DriverSQLite:
		if dsn == "" {
			return nil, fmt.Errorf("store: sqlite driver requires a path")
		}
		s, err := sqlite.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("store: postgres driver requires a DSN")
		}
		s, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}
