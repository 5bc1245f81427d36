package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cyber-digest/pkg/domain"
)

// Backend names a Store implementation
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendMongo    Backend = "mongo"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name
var ErrUnknownBackend = errors.New("unknown store backend")

// Store is the persistent record of every article URL ever accepted.
// The url uniqueness constraint is enforced by the backend itself, so
// concurrent writers racing on one URL get inserted=false, never an error.
type Store interface {
	// Contains reports whether url was recorded by any run
	Contains(ctx context.Context, url string) (bool, error)
	// Record inserts rec; a duplicate url is a no-op reported as inserted=false
	Record(ctx context.Context, rec domain.Record) (inserted bool, err error)
	// Prune deletes rows dated before the cutoff and returns how many went
	Prune(ctx context.Context, before time.Time) (int64, error)
	// All returns every row ordered by date then url
	All(ctx context.Context) ([]domain.Record, error)
	Close(ctx context.Context) error
}

// Open connects to the named backend and ensures its schema
func Open(ctx context.Context, backend Backend, dsn string) (Store, error) {
	switch backend {
	case BackendSQLite, "":
		return OpenSQLite(ctx, dsn)
	case BackendPostgres:
		return OpenPostgres(ctx, PostgresConfig{DSN: dsn, MaxOpenConns: 4})
	case BackendMongo:
		return OpenMongo(ctx, MongoConfig{URI: dsn})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// cutoffDate formats t the way Record.Date is stored so lexical order matches time order
func cutoffDate(t time.Time) string {
	return t.Format(domain.DateLayout)
}
