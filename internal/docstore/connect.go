package docstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config selects and addresses a backend.
type Config struct {
	// URL is the store address; its scheme selects the backend:
	// mongodb, mongodb+srv, postgres, postgresql, sqlite or dynamodb.
	URL string
	// Database is the database name (MongoDB), schema (PostgreSQL)
	// or table-name prefix (DynamoDB). SQLite ignores it.
	Database string
	// ConnectTimeout bounds connecting and the initial ping.
	ConnectTimeout time.Duration
}

// Connect opens the backend named by cfg.URL and verifies it is reachable.
func Connect(ctx context.Context, cfg Config, opts ...Option) (Store, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	var store Store
	switch strings.ToLower(u.Scheme) {
	case "mongodb", "mongodb+srv":
		var s *MongoStore
		if s, err = OpenMongo(ctx, cfg.URL, cfg.Database, opts...); err == nil {
			store = s
		}
	case "postgres", "postgresql":
		var s *PostgresStore
		if s, err = OpenPostgres(ctx, cfg.URL, cfg.Database, opts...); err == nil {
			store = s
		}
	case "sqlite":
		var s *SQLiteStore
		if s, err = OpenSQLite(ctx, sqlitePath(u), opts...); err == nil {
			store = s
		}
	case "dynamodb":
		var s *DynamoStore
		if s, err = OpenDynamo(ctx, u.Host, cfg.Database, opts...); err == nil {
			store = s
		}
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// sqlitePath maps sqlite://relative/path and sqlite:///abs/path to file paths.
func sqlitePath(u *url.URL) string {
	return u.Host + u.Path
}
