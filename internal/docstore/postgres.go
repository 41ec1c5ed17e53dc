package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUndefinedTable is the SQLSTATE for a missing relation.
const pgUndefinedTable = "42P01"

// PostgresStore keeps each collection in a JSONB table inside one schema.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	opts   storeOptions
	ready  sync.Map // collection -> struct{}
}

// Ensure PostgresStore implements Store at compile time.
var _ Store = (*PostgresStore)(nil)

// OpenPostgres creates a connection pool for connString and verifies it with a ping.
// schema holds the collection tables and is created if missing.
func OpenPostgres(ctx context.Context, connString, schema string, opts ...Option) (*PostgresStore, error) {
	if err := checkCollection(schema); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool, schema: schema, opts: buildOptions(opts)}, nil
}

func (s *PostgresStore) table(collection string) string {
	return pgx.Identifier{s.schema, collection}.Sanitize()
}

func (s *PostgresStore) CreateDocument(ctx context.Context, collection string, fields map[string]any) (Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := s.ensureOnce(ctx, collection); err != nil {
		return nil, err
	}

	data := userFields(fields)
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	now := s.opts.timestamp()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table(collection)+` (id, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		id.String(), body, now,
	)
	if err != nil {
		return nil, err
	}
	return stamped(data, id.String(), now), nil
}

// GetDocuments matches the filter with JSONB containment, so values compare
// by their JSON encoding.
func (s *PostgresStore) GetDocuments(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkFilter(filter); err != nil {
		return nil, err
	}

	id, hasID, rest := splitFilter(filter)
	containment, err := json.Marshal(rest)
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}

	args := []any{containment, normalizeLimit(limit)}
	where := `doc @> $1::jsonb`
	if hasID {
		args = append(args, id)
		where += ` AND id = $3`
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, doc, created_at, updated_at
		 FROM `+s.table(collection)+`
		 WHERE `+where+`
		 ORDER BY created_at DESC, seq DESC
		 LIMIT $2`,
		args...,
	)
	if err != nil {
		if isPgUndefinedTable(err) {
			return []Document{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		var (
			docID     string
			body      []byte
			createdAt time.Time
			updatedAt time.Time
		)
		if err := rows.Scan(&docID, &body, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		doc, err := decodeJSONDocument(body, docID, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		if isPgUndefinedTable(err) {
			return []Document{}, nil
		}
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = $1
		 ORDER BY table_name`,
		s.schema,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *PostgresStore) EnsureCollection(ctx context.Context, collection string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	table := s.table(collection)
	index := pgx.Identifier{collection + "_created_at_idx"}.Sanitize()
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgx.Identifier{s.schema}.Sanitize(),
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			seq        BIGSERIAL,
			id         TEXT PRIMARY KEY,
			doc        JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ` + index + ` ON ` + table + ` (created_at DESC, seq DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure collection %s: %w", collection, err)
		}
	}
	s.ready.Store(collection, struct{}{})
	return nil
}

// ensureOnce creates the table the first time a collection is written,
// matching MongoDB's implicit collection creation.
func (s *PostgresStore) ensureOnce(ctx context.Context, collection string) error {
	if _, ok := s.ready.Load(collection); ok {
		return nil
	}
	return s.EnsureCollection(ctx, collection)
}

func (s *PostgresStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func isPgUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable
}

// decodeJSONDocument rebuilds a Document from a JSON body and its columns.
func decodeJSONDocument(body []byte, id string, createdAt, updatedAt time.Time) (Document, error) {
	fields := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
	}
	doc := stamped(fields, id, createdAt.UTC())
	doc[FieldUpdatedAt] = updatedAt.UTC()
	return doc, nil
}
