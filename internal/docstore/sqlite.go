package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps each collection in a table of JSON documents.
type SQLiteStore struct {
	sqlDB *sql.DB
	opts  storeOptions
	ready sync.Map // collection -> struct{}
}

// Ensure SQLiteStore implements Store at compile time.
var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens a SQLite database at path.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; database/sql queues the rest.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB, opts: buildOptions(opts)}, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, collection string, fields map[string]any) (Document, error) {
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

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO `+quoteIdent(collection)+` (id, doc, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id.String(), string(body), toMillis(now), toMillis(now),
	)
	if err != nil {
		return nil, err
	}
	return stamped(data, id.String(), now), nil
}

func (s *SQLiteStore) GetDocuments(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkFilter(filter); err != nil {
		return nil, err
	}

	id, hasID, rest := splitFilter(filter)
	keys := make([]string, 0, len(rest))
	for k := range rest {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		conds []string
		args  []any
	)
	if hasID {
		conds = append(conds, "id = ?")
		args = append(args, id)
	}
	for _, k := range keys {
		conds = append(conds, "json_extract(doc, ?) = ?")
		args = append(args, "$."+k, sqliteValue(rest[k]))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, normalizeLimit(limit))

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, doc, created_at, updated_at FROM `+quoteIdent(collection)+where+
			` ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		args...,
	)
	if err != nil {
		if isSQLiteNoTable(err) {
			return []Document{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		var (
			docID     string
			body      string
			createdAt int64
			updatedAt int64
		)
		if err := rows.Scan(&docID, &body, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		doc, err := decodeJSONDocument([]byte(body), docID, fromMillis(createdAt), fromMillis(updatedAt))
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
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

func (s *SQLiteStore) EnsureCollection(ctx context.Context, collection string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + quoteIdent(collection) + ` (
			id         TEXT PRIMARY KEY,
			doc        TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ` + quoteIdent(collection+"_created_at_idx") +
			` ON ` + quoteIdent(collection) + ` (created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.sqlDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure collection %s: %w", collection, err)
		}
	}
	s.ready.Store(collection, struct{}{})
	return nil
}

func (s *SQLiteStore) ensureOnce(ctx context.Context, collection string) error {
	if _, ok := s.ready.Load(collection); ok {
		return nil
	}
	return s.EnsureCollection(ctx, collection)
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.sqlDB.Close()
}

// quoteIdent quotes a name already checked against namePattern.
func quoteIdent(name string) string {
	return `"` + name + `"`
}

// sqliteValue converts a filter value to what json_extract yields for it.
func sqliteValue(v any) any {
	switch val := v.(type) {
	case bool:
		if val {
			return 1
		}
		return 0
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

func isSQLiteNoTable(err error) bool {
	return strings.Contains(err.Error(), "no such table")
}
