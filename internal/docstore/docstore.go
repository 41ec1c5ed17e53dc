// Package docstore is a small document-store adapter. It stores
// schema-flexible records in named collections and reads them back
// newest-first, on top of MongoDB, PostgreSQL (JSONB), SQLite or DynamoDB.
package docstore

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Reserved document keys.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// DefaultLimit caps GetDocuments when the caller passes a non-positive limit.
const DefaultLimit = 50

// Document is a stored record. Identifier and timestamps live under the
// reserved keys; everything else is caller data.
type Document map[string]any

// ID returns the store-assigned identifier.
func (d Document) ID() string {
	return d.String(FieldID)
}

// String returns the value at key if it is a string, or "".
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Time returns the value at key if it is a time.Time, or the zero time.
func (d Document) Time(key string) time.Time {
	t, _ := d[key].(time.Time)
	return t
}

// Filter selects documents whose top-level fields equal the given values.
// A nil or empty Filter matches every document.
type Filter map[string]any

// Store is the storage adapter consumed by repositories.
// Implementations are safe for concurrent use.
type Store interface {
	// CreateDocument stamps created_at/updated_at, inserts the record and
	// returns it with its identifier under "id".
	CreateDocument(ctx context.Context, collection string, fields map[string]any) (Document, error)

	// GetDocuments returns up to limit documents matching filter, newest first.
	GetDocuments(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error)

	// ListCollections returns the names of the collections in the database.
	ListCollections(ctx context.Context) ([]string, error)

	// EnsureCollection creates the collection and its created_at index if missing.
	EnsureCollection(ctx context.Context, collection string) error

	Close(ctx context.Context) error
}

// Option configures a Store implementation.
type Option func(*storeOptions)

type storeOptions struct {
	now func() time.Time
}

// WithClock overrides the time source used to stamp documents.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) { o.now = now }
}

func buildOptions(opts []Option) storeOptions {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// timestamp returns the stamping time. Every backend keeps millisecond
// precision, so the value is truncated up front to round-trip exactly.
func (o storeOptions) timestamp() time.Time {
	return o.now().UTC().Truncate(time.Millisecond)
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func checkCollection(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}
	return nil
}

func checkFilter(filter Filter) error {
	for key := range filter {
		if !namePattern.MatchString(key) {
			return fmt.Errorf("%w: %q", ErrInvalidFilter, key)
		}
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// userFields copies fields without the reserved keys.
func userFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case FieldID, FieldCreatedAt, FieldUpdatedAt, "_id":
			continue
		}
		out[k] = v
	}
	return out
}

// stamped builds the returned Document from user fields, id and time.
func stamped(fields map[string]any, id string, at time.Time) Document {
	doc := make(Document, len(fields)+3)
	for k, v := range fields {
		doc[k] = v
	}
	doc[FieldID] = id
	doc[FieldCreatedAt] = at
	doc[FieldUpdatedAt] = at
	return doc
}

// splitFilter separates an "id" equality from the remaining field filters.
func splitFilter(filter Filter) (id string, hasID bool, rest Filter) {
	rest = make(Filter, len(filter))
	for k, v := range filter {
		if k == FieldID {
			id = fmt.Sprint(v)
			hasID = true
			continue
		}
		rest[k] = v
	}
	return id, hasID, rest
}
