package docstore

import (
	"errors"
)

var (
	// ErrNotInitialized is returned by every operation of a store that has not connected yet.
	ErrNotInitialized = errors.New("document store not initialized: check DATABASE_URL/DATABASE_NAME")

	// ErrInvalidCollection is returned for collection names that are not plain identifiers.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrInvalidFilter is returned for filter keys that are not plain identifiers.
	ErrInvalidFilter = errors.New("invalid filter field")

	// ErrUnsupportedURL is returned by Connect for an unknown DATABASE_URL scheme.
	ErrUnsupportedURL = errors.New("unsupported database url")
)

// NotInitializedError reports an operation on a store that has no live
// connection. Its message is always that of ErrNotInitialized; the last
// connection failure is available through Unwrap.
type NotInitializedError struct {
	Cause error
}

func (e *NotInitializedError) Error() string { return ErrNotInitialized.Error() }

// Is makes errors.Is(err, ErrNotInitialized) hold.
func (e *NotInitializedError) Is(target error) bool { return target == ErrNotInitialized }

func (e *NotInitializedError) Unwrap() error { return e.Cause }

// ConnectionCause returns the connection failure behind a NotInitializedError,
// or nil when err is not one.
func ConnectionCause(err error) error {
	var notReady *NotInitializedError
	if errors.As(err, &notReady) {
		return notReady.Cause
	}
	return nil
}
