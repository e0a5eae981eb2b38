package recordstore

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	// ErrSkip reports that a guarded write found its precondition no longer
	// holding and wrote nothing.
	ErrSkip = errors.New("precondition not met, write skipped")
	// ErrConflict is returned when optimistic retries are exhausted.
	ErrConflict = errors.New("concurrent modification")
)

// StoreError wraps a backend failure with the operation it interrupted.
type StoreError struct {
	Op         string
	Collection string
	ID         string
	Err        error
}

func (e *StoreError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("store %s %s/%s: %v", e.Op, e.Collection, e.ID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsStoreError reports whether err came from the backend rather than from a
// guard or a missing document.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// Fields is a partial document. Values may be literals, Delete or ServerTimestamp.
type Fields map[string]any

type marker int

const (
	deleteMarker marker = iota + 1
	serverTimestampMarker
)

var (
	// Delete removes the field it is assigned to.
	Delete any = deleteMarker
	// ServerTimestamp is replaced by the commit time.
	ServerTimestamp any = serverTimestampMarker
)

// Document is one addressable record.
type Document struct {
	Collection string
	ID         string
	// Version increases with every committed write to the document.
	Version    int64
	Fields     Fields
	CreateTime time.Time
	UpdateTime time.Time
}

// Filter is an equality condition on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// ChangeKind distinguishes present documents from ones that left the result.
type ChangeKind int

const (
	// ChangeUpsert carries the current snapshot of a present, matching document.
	ChangeUpsert ChangeKind = iota
	// ChangeRemoved means the document is gone or no longer matches the query.
	ChangeRemoved
)

// Event is one change notification.
type Event struct {
	Kind       ChangeKind
	Collection string
	ID         string
	Document   Document
	// Err is set when the stream failed; no further events follow.
	Err error
}
