package recordstore

import "context"

// Store is the shared document store both clients of a session read and write.
// Writes are atomic per call; subscribers observe the latest snapshot.
type Store interface {
	// Get returns the current document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Create stores a new document under a generated id.
	Create(ctx context.Context, collection string, fields Fields) (string, error)

	// CreateWithID stores a new document under id. It returns ErrAlreadyExists
	// when the document is present, which makes replays of the same creation a no-op.
	CreateWithID(ctx context.Context, collection, id string, fields Fields) error

	// Update applies a partial write. Keys may be dotted paths into nested maps.
	Update(ctx context.Context, collection, id string, fields Fields) error

	// Mutate runs fn against the latest snapshot and applies the returned fields
	// atomically. fn may run more than once and must not have side effects.
	Mutate(ctx context.Context, collection, id string, fn MutateFunc) (Document, error)

	// Subscribe streams snapshots of one document, starting with the current one.
	Subscribe(ctx context.Context, collection, id string) (Subscription, error)

	// Query returns the documents matching every filter and a subscription to
	// subsequent changes in the collection.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, Subscription, error)
}

// MutateFunc computes the fields to write from the latest snapshot. Returning
// ErrSkip turns the write into a no-op.
type MutateFunc func(current Document) (Fields, error)

// Subscription is a stream of change events, until closed.
type Subscription interface {
	Events() <-chan Event
	Close()
}

// Refresher re-reads a document and notifies local subscribers. Used when a
// change made by another process is announced out of band.
type Refresher interface {
	Refresh(ctx context.Context, collection, id string) error
}

// ChangePublisher announces committed writes to other processes.
type ChangePublisher interface {
	PublishChange(ctx context.Context, collection, id string, version int64) error
}
