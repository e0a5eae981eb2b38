package recordstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/charmbracelet/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore backs the store with Cloud Firestore. Change notification
// uses Firestore snapshot listeners, so every client sees every writer.
type FirestoreStore struct {
	client *firestore.Client
}

var _ Store = (*FirestoreStore)(nil)

// NewFirestore wraps an existing client.
func NewFirestore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return Document{Collection: collection, ID: id}, classify("get", collection, id, err)
	}
	return fromSnapshot(collection, snap), nil
}

func (s *FirestoreStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	ref := s.client.Collection(collection).NewDoc()
	if _, err := ref.Create(ctx, firestoreData(fields)); err != nil {
		return "", classify("create", collection, ref.ID, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) CreateWithID(ctx context.Context, collection, id string, fields Fields) error {
	if _, err := s.client.Collection(collection).Doc(id).Create(ctx, firestoreData(fields)); err != nil {
		return classify("create", collection, id, err)
	}
	return nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, firestoreUpdates(fields)); err != nil {
		return classify("update", collection, id, err)
	}
	return nil
}

func (s *FirestoreStore) Mutate(ctx context.Context, collection, id string, fn MutateFunc) (Document, error) {
	ref := s.client.Collection(collection).Doc(id)
	var current Document
	wrote := false
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		wrote = false
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current = fromSnapshot(collection, snap)
		changes, err := fn(current)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		wrote = true
		return tx.Update(ref, firestoreUpdates(changes))
	})
	if err != nil {
		if errors.Is(err, ErrSkip) {
			return current, err
		}
		// gRPC failures come from the backend; anything else is fn's own verdict.
		if _, ok := status.FromError(err); ok {
			return current, classify("mutate", collection, id, err)
		}
		return current, err
	}
	if !wrote {
		return current, nil
	}
	return s.Get(ctx, collection, id)
}

func (s *FirestoreStore) Subscribe(ctx context.Context, collection, id string) (Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.client.Collection(collection).Doc(id).Snapshots(ctx)
	sub := &listener{ch: make(chan Event, 1), cancel: cancel, stop: it.Stop}

	go func() {
		defer close(sub.ch)
		for {
			snap, err := it.Next()
			if err != nil {
				sub.fail(ctx, collection, id, err)
				return
			}
			if !snap.Exists() {
				sendLatest(sub.ch, Event{Kind: ChangeRemoved, Collection: collection, ID: id})
				continue
			}
			sendLatest(sub.ch, Event{Kind: ChangeUpsert, Collection: collection, ID: id, Document: fromSnapshot(collection, snap)})
		}
	}()
	return sub, nil
}

func (s *FirestoreStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, Subscription, error) {
	q := s.client.Collection(collection).Query
	for _, f := range filters {
		q = q.Where(f.Field, "==", normalize(f.Value))
	}

	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, nil, classify("query", collection, "", err)
	}
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, fromSnapshot(collection, snap))
	}

	ctx, cancel := context.WithCancel(ctx)
	it := q.Snapshots(ctx)
	sub := &listener{ch: make(chan Event, queryBuffer), cancel: cancel, stop: it.Stop}
	go func() {
		defer close(sub.ch)
		for {
			qs, err := it.Next()
			if err != nil {
				sub.fail(ctx, collection, "", err)
				return
			}
			for _, change := range qs.Changes {
				ev := Event{Kind: ChangeUpsert, Collection: collection, ID: change.Doc.Ref.ID, Document: fromSnapshot(collection, change.Doc)}
				if change.Kind == firestore.DocumentRemoved {
					ev = Event{Kind: ChangeRemoved, Collection: collection, ID: change.Doc.Ref.ID}
				}
				select {
				case sub.ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return docs, sub, nil
}

type listener struct {
	ch     chan Event
	cancel context.CancelFunc
	stop   func()
}

func (l *listener) Events() <-chan Event { return l.ch }

func (l *listener) Close() {
	l.cancel()
	l.stop()
}

func (l *listener) fail(ctx context.Context, collection, id string, err error) {
	if errors.Is(err, iterator.Done) || ctx.Err() != nil || status.Code(err) == codes.Canceled {
		return
	}
	log.Error("Snapshot listener failed", "collection", collection, "id", id, "error", err)
	sendLatest(l.ch, Event{Kind: ChangeRemoved, Collection: collection, ID: id, Err: classify("listen", collection, id, err)})
}

func classify(op, collection, id string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	case codes.AlreadyExists:
		return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	case codes.Aborted:
		return &StoreError{Op: op, Collection: collection, ID: id, Err: fmt.Errorf("%w: %v", ErrConflict, err)}
	}
	return &StoreError{Op: op, Collection: collection, ID: id, Err: err}
}

func fromSnapshot(collection string, snap *firestore.DocumentSnapshot) Document {
	doc := Document{Collection: collection, ID: snap.Ref.ID}
	if !snap.Exists() {
		return doc
	}
	doc.Fields = snap.Data()
	doc.CreateTime = snap.CreateTime
	doc.UpdateTime = snap.UpdateTime
	doc.Version = snap.UpdateTime.UnixNano()
	return doc
}

func firestoreResolve(v any) (any, bool) {
	switch v {
	case Delete:
		return nil, false
	case ServerTimestamp:
		return firestore.ServerTimestamp, true
	}
	return normalize(v), true
}

func firestoreData(fields Fields) map[string]any {
	data := make(map[string]any, len(fields))
	applyFields(data, fields, firestoreResolve)
	return data
}

func firestoreUpdates(fields Fields) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for path, v := range fields {
		var value any
		switch v {
		case Delete:
			value = firestore.Delete
		case ServerTimestamp:
			value = firestore.ServerTimestamp
		default:
			value = normalize(v)
		}
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	return updates
}
