package recordstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const defaultMaxAttempts = 8

// SQLStore keeps documents as msgpack blobs in the documents table and
// notifies in-process subscribers after every commit.
type SQLStore struct {
	db          *sql.DB
	hub         *hub
	publisher   ChangePublisher
	now         func() time.Time
	maxAttempts int
}

var (
	_ Store     = (*SQLStore)(nil)
	_ Refresher = (*SQLStore)(nil)
)

// SQLOption configures an SQLStore.
type SQLOption func(*SQLStore)

// WithChangePublisher announces every commit to other processes.
func WithChangePublisher(p ChangePublisher) SQLOption {
	return func(s *SQLStore) { s.publisher = p }
}

// WithNow overrides the commit clock.
func WithNow(now func() time.Time) SQLOption {
	return func(s *SQLStore) { s.now = now }
}

// NewSQL creates a document store on an initialized database.
func NewSQL(db *sql.DB, opts ...SQLOption) *SQLStore {
	s := &SQLStore{
		db:          db,
		hub:         newHub(),
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version, body, created_at, updated_at
		FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id)

	var (
		body               []byte
		createdAt, updated int64
	)
	doc := Document{Collection: collection, ID: id}
	if err := row.Scan(&doc.Version, &body, &createdAt, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return doc, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return doc, &StoreError{Op: "get", Collection: collection, ID: id, Err: err}
	}
	fields, err := decodeBody(body)
	if err != nil {
		return doc, &StoreError{Op: "get", Collection: collection, ID: id, Err: err}
	}
	doc.Fields = fields
	doc.CreateTime = time.UnixMilli(createdAt).UTC()
	doc.UpdateTime = time.UnixMilli(updated).UTC()
	return doc, nil
}

func (s *SQLStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	id := uuid.New().String()
	if err := s.CreateWithID(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLStore) CreateWithID(ctx context.Context, collection, id string, fields Fields) error {
	now := s.now()
	data := make(map[string]any, len(fields))
	applyFields(data, fields, localResolver(now))
	body, err := msgpack.Marshal(data)
	if err != nil {
		return &StoreError{Op: "create", Collection: collection, ID: id, Err: err}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, version, body, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT(collection, id) DO NOTHING
	`, collection, id, body, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return &StoreError{Op: "create", Collection: collection, ID: id, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &StoreError{Op: "create", Collection: collection, ID: id, Err: err}
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	}

	doc, err := s.documentFromBody(collection, id, 1, body, now, now)
	if err != nil {
		return err
	}
	log.Debug("Created document", "collection", collection, "id", id)
	s.committed(ctx, doc)
	return nil
}

func (s *SQLStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	_, err := s.Mutate(ctx, collection, id, func(Document) (Fields, error) {
		return fields, nil
	})
	return err
}

func (s *SQLStore) Mutate(ctx context.Context, collection, id string, fn MutateFunc) (Document, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		current, err := s.Get(ctx, collection, id)
		if err != nil {
			return current, err
		}
		changes, err := fn(current)
		if err != nil {
			return current, err
		}
		if len(changes) == 0 {
			return current, nil
		}

		now := s.now()
		data := cloneFields(current.Fields)
		applyFields(data, changes, localResolver(now))
		body, err := msgpack.Marshal(data)
		if err != nil {
			return current, &StoreError{Op: "mutate", Collection: collection, ID: id, Err: err}
		}

		res, err := s.db.ExecContext(ctx, `
			UPDATE documents
			SET body = ?, version = version + 1, updated_at = ?
			WHERE collection = ? AND id = ? AND version = ?
		`, body, now.UnixMilli(), collection, id, current.Version)
		if err != nil {
			return current, &StoreError{Op: "mutate", Collection: collection, ID: id, Err: err}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return current, &StoreError{Op: "mutate", Collection: collection, ID: id, Err: err}
		}
		if n == 0 {
			log.Debug("Document changed underneath write, retrying", "collection", collection, "id", id, "attempt", attempt)
			continue
		}

		doc, err := s.documentFromBody(collection, id, current.Version+1, body, current.CreateTime, now)
		if err != nil {
			return current, err
		}
		s.committed(ctx, doc)
		return doc, nil
	}
	return Document{Collection: collection, ID: id}, &StoreError{Op: "mutate", Collection: collection, ID: id, Err: ErrConflict}
}

func (s *SQLStore) Subscribe(ctx context.Context, collection, id string) (Subscription, error) {
	sub := s.hub.subscribeDoc(ctx, collection, id)
	doc, err := s.Get(ctx, collection, id)
	switch {
	case errors.Is(err, ErrNotFound):
		s.hub.mu.Lock()
		sub.deliverLatest(Event{Kind: ChangeRemoved, Collection: collection, ID: id})
		s.hub.mu.Unlock()
	case err != nil:
		sub.Close()
		return nil, err
	default:
		s.hub.mu.Lock()
		sub.deliverLatest(Event{Kind: ChangeUpsert, Collection: collection, ID: id, Document: doc})
		s.hub.mu.Unlock()
	}
	return sub, nil
}

func (s *SQLStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, Subscription, error) {
	sub := s.hub.subscribeQuery(ctx, collection, filters)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, body, created_at, updated_at
		FROM documents
		WHERE collection = ?
		ORDER BY created_at ASC
	`, collection)
	if err != nil {
		sub.Close()
		return nil, nil, &StoreError{Op: "query", Collection: collection, Err: err}
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			id                 string
			version            int64
			body               []byte
			createdAt, updated int64
		)
		if err := rows.Scan(&id, &version, &body, &createdAt, &updated); err != nil {
			sub.Close()
			return nil, nil, &StoreError{Op: "query", Collection: collection, Err: err}
		}
		doc, err := s.documentFromBody(collection, id, version, body, time.UnixMilli(createdAt).UTC(), time.UnixMilli(updated).UTC())
		if err != nil {
			log.Error("Failed to decode document, skipping", "collection", collection, "id", id, "error", err)
			continue
		}
		if doc.Matches(filters) {
			docs = append(docs, doc)
		}
	}
	if err := rows.Err(); err != nil {
		sub.Close()
		return nil, nil, &StoreError{Op: "query", Collection: collection, Err: err}
	}
	return docs, sub, nil
}

// Refresh re-reads a document and fans it out locally.
func (s *SQLStore) Refresh(ctx context.Context, collection, id string) error {
	doc, err := s.Get(ctx, collection, id)
	if errors.Is(err, ErrNotFound) {
		s.hub.publish(Event{Kind: ChangeRemoved, Collection: collection, ID: id})
		return nil
	}
	if err != nil {
		return err
	}
	s.hub.publish(Event{Kind: ChangeUpsert, Collection: collection, ID: id, Document: doc})
	return nil
}

func (s *SQLStore) committed(ctx context.Context, doc Document) {
	s.hub.publish(Event{Kind: ChangeUpsert, Collection: doc.Collection, ID: doc.ID, Document: doc})
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChange(ctx, doc.Collection, doc.ID, doc.Version); err != nil {
		log.Error("Failed to publish change", "collection", doc.Collection, "id", doc.ID, "error", err)
	}
}

func (s *SQLStore) documentFromBody(collection, id string, version int64, body []byte, created, updated time.Time) (Document, error) {
	fields, err := decodeBody(body)
	if err != nil {
		return Document{}, &StoreError{Op: "decode", Collection: collection, ID: id, Err: err}
	}
	return Document{
		Collection: collection,
		ID:         id,
		Version:    version,
		Fields:     fields,
		CreateTime: created,
		UpdateTime: updated,
	}, nil
}

func decodeBody(body []byte) (Fields, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(body))
	dec.UseLooseInterfaceDecoding(true)
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if data == nil {
		data = make(map[string]any)
	}
	return data, nil
}
