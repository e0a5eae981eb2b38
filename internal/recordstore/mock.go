package recordstore

import (
	"context"
	"sync"
)

// MockStore records calls and lets tests intercept them. Calls without a hook
// are forwarded to Base when it is set.
// It is safe for concurrent use.
type MockStore struct {
	mu sync.Mutex

	Base Store

	// Spies for method calls
	GetFunc          func(ctx context.Context, collection, id string) (Document, error)
	CreateFunc       func(ctx context.Context, collection string, fields Fields) (string, error)
	CreateWithIDFunc func(ctx context.Context, collection, id string, fields Fields) error
	UpdateFunc       func(ctx context.Context, collection, id string, fields Fields) error
	MutateFunc       func(ctx context.Context, collection, id string, fn MutateFunc) (Document, error)
	SubscribeFunc    func(ctx context.Context, collection, id string) (Subscription, error)
	QueryFunc        func(ctx context.Context, collection string, filters ...Filter) ([]Document, Subscription, error)

	// Call records
	CreateCalls       []WriteCall
	CreateWithIDCalls []WriteCall
	UpdateCalls       []WriteCall
	MutateCalls       []WriteCall
}

// WriteCall holds the arguments of a write.
type WriteCall struct {
	Collection string
	ID         string
	Fields     Fields
}

var _ Store = (*MockStore)(nil)

// NewMock creates a mock that forwards to base.
func NewMock(base Store) *MockStore {
	return &MockStore{Base: base}
}

// Reset clears all call records.
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls = nil
	m.CreateWithIDCalls = nil
	m.UpdateCalls = nil
	m.MutateCalls = nil
}

func (m *MockStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, collection, id)
	}
	if m.Base != nil {
		return m.Base.Get(ctx, collection, id)
	}
	return Document{}, ErrNotFound
}

func (m *MockStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	m.mu.Lock()
	m.CreateCalls = append(m.CreateCalls, WriteCall{Collection: collection, Fields: fields})
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, collection, fields)
	}
	if m.Base != nil {
		return m.Base.Create(ctx, collection, fields)
	}
	return "", nil
}

func (m *MockStore) CreateWithID(ctx context.Context, collection, id string, fields Fields) error {
	m.mu.Lock()
	m.CreateWithIDCalls = append(m.CreateWithIDCalls, WriteCall{Collection: collection, ID: id, Fields: fields})
	m.mu.Unlock()
	if m.CreateWithIDFunc != nil {
		return m.CreateWithIDFunc(ctx, collection, id, fields)
	}
	if m.Base != nil {
		return m.Base.CreateWithID(ctx, collection, id, fields)
	}
	return nil
}

func (m *MockStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	m.mu.Lock()
	m.UpdateCalls = append(m.UpdateCalls, WriteCall{Collection: collection, ID: id, Fields: fields})
	m.mu.Unlock()
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, collection, id, fields)
	}
	if m.Base != nil {
		return m.Base.Update(ctx, collection, id, fields)
	}
	return nil
}

func (m *MockStore) Mutate(ctx context.Context, collection, id string, fn MutateFunc) (Document, error) {
	m.mu.Lock()
	m.MutateCalls = append(m.MutateCalls, WriteCall{Collection: collection, ID: id})
	m.mu.Unlock()
	if m.MutateFunc != nil {
		return m.MutateFunc(ctx, collection, id, fn)
	}
	if m.Base != nil {
		return m.Base.Mutate(ctx, collection, id, fn)
	}
	return Document{}, ErrNotFound
}

func (m *MockStore) Subscribe(ctx context.Context, collection, id string) (Subscription, error) {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, collection, id)
	}
	if m.Base != nil {
		return m.Base.Subscribe(ctx, collection, id)
	}
	return nil, ErrNotFound
}

func (m *MockStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, Subscription, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, collection, filters...)
	}
	if m.Base != nil {
		return m.Base.Query(ctx, collection, filters...)
	}
	return nil, nil, nil
}

// MutateCount returns the number of Mutate calls against collection.
func (m *MockStore) MutateCount(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.MutateCalls {
		if c.Collection == collection {
			n++
		}
	}
	return n
}
