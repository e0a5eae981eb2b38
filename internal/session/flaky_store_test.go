package session

import (
	"context"
	"sync"

	"github.com/mauv0809/tictac-duel/internal/recordstore"
)

// flakyStore wraps a store so tests can break the listeners handed out to
// sessions, the way a snapshot listener reports a backend failure.
type flakyStore struct {
	recordstore.Store

	mu   sync.Mutex
	subs map[string][]*flakySub
}

func newFlakyStore(inner recordstore.Store) *flakyStore {
	return &flakyStore{Store: inner, subs: make(map[string][]*flakySub)}
}

func (f *flakyStore) Subscribe(ctx context.Context, collection, id string) (recordstore.Subscription, error) {
	sub, err := f.Store.Subscribe(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	fs := newFlakySub(sub)
	f.mu.Lock()
	defer f.mu.Unlock()
	key := collection + "/" + id
	f.subs[key] = append(f.subs[key], fs)
	return fs, nil
}

// fail delivers err on every open listener of the document.
func (f *flakyStore) fail(collection, id string, err error) {
	f.mu.Lock()
	subs := append([]*flakySub(nil), f.subs[collection+"/"+id]...)
	f.mu.Unlock()
	for _, s := range subs {
		s.send(recordstore.Event{Kind: recordstore.ChangeRemoved, Collection: collection, ID: id, Err: err})
	}
}

type flakySub struct {
	inner recordstore.Subscription
	ch    chan recordstore.Event

	mu     sync.Mutex
	closed bool
}

func newFlakySub(inner recordstore.Subscription) *flakySub {
	s := &flakySub{inner: inner, ch: make(chan recordstore.Event, 64)}
	go s.forward()
	return s
}

func (s *flakySub) forward() {
	for ev := range s.inner.Events() {
		s.send(ev)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	close(s.ch)
}

func (s *flakySub) send(ev recordstore.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- ev
}

func (s *flakySub) Events() <-chan recordstore.Event { return s.ch }

func (s *flakySub) Close() { s.inner.Close() }
