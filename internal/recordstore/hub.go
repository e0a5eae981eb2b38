package recordstore

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
)

const queryBuffer = 64

type docKey struct {
	collection string
	id         string
}

// hub fans committed changes out to in-process subscribers.
type hub struct {
	mu      sync.Mutex
	nextID  int
	docs    map[docKey]map[int]*subscription
	queries map[string]map[int]*subscription
}

func newHub() *hub {
	return &hub{
		docs:    make(map[docKey]map[int]*subscription),
		queries: make(map[string]map[int]*subscription),
	}
}

type subscription struct {
	h       *hub
	id      int
	key     docKey
	filters []Filter
	query   bool
	ch      chan Event
	closed  bool
	// lastVersion drops snapshots older than one already delivered.
	lastVersion int64
	done        chan struct{}

	// Query subscriptions queue changes per document id until the reader
	// catches up; a newer change for the same id replaces the queued one.
	qmu     sync.Mutex
	pending map[string]Event
	order   []string
	wake    chan struct{}
}

func (s *subscription) Events() <-chan Event { return s.ch }

func (s *subscription) Close() {
	s.h.remove(s)
}

func (h *hub) subscribeDoc(ctx context.Context, collection, id string) *subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &subscription{
		h:    h,
		id:   h.nextID,
		key:  docKey{collection, id},
		ch:   make(chan Event, 1),
		done: make(chan struct{}),
	}
	if h.docs[s.key] == nil {
		h.docs[s.key] = make(map[int]*subscription)
	}
	h.docs[s.key][s.id] = s
	go s.closeOnDone(ctx)
	return s
}

func (h *hub) subscribeQuery(ctx context.Context, collection string, filters []Filter) *subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &subscription{
		h:       h,
		id:      h.nextID,
		key:     docKey{collection: collection},
		filters: filters,
		query:   true,
		ch:      make(chan Event, queryBuffer),
		done:    make(chan struct{}),
		pending: make(map[string]Event),
		wake:    make(chan struct{}, 1),
	}
	if h.queries[collection] == nil {
		h.queries[collection] = make(map[int]*subscription)
	}
	h.queries[collection][s.id] = s
	go s.closeOnDone(ctx)
	go s.pump()
	return s
}

func (s *subscription) closeOnDone(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.Close()
	case <-s.done:
	}
}

func (h *hub) remove(s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.query {
		delete(h.queries[s.key.collection], s.id)
		if len(h.queries[s.key.collection]) == 0 {
			delete(h.queries, s.key.collection)
		}
	} else {
		delete(h.docs[s.key], s.id)
		if len(h.docs[s.key]) == 0 {
			delete(h.docs, s.key)
		}
	}
	close(s.done)
	if !s.query {
		close(s.ch)
	}
}

// publish delivers ev to document subscribers (latest snapshot wins) and to
// query subscribers of the collection (queued per document, latest change
// wins; removals for documents that stopped matching).
func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.docs[docKey{ev.Collection, ev.ID}] {
		s.deliverLatest(ev)
	}
	for _, s := range h.queries[ev.Collection] {
		qev := ev
		if qev.Kind == ChangeUpsert && !qev.Document.Matches(s.filters) {
			qev.Kind = ChangeRemoved
		}
		s.enqueue(qev)
	}
}

func (s *subscription) enqueue(ev Event) {
	s.qmu.Lock()
	if _, queued := s.pending[ev.ID]; queued {
		log.Debug("Query subscriber behind, coalescing change", "collection", ev.Collection, "id", ev.ID)
	} else {
		s.order = append(s.order, ev.ID)
	}
	s.pending[ev.ID] = ev
	s.qmu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump moves queued query changes to the reader and owns closing its
// channel.
func (s *subscription) pump() {
	defer close(s.ch)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			ev, ok := s.next()
			if !ok {
				break
			}
			select {
			case <-s.done:
				return
			case s.ch <- ev:
			}
		}
	}
}

// next pops the oldest queued document id with its latest change.
func (s *subscription) next() (Event, bool) {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if len(s.order) == 0 {
		return Event{}, false
	}
	id := s.order[0]
	s.order = s.order[1:]
	ev := s.pending[id]
	delete(s.pending, id)
	return ev, true
}

// deliverLatest must be called with the hub lock held.
func (s *subscription) deliverLatest(ev Event) {
	if s.closed {
		return
	}
	if ev.Kind == ChangeUpsert && ev.Document.Version < s.lastVersion {
		return
	}
	if ev.Kind == ChangeUpsert {
		s.lastVersion = ev.Document.Version
	}
	sendLatest(s.ch, ev)
}

// sendLatest replaces any undelivered event in a one-slot channel, so a slow
// reader always finds the most recent snapshot.
func sendLatest(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}
