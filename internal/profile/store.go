package profile

import (
	"sync"
)

// Store holds the profile shown to the reader. It does no validation.
type Store struct {
	mu     sync.RWMutex
	snap   Snapshot
	latest uint64
	closed bool

	subs   map[int]chan Snapshot
	nextID int
}

// NewStore creates a store holding initial
func NewStore(initial Data) *Store {
	return &Store{
		snap: Snapshot{Data: initial, State: StateIdle},
		subs: make(map[int]chan Snapshot),
	}
}

// Snapshot returns the current state of the store
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Data returns the profile currently shown
func (s *Store) Data() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Data
}

// Subscribe delivers a snapshot after every change. The channel holds one
// pending snapshot; a subscriber that falls behind skips to the newest one.
// Call the returned function to unsubscribe. The channel is closed on
// unsubscribe or when the store is closed.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Close ends all subscriptions. The store stays readable.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// mutate applies fn if seq is not older than the newest applied operation.
// It is the only way the store changes.
func (s *Store) mutate(seq uint64, fn func(*Snapshot)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq < s.latest {
		return false
	}
	s.latest = seq
	fn(&s.snap)
	s.snap.Seq = seq

	for _, ch := range s.subs {
		publish(ch, s.snap)
	}
	return true
}

// publish replaces any undelivered snapshot with snap without blocking
func publish(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
