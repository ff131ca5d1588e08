package store

import (
	"context"
	"sync"
)

// MemoryStore keeps appended events in process memory, grouped by room.
// It backs the server when no MongoDB instance is configured and doubles
// as the store used in tests.
type MemoryStore struct {
	mu     sync.Mutex
	byRoom map[string][]Event
}

// NewMemoryStore returns an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byRoom: make(map[string][]Event)}
}

// Append records the event in memory.
func (s *MemoryStore) Append(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRoom[ev.RoomID] = append(s.byRoom[ev.RoomID], ev)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close(context.Context) error {
	return nil
}

// Events returns a copy of the events appended for the given room, in
// append order.
func (s *MemoryStore) Events(roomID string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.byRoom[roomID]...)
}
