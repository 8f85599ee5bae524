package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process document store shared by any number of
// adapters. Each adapter opened on it behaves like a separate tab:
// writes through one adapter are delivered to the subscriptions of all
// the others. Delivery is synchronous, which makes tests deterministic.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string][]byte
	subs   map[int]map[string][]func(doc []byte)
	nextID int
}

// NewMemoryStore creates an empty shared store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]byte),
		subs: make(map[int]map[string][]func(doc []byte)),
	}
}

// Open creates a new adapter (execution context) on the shared store.
func (s *MemoryStore) Open() *MemoryAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = make(map[string][]func(doc []byte))
	return &MemoryAdapter{store: s, id: id}
}

func (s *MemoryStore) write(origin int, key string, doc []byte) {
	cp := make([]byte, len(doc))
	copy(cp, doc)

	s.mu.Lock()
	s.docs[key] = cp

	var handlers []func(doc []byte)
	for id, byKey := range s.subs {
		if id == origin {
			continue
		}
		handlers = append(handlers, byKey[key]...)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(cp)
	}
}

// MemoryAdapter is one execution context on a MemoryStore.
type MemoryAdapter struct {
	store *MemoryStore
	id    int
}

func (a *MemoryAdapter) Read(_ context.Context, key string) ([]byte, error) {
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	doc, ok := a.store.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(doc))
	copy(cp, doc)
	return cp, nil
}

func (a *MemoryAdapter) Write(_ context.Context, key string, doc []byte) error {
	a.store.write(a.id, key, doc)
	return nil
}

func (a *MemoryAdapter) Subscribe(key string, handler func(doc []byte)) (func(), error) {
	a.store.mu.Lock()
	byKey := a.store.subs[a.id]
	byKey[key] = append(byKey[key], handler)
	idx := len(byKey[key]) - 1
	a.store.mu.Unlock()

	return func() {
		a.store.mu.Lock()
		defer a.store.mu.Unlock()
		if byKey, ok := a.store.subs[a.id]; ok && idx < len(byKey[key]) {
			byKey[key][idx] = func([]byte) {}
		}
	}, nil
}

func (a *MemoryAdapter) Close() error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	delete(a.store.subs, a.id)
	return nil
}
