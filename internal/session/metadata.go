package session

import "sync"

// MetadataStore is a read-mostly mirror of the metadata of all running
// sessions. The Registry is its only writer and updates it synchronously
// with every mutation that changes session existence, so the streaming
// plane can check existence without touching registry write locks.
type MetadataStore struct {
	mu sync.RWMutex
	m  map[string]Metadata
}

// NewMetadataStore creates an empty metadata mirror.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{m: make(map[string]Metadata)}
}

// Exists reports whether a session with the given id is running.
func (ms *MetadataStore) Exists(id string) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	_, ok := ms.m[id]
	return ok
}

// Get returns the metadata for id, if present.
func (ms *MetadataStore) Get(id string) (Metadata, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	md, ok := ms.m[id]
	return md, ok
}

// Upsert inserts or replaces the metadata for id.
func (ms *MetadataStore) Upsert(id string, md Metadata) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.m[id] = md
}

// Remove deletes the metadata for id.
func (ms *MetadataStore) Remove(id string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.m, id)
}

// Len returns the number of mirrored sessions.
func (ms *MetadataStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.m)
}
