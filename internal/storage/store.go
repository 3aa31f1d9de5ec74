package storage

// Store defines the interface for a shard's key-value backend.
// Implementations need not be safe for concurrent use.
type Store interface {
	// Get retrieves a value by key. The bool reports whether it was present.
	Get(key string) (string, bool)
	// Set stores value under key, overwriting any existing value.
	Set(key, value string)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string)
	// List returns a snapshot of all keys. Order is undefined.
	List() []string
	// Stats returns storage statistics.
	Stats() Stats
}

// Stats contains statistics about a store.
type Stats struct {
	Keys  int // Number of keys
	Bytes int // Total size of all values in bytes
}

// MemoryStore is an in-memory implementation of Store backed by a plain map.
type MemoryStore struct {
	data  map[string]string
	bytes int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]string),
	}
}

// Get retrieves a value by key.
func (s *MemoryStore) Get(key string) (string, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Set stores a value, overwriting the previous one.
func (s *MemoryStore) Set(key, value string) {
	if old, ok := s.data[key]; ok {
		s.bytes -= len(old)
	}
	s.data[key] = value
	s.bytes += len(value)
}

// Delete removes a key (idempotent).
func (s *MemoryStore) Delete(key string) {
	if old, ok := s.data[key]; ok {
		s.bytes -= len(old)
		delete(s.data, key)
	}
}

// List returns all keys. The returned slice is owned by the caller.
func (s *MemoryStore) List() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// Stats returns storage statistics.
func (s *MemoryStore) Stats() Stats {
	return Stats{
		Keys:  len(s.data),
		Bytes: s.bytes,
	}
}
