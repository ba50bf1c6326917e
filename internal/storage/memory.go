package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"golang.org/x/exp/slices"
)

var errClosed = errors.New("store is closed")

// MemoryStore implements Store interface with in-memory storage.
// Uses sync.RWMutex for thread-safe concurrent access and keeps a sorted key
// index so prefix scans don't walk the whole map.
type MemoryStore struct {
	mu     sync.RWMutex               // Protects concurrent access
	data   map[string]json.RawMessage // Key-value storage
	keys   []string                   // Sorted keys
	closed bool
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]json.RawMessage),
	}
}

// Get retrieves a value by key.
// Returns a copy of the value to prevent external modification.
func (m *MemoryStore) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, unavailable("get", errClosed)
	}
	value, exists := m.data[key]
	if !exists {
		return nil, false, nil
	}
	return clone(value), true, nil
}

// Set stores a copy of value under key
func (m *MemoryStore) Set(_ context.Context, key string, value json.RawMessage) error {
	if err := checkEntry(key, value); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return unavailable("set", errClosed)
	}
	m.put(key, value)
	return nil
}

// Delete removes a key-value pair.
// No error if key doesn't exist (idempotent).
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return unavailable("delete", errClosed)
	}
	m.remove(key)
	return nil
}

// MGet retrieves several keys under one read lock
func (m *MemoryStore) MGet(_ context.Context, keys []string) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, unavailable("mget", errClosed)
	}
	out := make([]json.RawMessage, len(keys))
	for i, key := range keys {
		if value, ok := m.data[key]; ok {
			out[i] = clone(value)
		}
	}
	return out, nil
}

// MSet validates every entry before applying any of them
func (m *MemoryStore) MSet(_ context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := checkEntry(e.Key, e.Value); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return unavailable("mset", errClosed)
	}
	for _, e := range entries {
		m.put(e.Key, e.Value)
	}
	return nil
}

// MDel removes all listed keys
func (m *MemoryStore) MDel(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return unavailable("mdel", errClosed)
	}
	for _, key := range keys {
		m.remove(key)
	}
	return nil
}

// GetByPrefix returns values for keys starting with prefix, in key order
func (m *MemoryStore) GetByPrefix(ctx context.Context, prefix string) ([]json.RawMessage, error) {
	entries, err := m.ScanPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return values(entries), nil
}

// ScanPrefix returns entries for keys starting with prefix, in key order
func (m *MemoryStore) ScanPrefix(_ context.Context, prefix string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, unavailable("scan", errClosed)
	}
	start, _ := slices.BinarySearch(m.keys, prefix)
	out := []Entry{}
	for _, key := range m.keys[start:] {
		if !strings.HasPrefix(key, prefix) {
			break
		}
		out = append(out, Entry{Key: key, Value: clone(m.data[key])})
	}
	return out, nil
}

// Ping fails only after Close
func (m *MemoryStore) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return unavailable("ping", errClosed)
	}
	return nil
}

// Stats returns storage statistics
func (m *MemoryStore) Stats(context.Context) (StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return StoreStats{}, unavailable("stats", errClosed)
	}
	totalBytes := 0
	for _, value := range m.data {
		totalBytes += len(value)
	}
	return StoreStats{
		Keys:  len(m.data),
		Bytes: totalBytes,
	}, nil
}

// Close drops all data; the store rejects further calls
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	m.keys = nil
	return nil
}

// put must be called with mu held for writing
func (m *MemoryStore) put(key string, value json.RawMessage) {
	if _, exists := m.data[key]; !exists {
		i, _ := slices.BinarySearch(m.keys, key)
		m.keys = slices.Insert(m.keys, i, key)
	}
	m.data[key] = clone(value)
}

// remove must be called with mu held for writing
func (m *MemoryStore) remove(key string) {
	if _, exists := m.data[key]; !exists {
		return
	}
	delete(m.data, key)
	if i, found := slices.BinarySearch(m.keys, key); found {
		m.keys = slices.Delete(m.keys, i, i+1)
	}
}

func clone(value json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(value))
	copy(out, value)
	return out
}
