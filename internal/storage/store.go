package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnavailable is returned when the underlying storage cannot serve a request
// (closed store, I/O failure, driver error). Backends wrap their own errors with it.
var ErrUnavailable = errors.New("storage unavailable")

// ErrInvalidValue is returned when a value handed to Set/MSet is not valid JSON
var ErrInvalidValue = errors.New("value is not valid JSON")

// ErrInvalidKey is returned when a key handed to Set/MSet is empty or longer
// than MaxKeySize
var ErrInvalidKey = errors.New("invalid key")

// MaxKeySize is the longest key every backend accepts (bbolt's limit)
const MaxKeySize = 32768

// Entry is a single key-value pair
type Entry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Store defines the interface for key-value storage.
// Values are JSON documents; a stored value is never empty, so a nil value
// always means "absent".
// All implementations must be safe for concurrent use. Each single-key
// operation is atomic; nothing is promised across keys.
type Store interface {
	// Get retrieves a value by key.
	// A missing key is reported with found=false, not an error.
	Get(ctx context.Context, key string) (value json.RawMessage, found bool, err error)

	// Set stores a value under key, replacing any existing value.
	Set(ctx context.Context, key string, value json.RawMessage) error

	// Delete removes a key. No error if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// MGet returns one slot per requested key, in request order.
	// Absent keys have a nil slot.
	MGet(ctx context.Context, keys []string) ([]json.RawMessage, error)

	// MSet writes all entries. A failure is always reported, even if some
	// entries were already applied.
	MSet(ctx context.Context, entries []Entry) error

	// MDel removes all listed keys; absent keys are ignored.
	MDel(ctx context.Context, keys []string) error

	// GetByPrefix returns the values of all keys starting with prefix, in key order.
	GetByPrefix(ctx context.Context, prefix string) ([]json.RawMessage, error)

	// ScanPrefix is GetByPrefix returning keys as well.
	ScanPrefix(ctx context.Context, prefix string) ([]Entry, error)

	// Ping reports whether the backend is reachable
	Ping(ctx context.Context) error

	// Stats returns storage statistics
	Stats(ctx context.Context) (StoreStats, error)

	// Close releases the backend. Later calls fail with ErrUnavailable.
	Close() error
}

// StoreStats contains statistics about the store
type StoreStats struct {
	Keys  int `json:"keys"`  // Number of keys
	Bytes int `json:"bytes"` // Total size of all values in bytes
}

// unavailable wraps a backend error so callers can match it with ErrUnavailable
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// checkEntry rejects keys some backend cannot store and values that could not
// be served back as JSON
func checkEntry(key string, value json.RawMessage) error {
	if key == "" {
		return fmt.Errorf("set: %w: empty key", ErrInvalidKey)
	}
	if len(key) > MaxKeySize {
		return fmt.Errorf("set: %w: key is %d bytes, limit %d", ErrInvalidKey, len(key), MaxKeySize)
	}
	if len(value) == 0 || !json.Valid(value) {
		return fmt.Errorf("set %q: %w", key, ErrInvalidValue)
	}
	return nil
}

// values strips keys from a scan result
func values(entries []Entry) []json.RawMessage {
	out := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}

// prefixEnd returns the smallest key greater than every key with the given prefix,
// or "" if there is no such bound (empty or all-0xFF prefix).
func prefixEnd(prefix string) string {
	end := []byte(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return string(end[:i+1])
		}
	}
	return ""
}
