// Package storage defines the key-value store interface and the concrete
// backends behind premia's record layer.
//
// # Overview
//
// Every piece of persisted state is a (key, value) pair where key is a string
// and value is a JSON document. The record layer above never touches a backend
// directly; it builds keys and prefixes and calls through the Store interface,
// so the physical engine can be swapped without touching it.
//
//	┌─────────────────────────────────────┐
//	│     records.Service (HTTP API)      │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│   Instrumented (operation counts)   │
//	└─────────────────────────────────────┘
//	                 │
//	    ┌────────────┼────────────┐
//	    ▼            ▼            ▼
//	┌────────┐  ┌────────┐  ┌──────────┐
//	│ Memory │  │  Bolt  │  │  Table   │
//	│ Store  │  │ Store  │  │ (SQLite) │
//	└────────┘  └────────┘  └──────────┘
//
// # Operations
//
//   - Get / Set / Delete - point access; a missing key is not an error
//   - MGet / MSet / MDel - batches; MGet keeps request order, nil marks absent
//   - GetByPrefix / ScanPrefix - all keys sharing a prefix, in key order
//   - Ping / Stats / Close - lifecycle and monitoring
//
// # Implementations
//
// MemoryStore: map plus a sorted key slice, guarded by sync.RWMutex
//   - No persistence (data lost on restart)
//   - Suitable for tests and throwaway instances
//
// BoltStore: single bbolt bucket, values wrapped in a msgpack envelope that
// records the last write time
//   - Single file, one writer at a time
//   - MSet/MDel are one transaction
//
// TableStore: SQLite table kv_store(key TEXT PRIMARY KEY, value TEXT) via gorm
//   - Prefix scans are key ranges, not LIKE patterns
//   - MSet is a single upsert inside a transaction
//
// # Consistency
//
// Each single-key operation is atomic and the last write to a key wins.
// Nothing spans keys: a prefix scan followed by MDel can miss a key written
// between the two calls.
//
// # Errors
//
// Backend failures are wrapped with ErrUnavailable:
//
//	if errors.Is(err, storage.ErrUnavailable) {
//	    // storage could not be reached
//	}
//
// Values that are not valid JSON are rejected with ErrInvalidValue.
package storage
