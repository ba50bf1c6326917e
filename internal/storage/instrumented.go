package storage

import (
	"context"
	"encoding/json"
	"sync/atomic"
)

// OperationStats tracks operation counts
type OperationStats struct {
	Gets    uint64 `json:"gets"`    // Keys read by Get/MGet
	Sets    uint64 `json:"sets"`    // Keys written by Set/MSet
	Deletes uint64 `json:"deletes"` // Keys removed by Delete/MDel
	Scans   uint64 `json:"scans"`   // Prefix scans
	Errors  uint64 `json:"errors"`  // Failed operations
}

// InstrumentedStats combines operation counts with storage statistics
type InstrumentedStats struct {
	Driver  string         `json:"driver"`
	Ops     OperationStats `json:"operations"`
	Storage StoreStats     `json:"storage"`
}

// Instrumented wraps a Store and counts the operations passing through it
type Instrumented struct {
	Store
	driver string
	ops    OperationStats
}

// NewInstrumented wraps s; driver is reported back by Snapshot
func NewInstrumented(s Store, driver string) *Instrumented {
	return &Instrumented{Store: s, driver: driver}
}

func (s *Instrumented) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	atomic.AddUint64(&s.ops.Gets, 1)
	value, found, err := s.Store.Get(ctx, key)
	return value, found, s.track(err)
}

func (s *Instrumented) Set(ctx context.Context, key string, value json.RawMessage) error {
	atomic.AddUint64(&s.ops.Sets, 1)
	return s.track(s.Store.Set(ctx, key, value))
}

func (s *Instrumented) Delete(ctx context.Context, key string) error {
	atomic.AddUint64(&s.ops.Deletes, 1)
	return s.track(s.Store.Delete(ctx, key))
}

func (s *Instrumented) MGet(ctx context.Context, keys []string) ([]json.RawMessage, error) {
	atomic.AddUint64(&s.ops.Gets, uint64(len(keys)))
	out, err := s.Store.MGet(ctx, keys)
	return out, s.track(err)
}

func (s *Instrumented) MSet(ctx context.Context, entries []Entry) error {
	atomic.AddUint64(&s.ops.Sets, uint64(len(entries)))
	return s.track(s.Store.MSet(ctx, entries))
}

func (s *Instrumented) MDel(ctx context.Context, keys []string) error {
	atomic.AddUint64(&s.ops.Deletes, uint64(len(keys)))
	return s.track(s.Store.MDel(ctx, keys))
}

func (s *Instrumented) GetByPrefix(ctx context.Context, prefix string) ([]json.RawMessage, error) {
	atomic.AddUint64(&s.ops.Scans, 1)
	out, err := s.Store.GetByPrefix(ctx, prefix)
	return out, s.track(err)
}

func (s *Instrumented) ScanPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	atomic.AddUint64(&s.ops.Scans, 1)
	out, err := s.Store.ScanPrefix(ctx, prefix)
	return out, s.track(err)
}

// Ops returns the current operation counters
func (s *Instrumented) Ops() OperationStats {
	return OperationStats{
		Gets:    atomic.LoadUint64(&s.ops.Gets),
		Sets:    atomic.LoadUint64(&s.ops.Sets),
		Deletes: atomic.LoadUint64(&s.ops.Deletes),
		Scans:   atomic.LoadUint64(&s.ops.Scans),
		Errors:  atomic.LoadUint64(&s.ops.Errors),
	}
}

// Snapshot returns operation counters together with storage statistics
func (s *Instrumented) Snapshot(ctx context.Context) (InstrumentedStats, error) {
	storageStats, err := s.Store.Stats(ctx)
	if err != nil {
		return InstrumentedStats{}, err
	}
	return InstrumentedStats{
		Driver:  s.driver,
		Ops:     s.Ops(),
		Storage: storageStats,
	}, nil
}

func (s *Instrumented) track(err error) error {
	if err != nil {
		atomic.AddUint64(&s.ops.Errors, 1)
	}
	return err
}
