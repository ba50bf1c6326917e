package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

var boltBucket = []byte("kv")

// boltRecord is the on-disk envelope of a value
type boltRecord struct {
	Value     []byte    `msgpack:"v"`
	UpdatedAt time.Time `msgpack:"t"`
}

// BoltStore implements Store on a single bbolt bucket. Keys are stored as-is,
// so bbolt's byte ordering gives key-ordered prefix scans for free.
type BoltStore struct {
	bdb *bbolt.DB
	now func() time.Time
}

// NewBoltStore opens (or creates) a bbolt file at path
func NewBoltStore(path string) (*BoltStore, error) {
	bdb, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, unavailable(fmt.Sprintf("open bolt %q", path), err)
	}
	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, unavailable("create bucket", err)
	}
	return &BoltStore{bdb: bdb, now: time.Now}, nil
}

func (s *BoltStore) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	var value json.RawMessage
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(boltBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		var err error
		value, err = decodeBoltRecord(raw)
		return err
	})
	if err != nil {
		return nil, false, unavailable(fmt.Sprintf("get %q", key), err)
	}
	return value, value != nil, nil
}

func (s *BoltStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	return s.MSet(ctx, []Entry{{Key: key, Value: value}})
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	return s.MDel(ctx, []string{key})
}

// MGet reads all keys inside one read transaction
func (s *BoltStore) MGet(_ context.Context, keys []string) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltBucket)
		for i, key := range keys {
			raw := b.Get([]byte(key))
			if raw == nil {
				continue
			}
			value, err := decodeBoltRecord(raw)
			if err != nil {
				return err
			}
			out[i] = value
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("mget", err)
	}
	return out, nil
}

// MSet writes all entries in a single transaction: either all land or none do
func (s *BoltStore) MSet(_ context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := checkEntry(e.Key, e.Value); err != nil {
			return err
		}
	}
	if len(entries) == 0 {
		return nil
	}
	now := s.now().UTC()
	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltBucket)
		for _, e := range entries {
			raw, err := msgpack.Marshal(&boltRecord{Value: e.Value, UpdatedAt: now})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(e.Key), raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("mset", err)
	}
	return nil
}

func (s *BoltStore) MDel(_ context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltBucket)
		for _, key := range keys {
			if err := b.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("mdel", err)
	}
	return nil
}

func (s *BoltStore) GetByPrefix(ctx context.Context, prefix string) ([]json.RawMessage, error) {
	entries, err := s.ScanPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return values(entries), nil
}

func (s *BoltStore) ScanPrefix(_ context.Context, prefix string) ([]Entry, error) {
	out := []Entry{}
	p := []byte(prefix)
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		for k, raw := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, raw = c.Next() {
			value, err := decodeBoltRecord(raw)
			if err != nil {
				return err
			}
			out = append(out, Entry{Key: string(k), Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(fmt.Sprintf("scan %q", prefix), err)
	}
	return out, nil
}

func (s *BoltStore) Ping(context.Context) error {
	if err := s.bdb.View(func(*bbolt.Tx) error { return nil }); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *BoltStore) Stats(context.Context) (StoreStats, error) {
	var stats StoreStats
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).ForEach(func(_, raw []byte) error {
			value, err := decodeBoltRecord(raw)
			if err != nil {
				return err
			}
			stats.Keys++
			stats.Bytes += len(value)
			return nil
		})
	})
	if err != nil {
		return StoreStats{}, unavailable("stats", err)
	}
	return stats, nil
}

func (s *BoltStore) Close() error {
	return s.bdb.Close()
}

// decodeBoltRecord copies raw first: bbolt memory is only valid inside the tx
func decodeBoltRecord(raw []byte) (json.RawMessage, error) {
	var rec boltRecord
	if err := msgpack.Unmarshal(append([]byte(nil), raw...), &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return json.RawMessage(rec.Value), nil
}
