package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumented(t *testing.T) {
	ctx := context.Background()

	t.Run("counts operations per key", func(t *testing.T) {
		s := NewInstrumented(NewMemoryStore(), DriverMemory)

		require.NoError(t, s.Set(ctx, "a", raw(`1`)))
		require.NoError(t, s.MSet(ctx, []Entry{{Key: "b", Value: raw(`2`)}, {Key: "c", Value: raw(`3`)}}))
		_, _, err := s.Get(ctx, "a")
		require.NoError(t, err)
		_, err = s.MGet(ctx, []string{"a", "b"})
		require.NoError(t, err)
		_, err = s.GetByPrefix(ctx, "")
		require.NoError(t, err)
		_, err = s.ScanPrefix(ctx, "a")
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, "a"))
		require.NoError(t, s.MDel(ctx, []string{"b", "c"}))

		assert.Equal(t, OperationStats{Gets: 3, Sets: 3, Deletes: 3, Scans: 2}, s.Ops())
	})

	t.Run("counts failures", func(t *testing.T) {
		s := NewInstrumented(NewMemoryStore(), DriverMemory)

		assert.Error(t, s.Set(ctx, "a", raw(`{`)))
		require.NoError(t, s.Close())
		_, _, err := s.Get(ctx, "a")
		assert.ErrorIs(t, err, ErrUnavailable)

		assert.Equal(t, uint64(2), s.Ops().Errors)
	})

	t.Run("snapshot includes storage stats", func(t *testing.T) {
		s := NewInstrumented(NewMemoryStore(), DriverMemory)

		require.NoError(t, s.Set(ctx, "a", raw(`"abc"`)))

		snap, err := s.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, DriverMemory, snap.Driver)
		assert.Equal(t, uint64(1), snap.Ops.Sets)
		assert.Equal(t, StoreStats{Keys: 1, Bytes: 5}, snap.Storage)
	})

	t.Run("concurrent counting", func(t *testing.T) {
		s := NewInstrumented(NewMemoryStore(), DriverMemory)

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, _ = s.Get(ctx, "k")
			}()
		}
		wg.Wait()

		assert.Equal(t, uint64(50), s.Ops().Gets)
	})
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default is memory", cfg: Config{}},
		{name: "memory", cfg: Config{Driver: DriverMemory}},
		{name: "bolt in nested dir", cfg: Config{Driver: DriverBolt, Path: filepath.Join(dir, "a", "b", "kv.bolt")}},
		{name: "sqlite file", cfg: Config{Driver: DriverSQLite, Path: filepath.Join(dir, "c", "kv.db")}},
		{name: "sqlite in memory", cfg: Config{Driver: DriverSQLite, Path: ":memory:"}},
		{name: "bolt without path", cfg: Config{Driver: DriverBolt}, wantErr: true},
		{name: "unknown driver", cfg: Config{Driver: "redis"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer s.Close()

			ctx := context.Background()
			require.NoError(t, s.Ping(ctx))
			require.NoError(t, s.Set(ctx, "k", raw(`true`)))
			value, found, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, found)
			assert.JSONEq(t, `true`, string(value))
		})
	}
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.bolt")

	s, err := NewBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "profile:u1", raw(`{"name":"A"}`)))
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	value, found, err := s.Get(ctx, "profile:u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"name":"A"}`, string(value))
}

func TestTableStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := NewTableStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "profile:u1", raw(`{"name":"A"}`)))
	require.NoError(t, s.Close())

	s, err = NewTableStore(path)
	require.NoError(t, err)
	defer s.Close()

	value, found, err := s.Get(ctx, "profile:u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"name":"A"}`, string(value))
}
