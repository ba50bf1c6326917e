package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// kvRow is the physical schema: one row per key
type kvRow struct {
	Key   string `gorm:"primaryKey;type:text"`
	Value string `gorm:"type:text;not null"`
}

func (kvRow) TableName() string { return "kv_store" }

// TableStore implements Store on a relational table kv_store(key, value)
// through gorm and the pure-Go SQLite driver.
type TableStore struct {
	db *gorm.DB
}

// NewTableStore opens (or creates) a SQLite database at path.
// Use ":memory:" for an in-memory database.
func NewTableStore(path string) (*TableStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, unavailable(fmt.Sprintf("open sqlite %q", path), err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, unavailable("sqlite handle", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" in one database
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&kvRow{}); err != nil {
		sqlDB.Close()
		return nil, unavailable("migrate kv_store", err)
	}
	return &TableStore{db: db}, nil
}

func (s *TableStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var rows []kvRow
	err := s.db.WithContext(ctx).Where(`"key" = ?`, key).Limit(1).Find(&rows).Error
	if err != nil {
		return nil, false, unavailable(fmt.Sprintf("get %q", key), err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return json.RawMessage(rows[0].Value), true, nil
}

func (s *TableStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	return s.MSet(ctx, []Entry{{Key: key, Value: value}})
}

func (s *TableStore) Delete(ctx context.Context, key string) error {
	return s.MDel(ctx, []string{key})
}

func (s *TableStore) MGet(ctx context.Context, keys []string) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	var rows []kvRow
	if err := s.db.WithContext(ctx).Where(`"key" IN ?`, keys).Find(&rows).Error; err != nil {
		return nil, unavailable("mget", err)
	}
	byKey := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		byKey[row.Key] = json.RawMessage(row.Value)
	}
	for i, key := range keys {
		out[i] = byKey[key]
	}
	return out, nil
}

// MSet upserts all entries inside one transaction
func (s *TableStore) MSet(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := checkEntry(e.Key, e.Value); err != nil {
			return err
		}
	}
	if len(entries) == 0 {
		return nil
	}
	rows := make([]kvRow, len(entries))
	for i, e := range entries {
		rows[i] = kvRow{Key: e.Key, Value: string(e.Value)}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&rows).Error
	})
	if err != nil {
		return unavailable("mset", err)
	}
	return nil
}

func (s *TableStore) MDel(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where(`"key" IN ?`, keys).Delete(&kvRow{}).Error; err != nil {
		return unavailable("mdel", err)
	}
	return nil
}

func (s *TableStore) GetByPrefix(ctx context.Context, prefix string) ([]json.RawMessage, error) {
	entries, err := s.ScanPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return values(entries), nil
}

// ScanPrefix uses a key range rather than LIKE, which is case-insensitive in
// SQLite and treats % and _ as wildcards.
func (s *TableStore) ScanPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	q := s.db.WithContext(ctx).Where(`"key" >= ?`, prefix)
	if end := prefixEnd(prefix); end != "" {
		q = q.Where(`"key" < ?`, end)
	}
	var rows []kvRow
	if err := q.Order(`"key"`).Find(&rows).Error; err != nil {
		return nil, unavailable(fmt.Sprintf("scan %q", prefix), err)
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		if strings.HasPrefix(row.Key, prefix) {
			out = append(out, Entry{Key: row.Key, Value: json.RawMessage(row.Value)})
		}
	}
	return out, nil
}

func (s *TableStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *TableStore) Stats(ctx context.Context) (StoreStats, error) {
	var stats StoreStats
	row := s.db.WithContext(ctx).Raw(`SELECT COUNT(*), COALESCE(SUM(LENGTH(CAST(value AS BLOB))), 0) FROM kv_store`).Row()
	if err := row.Scan(&stats.Keys, &stats.Bytes); err != nil {
		return StoreStats{}, unavailable("stats", err)
	}
	return stats, nil
}

func (s *TableStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
