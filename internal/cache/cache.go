// Package cache stores raw provider responses in a local SQLite database so
// repeated detail fetches within the TTL do not spend rate-limit tokens.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Entry is one cached response.
type Entry struct {
	ID        uint      `gorm:"primaryKey"`
	CacheKey  string    `gorm:"uniqueIndex;not null"`
	Kind      string    `gorm:"not null;index"`
	Body      []byte    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}

// TableName specifies the table name for Entry.
func (Entry) TableName() string {
	return "provider_cache"
}

// Cache is a TTL cache of provider responses.
type Cache struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens or creates the cache database at path.
func Open(path string, ttl time.Duration) (*Cache, error) {
	if path == "" {
		return nil, errors.New("open cache: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate cache: %w", err)
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// Get returns the body stored under key if it has not expired.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	var e Entry
	err := c.db.WithContext(ctx).
		Where("cache_key = ? AND expires_at > ?", key, c.now()).
		First(&e).Error
	if err != nil {
		return nil, false
	}
	return e.Body, true
}

// Set stores body under key, replacing any previous entry.
func (c *Cache) Set(ctx context.Context, key, kind string, body []byte) error {
	e := Entry{
		CacheKey:  key,
		Kind:      kind,
		Body:      body,
		ExpiresAt: c.now().Add(c.ttl),
		CreatedAt: c.now(),
	}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "body", "expires_at", "created_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Prune deletes expired entries and returns how many were removed.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	res := c.db.WithContext(ctx).Where("expires_at <= ?", c.now()).Delete(&Entry{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune cache: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Stats counts entries per kind.
func (c *Cache) Stats(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Kind  string
		Count int64
	}
	err := c.db.WithContext(ctx).Model(&Entry{}).
		Select("kind, count(*) AS count").
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Kind] = r.Count
	}
	return out, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
