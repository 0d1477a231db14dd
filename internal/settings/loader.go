package settings

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/linecrm/linecrm/internal/models"
	"gorm.io/gorm"
)

// RefreshDBConfigSnapshot reloads all settings from the database and updates the in-memory snapshot.
//
// Call it at startup and after every write; readers such as the maintenance
// middleware and the webhook only consult the snapshot. Writes made by other
// instances are picked up through RefreshIfStale.
func RefreshDBConfigSnapshot(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("settings: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var rows []models.SystemSetting
	if errFind := db.WithContext(ctx).
		Select("key", "value", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return errFind
	}

	values := make(map[string]string, len(rows))
	maxUpdatedAt := time.Time{}
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = row.Value
		if rowUpdatedAt := row.UpdatedAt.UTC(); rowUpdatedAt.After(maxUpdatedAt) {
			maxUpdatedAt = rowUpdatedAt
		}
	}

	StoreDBConfig(maxUpdatedAt, values)
	return nil
}

var refreshMu sync.Mutex

// RefreshIfStale reloads the snapshot when it is older than maxAge. Concurrent
// callers share a single reload. A non-positive maxAge never reloads.
func RefreshIfStale(ctx context.Context, db *gorm.DB, maxAge time.Duration) error {
	if maxAge <= 0 || time.Since(DBConfigLoadedAt()) < maxAge {
		return nil
	}
	refreshMu.Lock()
	defer refreshMu.Unlock()
	if time.Since(DBConfigLoadedAt()) < maxAge {
		return nil
	}
	return RefreshDBConfigSnapshot(ctx, db)
}
