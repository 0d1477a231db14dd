package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linecrm/linecrm/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a setting key does not exist.
var ErrNotFound = errors.New("settings: not found")

// EnsureDefaults inserts any missing default setting. Existing rows are left untouched.
// It returns the number of rows inserted.
func EnsureDefaults(ctx context.Context, db *gorm.DB) (int64, error) {
	defaults := DefaultSettings()
	now := time.Now().UTC()
	rows := make([]models.SystemSetting, 0, len(defaults))
	for _, d := range defaults {
		rows = append(rows, models.SystemSetting{
			Key:         d.Key,
			Value:       d.Value,
			Description: d.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, DoNothing: true}).
		Create(&rows)
	if res.Error != nil {
		return 0, fmt.Errorf("settings: seed defaults: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.WithField("inserted", res.RowsAffected).Info("settings: seeded default settings")
	}
	return res.RowsAffected, nil
}

// List returns settings ordered by key, optionally restricted to one key.
// An empty table is seeded with the defaults first.
func List(ctx context.Context, db *gorm.DB, key string) ([]models.SystemSetting, error) {
	var count int64
	if errCount := db.WithContext(ctx).Model(&models.SystemSetting{}).Count(&count).Error; errCount != nil {
		return nil, fmt.Errorf("settings: count: %w", errCount)
	}
	if count == 0 {
		if _, errSeed := EnsureDefaults(ctx, db); errSeed != nil {
			return nil, errSeed
		}
		if errRefresh := RefreshDBConfigSnapshot(ctx, db); errRefresh != nil {
			log.WithError(errRefresh).Warn("settings: refresh snapshot after seeding")
		}
	}

	q := db.WithContext(ctx).Model(&models.SystemSetting{})
	if key = strings.TrimSpace(key); key != "" {
		q = q.Where("key = ?", key)
	}
	var rows []models.SystemSetting
	if errFind := q.Order("key ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("settings: list: %w", errFind)
	}
	return rows, nil
}

// Get returns one setting by key.
func Get(ctx context.Context, db *gorm.DB, key string) (models.SystemSetting, error) {
	var row models.SystemSetting
	errFind := db.WithContext(ctx).Where("key = ?", strings.TrimSpace(key)).First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.SystemSetting{}, ErrNotFound
	}
	if errFind != nil {
		return models.SystemSetting{}, fmt.Errorf("settings: get: %w", errFind)
	}
	return row, nil
}

// Update sets the value of an existing key, refreshes the snapshot and returns the stored row.
func Update(ctx context.Context, db *gorm.DB, key, value string) (models.SystemSetting, error) {
	key = strings.TrimSpace(key)
	res := db.WithContext(ctx).
		Model(&models.SystemSetting{}).
		Where("key = ?", key).
		Updates(map[string]any{"value": value, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return models.SystemSetting{}, fmt.Errorf("settings: update: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.SystemSetting{}, ErrNotFound
	}
	if errRefresh := RefreshDBConfigSnapshot(ctx, db); errRefresh != nil {
		log.WithError(errRefresh).Warn("settings: refresh snapshot after update")
	}
	return Get(ctx, db, key)
}
