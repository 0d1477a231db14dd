package settings

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// dbConfigSnapshot holds the in-memory setting values.
type dbConfigSnapshot struct {
	updatedAt time.Time
	loadedAt  time.Time
	values    map[string]string
}

// globalDBConfig stores the latest dbConfigSnapshot atomically.
var globalDBConfig atomic.Value // stores dbConfigSnapshot

func init() {
	globalDBConfig.Store(dbConfigSnapshot{values: map[string]string{}})
}

// StoreDBConfig replaces the in-memory snapshot of DB-backed settings.
func StoreDBConfig(updatedAt time.Time, values map[string]string) {
	next := make(map[string]string, len(values))
	for k, v := range values {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		next[key] = v
	}

	globalDBConfig.Store(dbConfigSnapshot{
		updatedAt: updatedAt.UTC(),
		loadedAt:  time.Now(),
		values:    next,
	})
}

// DBConfigUpdatedAt returns the newest settings update time seen by the last refresh.
func DBConfigUpdatedAt() time.Time {
	return loadDBConfig().updatedAt
}

// DBConfigLoadedAt returns when the snapshot was last stored.
func DBConfigLoadedAt() time.Time {
	return loadDBConfig().loadedAt
}

// DBConfigValue returns the cached value for a key.
func DBConfigValue(key string) (string, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}
	val, ok := loadDBConfig().values[key]
	return val, ok
}

// Bool parses a cached setting as a boolean, falling back to def.
func Bool(key string, def bool) bool {
	raw, ok := DBConfigValue(key)
	if !ok {
		return def
	}
	parsed, errParse := strconv.ParseBool(strings.TrimSpace(raw))
	if errParse != nil {
		return def
	}
	return parsed
}

// String returns a cached setting or def when unset or blank.
func String(key, def string) string {
	raw, ok := DBConfigValue(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def
	}
	return raw
}

// MaintenanceMode reports whether write endpoints are currently blocked.
func MaintenanceMode() bool {
	return Bool(MaintenanceModeKey, false)
}

func loadDBConfig() dbConfigSnapshot {
	v := globalDBConfig.Load()
	cfg, ok := v.(dbConfigSnapshot)
	if !ok || cfg.values == nil {
		return dbConfigSnapshot{values: map[string]string{}}
	}
	return cfg
}
