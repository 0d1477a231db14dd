package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// ConnectionInfo describes a reachable database.
type ConnectionInfo struct {
	Dialect       string   `json:"dialect"`
	ServerVersion string   `json:"server_version"`
	Database      string   `json:"database"`
	Tables        int      `json:"tables"`
	MissingTables []string `json:"missing_tables"`
	SettingsCount int64    `json:"settings_count"`
}

// Check pings the database and reports its version and schema state.
func Check(ctx context.Context, conn *gorm.DB) (ConnectionInfo, error) {
	info := ConnectionInfo{Dialect: DialectName(conn)}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return info, fmt.Errorf("db: check: %w", errDB)
	}
	if errPing := sqlDB.PingContext(ctx); errPing != nil {
		return info, fmt.Errorf("db: check: ping: %w", errPing)
	}

	versionQuery, databaseQuery := "SELECT version()", "SELECT current_database()"
	if IsSQLite(conn) {
		versionQuery, databaseQuery = "SELECT sqlite_version()", "SELECT file FROM pragma_database_list WHERE name = 'main'"
	}
	if errVersion := sqlDB.QueryRowContext(ctx, versionQuery).Scan(&info.ServerVersion); errVersion != nil {
		return info, fmt.Errorf("db: check: version: %w", errVersion)
	}
	if errName := sqlDB.QueryRowContext(ctx, databaseQuery).Scan(&info.Database); errName != nil {
		return info, fmt.Errorf("db: check: database name: %w", errName)
	}

	info.MissingTables = MissingTables(ctx, conn)
	info.Tables = len(RequiredTables) - len(info.MissingTables)
	if len(info.MissingTables) == 0 {
		if errCount := conn.WithContext(ctx).Table(MarkerTable).Count(&info.SettingsCount).Error; errCount != nil {
			return info, fmt.Errorf("db: check: count settings: %w", errCount)
		}
	}
	return info, nil
}
