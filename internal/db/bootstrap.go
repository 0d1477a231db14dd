package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

//go:embed schema/postgres.sql
var postgresSchema string

//go:embed schema/sqlite.sql
var sqliteSchema string

// MarkerTable is checked to decide whether the schema script must run.
const MarkerTable = "system_settings"

// RequiredTables lists every table the application reads or writes.
var RequiredTables = []string{
	"system_settings",
	"line_users",
	"line_groups",
	"group_members",
	"messages",
	"message_attachments",
	"tags",
	"user_tags",
	"group_tags",
	"daily_stats",
	"workflow_logs",
	"admin_sessions",
	"login_states",
}

// Report summarizes one bootstrap run.
type Report struct {
	// Initialized is true when the schema script was executed.
	Initialized   bool
	Executed      int
	AlreadyExists int
	MissingBefore []string
	SettingsCount int64
}

// SchemaScript returns the embedded schema script for the connection's dialect.
func SchemaScript(conn *gorm.DB) string {
	if IsSQLite(conn) {
		return sqliteSchema
	}
	return postgresSchema
}

// Bootstrap creates the schema and seed rows when they are missing and then
// verifies the marker table. It is safe to run repeatedly and from several
// processes at once.
func Bootstrap(ctx context.Context, conn *gorm.DB) (Report, error) {
	if conn == nil {
		return Report{}, errors.New("db: nil connection")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var report Report
	errRun := withBootstrapLock(ctx, conn, func() error {
		missing := MissingTables(ctx, conn)
		report.MissingBefore = missing
		if len(missing) == 0 {
			log.Debug("db: schema already initialized")
		} else {
			log.WithField("missing", missing).Info("db: initializing schema")
			executed, skipped, errExec := execScript(ctx, conn, SchemaScript(conn))
			report.Executed = executed
			report.AlreadyExists = skipped
			if errExec != nil {
				return errExec
			}
			report.Initialized = true
		}
		count, errVerify := verify(ctx, conn)
		report.SettingsCount = count
		if errVerify != nil {
			return errVerify
		}
		if report.Initialized && count == 0 {
			return errors.New("db: verify: no system settings after initialization")
		}
		return nil
	})
	if errRun != nil {
		return report, errRun
	}

	log.WithFields(log.Fields{
		"initialized":    report.Initialized,
		"executed":       report.Executed,
		"already_exists": report.AlreadyExists,
		"settings":       report.SettingsCount,
	}).Info("db: bootstrap complete")
	return report, nil
}

// MissingTables returns the required tables that do not exist.
func MissingTables(ctx context.Context, conn *gorm.DB) []string {
	migrator := conn.WithContext(ctx).Migrator()
	var missing []string
	for _, table := range RequiredTables {
		if !migrator.HasTable(table) {
			missing = append(missing, table)
		}
	}
	return missing
}

// execScript runs each statement in order. Already-exists failures are logged
// and skipped; any other failure stops the script.
func execScript(ctx context.Context, conn *gorm.DB, script string) (executed, skipped int, err error) {
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return 0, 0, fmt.Errorf("db: bootstrap: %w", errDB)
	}
	statements := SplitStatements(script)
	for idx, stmt := range statements {
		_, errExec := sqlDB.ExecContext(ctx, stmt)
		switch ClassifyExecError(errExec) {
		case ExecOK:
			executed++
		case ExecAlreadyExists:
			skipped++
			log.WithFields(log.Fields{
				"statement": idx + 1,
				"error":     errExec.Error(),
			}).Warn("db: bootstrap statement skipped, object already exists")
		default:
			return executed, skipped, fmt.Errorf("db: bootstrap statement %d of %d: %w", idx+1, len(statements), errExec)
		}
	}
	return executed, skipped, nil
}

// verify re-checks the marker table and returns the number of settings rows.
func verify(ctx context.Context, conn *gorm.DB) (int64, error) {
	if !conn.WithContext(ctx).Migrator().HasTable(MarkerTable) {
		return 0, fmt.Errorf("db: verify: table %s missing", MarkerTable)
	}
	var count int64
	if errCount := conn.WithContext(ctx).Table(MarkerTable).Count(&count).Error; errCount != nil {
		return 0, fmt.Errorf("db: verify: count settings: %w", errCount)
	}
	return count, nil
}
