package db

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// bootstrapLockKey identifies the PostgreSQL advisory lock held during bootstrap.
const bootstrapLockKey int64 = 7_305_418_231_902_117

// sqliteBootstrapMu serializes bootstrap within one process; SQLite has no advisory locks.
var sqliteBootstrapMu sync.Mutex

// withBootstrapLock runs fn while holding the bootstrap lock.
// On PostgreSQL the lock is session-scoped and held on a dedicated connection,
// so concurrent instances wait for each other.
func withBootstrapLock(ctx context.Context, conn *gorm.DB, fn func() error) error {
	if IsSQLite(conn) {
		sqliteBootstrapMu.Lock()
		defer sqliteBootstrapMu.Unlock()
		return fn()
	}

	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return fmt.Errorf("db: bootstrap lock: %w", errDB)
	}
	lockConn, errConn := sqlDB.Conn(ctx)
	if errConn != nil {
		return fmt.Errorf("db: bootstrap lock conn: %w", errConn)
	}
	defer func() {
		if errClose := lockConn.Close(); errClose != nil {
			log.WithError(errClose).Warn("db: close bootstrap lock conn")
		}
	}()

	if _, errLock := lockConn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", bootstrapLockKey); errLock != nil {
		return fmt.Errorf("db: acquire bootstrap lock: %w", errLock)
	}
	defer func() {
		if _, errUnlock := lockConn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", bootstrapLockKey); errUnlock != nil {
			log.WithError(errUnlock).Warn("db: release bootstrap lock")
		}
	}()

	return fn()
}
