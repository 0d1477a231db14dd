package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Dialect identifiers supported by the database layer.
const (
	// DialectPostgres is the PostgreSQL dialect name.
	DialectPostgres = "postgres"
	// DialectSQLite is the SQLite dialect name.
	DialectSQLite = "sqlite"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// DriverName returns the database/sql driver name behind the connection,
// which sqlx uses to pick its bind variable style.
func DriverName(conn *gorm.DB) string {
	if IsSQLite(conn) {
		return "sqlite"
	}
	return "pgx"
}

// CaseInsensitiveLikeExpr returns a SQL expression for case-insensitive LIKE.
// SQLite's LOWER only folds ASCII, so on SQLite "Ä" and "ä" stay distinct;
// Postgres ILIKE folds per the database collation.
func CaseInsensitiveLikeExpr(conn *gorm.DB, column string) string {
	if IsSQLite(conn) {
		return fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '\\'", column)
	}
	return fmt.Sprintf("%s ILIKE ?", column)
}

// NormalizeLikePattern normalizes a LIKE pattern for the current dialect.
func NormalizeLikePattern(conn *gorm.DB, pattern string) string {
	if IsSQLite(conn) {
		return strings.ToLower(pattern)
	}
	return pattern
}

// ContainsPattern escapes LIKE wildcards in term and wraps it for substring matching.
func ContainsPattern(conn *gorm.DB, term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return NormalizeLikePattern(conn, "%"+replacer.Replace(term)+"%")
}

// DateKeyExpr returns an expression that formats a timestamp column as YYYY-MM-DD text.
func DateKeyExpr(conn *gorm.DB, column string) string {
	if IsSQLite(conn) {
		return fmt.Sprintf("substr(%s, 1, 10)", column)
	}
	return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", column)
}
