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

// ContainsFilter returns a case-insensitive substring condition and its argument.
func ContainsFilter(conn *gorm.DB, column, needle string) (string, string) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(needle)
	pattern := "%" + escaped + "%"
	if IsSQLite(conn) {
		return fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, column), strings.ToLower(pattern)
	}
	return fmt.Sprintf(`%s ILIKE ? ESCAPE '\'`, column), pattern
}
