// Package sqlutil provides SQL utility functions.
package sqlutil

import "strings"

// Dialect selects identifier quoting for a database family.
type Dialect string

const (
	// MySQL covers MySQL and TiDB.
	MySQL Dialect = "mysql"
	// SQLite uses ANSI double-quoted identifiers.
	SQLite Dialect = "sqlite"
)

// ParseDialect maps a driver name to a Dialect. Unknown names fall back to MySQL.
func ParseDialect(driver string) Dialect {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return SQLite
	default:
		return MySQL
	}
}

// QuoteIdentifier quotes an identifier for the dialect.
func (d Dialect) QuoteIdentifier(name string) string {
	if d == SQLite {
		return QuoteANSIIdentifier(name)
	}
	return QuoteIdentifier(name)
}

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// with backticks and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QuoteANSIIdentifier quotes an identifier with double quotes and escapes any
// double quotes within it.
func QuoteANSIIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// QuoteString quotes a SQL string literal with single quotes and escapes
// any single quotes within the string by doubling them.
func QuoteString(s string) string {
	escaped := strings.ReplaceAll(s, "'", "''")
	return "'" + escaped + "'"
}
