package db

import "gorm.io/gorm"

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

// LeastFunc returns the SQL function computing the minimum of its arguments.
// SQLite spells the variadic scalar form MIN; PostgreSQL uses LEAST.
func LeastFunc(conn *gorm.DB) string {
	if IsSQLite(conn) {
		return "MIN"
	}
	return "LEAST"
}

// GreatestFunc returns the SQL function computing the maximum of its arguments.
func GreatestFunc(conn *gorm.DB) string {
	if IsSQLite(conn) {
		return "MAX"
	}
	return "GREATEST"
}
