// Package adapters provide database adapter implementations for the SQL snapshot store.
//
// This package implements the adapter pattern to support multiple database libraries:
// pgx.Pool, sql.DB, and sqlx.DB. All adapters provide equivalent functionality through
// a common DBAdapter interface, including transactions, allowing the store to work with
// any supported connection type. sql.DB and sqlx.DB work with any database/sql driver,
// which is how SQLite is supported.
package adapters
