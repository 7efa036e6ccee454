package sqlengine

import (
	"context"
	"fmt"
	"strings"
)

const postgresSnapshotTable = `CREATE TABLE IF NOT EXISTS %[1]s (
	%[2]s VARCHAR(36) PRIMARY KEY,
	%[3]s VARCHAR(255) NOT NULL,
	%[4]s VARCHAR(255) NOT NULL,
	%[5]s JSONB NOT NULL,
	%[6]s BIGINT NOT NULL,
	%[7]s TIMESTAMP WITH TIME ZONE NOT NULL,
	%[8]s TIMESTAMP WITH TIME ZONE NOT NULL,
	UNIQUE (%[3]s, %[4]s, %[6]s)
)`

const sqliteSnapshotTable = `CREATE TABLE IF NOT EXISTS %[1]s (
	%[2]s TEXT PRIMARY KEY,
	%[3]s TEXT NOT NULL,
	%[4]s TEXT NOT NULL,
	%[5]s TEXT NOT NULL,
	%[6]s INTEGER NOT NULL,
	%[7]s DATETIME NOT NULL,
	%[8]s DATETIME NOT NULL,
	UNIQUE (%[3]s, %[4]s, %[6]s)
)`

// CreateSnapshotTableSQL returns the DDL of the snapshot table with the default column names.
// The (origin type, origin id, version) triple is unique.
func CreateSnapshotTableSQL(dialect, table string) (string, error) {
	return createSnapshotTableSQL(dialect, table, colOriginType, colOriginID)
}

// AddVersionColumnSQL returns the DDL adding a nullable version column to an entity table.
func AddVersionColumnSQL(dialect, table, column string) (string, error) {
	switch dialect {
	case DialectPostgres:
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s BIGINT NULL", quoteIdent(table), quoteIdent(column)), nil
	case DialectSQLite:
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s INTEGER NULL", quoteIdent(table), quoteIdent(column)), nil
	default:
		return "", ErrUnknownDialect
	}
}

// SchemaSQL returns the DDL of this store's snapshot table, honoring its table and column options.
func (s *Store) SchemaSQL() (string, error) {
	return createSnapshotTableSQL(s.dialect, s.tableName, s.colOriginType, s.colOriginID)
}

// EnsureSchema creates the snapshot table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl, err := s.SchemaSQL()
	if err != nil {
		return err
	}

	if _, err = s.db.Exec(ctx, ddl); err != nil {
		s.logError(ctx, logMsgDBExecFailed, err, logAttrQuery, ddl)
		return err
	}

	return nil
}

func createSnapshotTableSQL(dialect, table, originTypeColumn, originIDColumn string) (string, error) {
	var template string

	switch dialect {
	case DialectPostgres:
		template = postgresSnapshotTable
	case DialectSQLite:
		template = sqliteSnapshotTable
	default:
		return "", ErrUnknownDialect
	}

	return fmt.Sprintf(template,
		quoteIdent(table),
		quoteIdent(colID),
		quoteIdent(originTypeColumn),
		quoteIdent(originIDColumn),
		quoteIdent(colStorage),
		quoteIdent(colVersion),
		quoteIdent(colCreatedAt),
		quoteIdent(colUpdatedAt),
	), nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
