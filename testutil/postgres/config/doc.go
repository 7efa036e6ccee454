// Package config provides PostgreSQL connection factories for the snapshot integration tests.
//
// It creates connections for every supported adapter type (pgx.Pool, sql.DB, sqlx.DB). The DSN comes
// from SNAPSHOT_POSTGRES_DSN, a replica DSN for consistency routing tests from SNAPSHOT_POSTGRES_REPLICA_DSN.
package config
