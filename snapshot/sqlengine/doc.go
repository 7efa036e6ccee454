// Package sqlengine provides the SQL implementation of the snapshot persistence interfaces.
//
// Snapshots live in one table (default "model_snapshots") with a polymorphic reference to their
// origin entity, a JSON storage column and a version that is unique per origin. Origin entities
// are read and written as plain rows of their EntityType's table. Queries are built with goqu
// for the postgres (default) or sqlite3 dialect.
//
// Key features:
//   - Multiple database adapter support (PGX, SQL, SQLX)
//   - Transactions for all writes of one snapshot or restore operation
//   - Read replica routing for eventual consistency (PGX)
//   - Row backed entity loading and updating, usable as snapshot.EntityLoader
//   - Postgres advisory locks as a cross-process snapshot.Locker
//   - Dual-logger support, metrics and tracing
//
// Usage examples:
//
//	db, _ := pgxpool.New(context.Background(), dsn)
//	store, _ := sqlengine.NewStoreFromPGXPool(db, sqlengine.WithTableName("post_snapshots"))
//	locker, _ := sqlengine.NewAdvisoryLocker(db)
//
//	registry, _ := snapshot.NewRegistry(postType, userType)
//	registry.BindLoader(store)
//
//	snapshotter, _ := snapshot.NewSnapshotter(store, snapshot.WithLocker(locker), snapshot.WithRegistry(registry))
//
//	// SQLite
//	sqliteDB, _ := sql.Open("sqlite", "file:app.db?_time_format=sqlite")
//	store, _ = sqlengine.NewStoreFromSQLDB(sqliteDB, sqlengine.WithDialect(sqlengine.DialectSQLite))
//	_ = store.EnsureSchema(ctx)
package sqlengine
