package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"  // database/sql driver "postgres"
	_ "modernc.org/sqlite" // database/sql driver "sqlite"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
	"github.com/AntonStoeckl/entity-snapshots-go/snapshot/sqlengine"
)

// OpenSQLDB opens and pings the configured database through database/sql.
func (c Config) OpenSQLDB(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open(c.Database.Driver, c.Database.DSN)
	if err != nil {
		return nil, errors.Join(snapshot.ErrConfiguration, err)
	}

	if c.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.Database.MaxOpenConns)
	}

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close() // the ping error is what matters

		return nil, fmt.Errorf("pinging %s database: %w", c.Database.Driver, pingErr)
	}

	return db, nil
}

// NewSQLStore opens the database and creates a Store configured by StoreOptions.
// Extra options, e.g. observability, are applied after the configured ones.
func (c Config) NewSQLStore(ctx context.Context, options ...sqlengine.Option) (*sqlengine.Store, *sql.DB, error) {
	db, err := c.OpenSQLDB(ctx)
	if err != nil {
		return nil, nil, err
	}

	store, err := sqlengine.NewStoreFromSQLDB(db, append(c.StoreOptions(), options...)...)
	if err != nil {
		_ = db.Close() // the option error is what matters

		return nil, nil, err
	}

	return store, db, nil
}

// Locker returns the configured lock backend. The advisory backend needs a pgx pool.
func (c Config) Locker(pool *pgxpool.Pool) (snapshot.Locker, error) {
	if c.Locks.Backend != LockBackendAdvisory {
		return snapshot.NewLocalLocker(), nil
	}

	locker, err := sqlengine.NewAdvisoryLocker(pool, sqlengine.WithPollInterval(c.Locks.PollInterval))
	if err != nil {
		return nil, err
	}

	return locker, nil
}
