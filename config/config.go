package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
	"github.com/AntonStoeckl/entity-snapshots-go/snapshot/sqlengine"
)

// Database drivers understood by OpenSQLDB.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Lock backends.
const (
	LockBackendLocal    = "local"
	LockBackendAdvisory = "advisory"
)

// Environment variables overriding file values.
const (
	EnvDatabaseDriver   = "SNAPSHOT_DB_DRIVER"
	EnvDatabaseDSN      = "SNAPSHOT_DB_DSN"
	EnvMaxOpenConns     = "SNAPSHOT_DB_MAX_OPEN_CONNS"
	EnvTable            = "SNAPSHOT_TABLE"
	EnvDialect          = "SNAPSHOT_DIALECT"
	EnvOriginTypeColumn = "SNAPSHOT_ORIGIN_TYPE_COLUMN"
	EnvOriginIDColumn   = "SNAPSHOT_ORIGIN_ID_COLUMN"
	EnvLockBackend      = "SNAPSHOT_LOCK_BACKEND"
	EnvLockTimeout      = "SNAPSHOT_LOCK_TIMEOUT"
	EnvLockPoll         = "SNAPSHOT_LOCK_POLL_INTERVAL"
	EnvSnapshotLockName = "SNAPSHOT_LOCK_NAME"
	EnvRestoreLockName  = "SNAPSHOT_RESTORE_LOCK_NAME"
	EnvTimestampPrefix  = "SNAPSHOT_TIMESTAMP_PREFIX"
)

var ErrInvalidConfig = fmt.Errorf("%w: invalid config", snapshot.ErrConfiguration)

// Config is the complete engine configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Store    StoreConfig    `yaml:"store"`
	Locks    LocksConfig    `yaml:"locks"`

	// TimestampPrefix renames the origin's own timestamps in snapshots; "" disables renaming.
	TimestampPrefix string `yaml:"timestamp_prefix"`
}

// DatabaseConfig selects the connection OpenSQLDB opens.
type DatabaseConfig struct {
	Driver       string `yaml:"driver" validate:"required,oneof=postgres sqlite"`
	DSN          string `yaml:"dsn" validate:"required"`
	MaxOpenConns int    `yaml:"max_open_conns" validate:"gte=0"`
}

// StoreConfig shapes the snapshot table.
type StoreConfig struct {
	Table            string `yaml:"table" validate:"required"`
	Dialect          string `yaml:"dialect" validate:"required,oneof=postgres sqlite3"`
	OriginTypeColumn string `yaml:"origin_type_column" validate:"required"`
	OriginIDColumn   string `yaml:"origin_id_column" validate:"required,nefield=OriginTypeColumn"`
}

// LocksConfig configures the snapshot and restore locks.
type LocksConfig struct {
	Backend          string        `yaml:"backend" validate:"required,oneof=local advisory"`
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	PollInterval     time.Duration `yaml:"poll_interval" validate:"gt=0,ltefield=Timeout"`
	SnapshotLockName string        `yaml:"snapshot_lock_name" validate:"required"`
	RestoreLockName  string        `yaml:"restore_lock_name" validate:"required,nefield=SnapshotLockName"`
}

// Default returns the configuration the engine uses without any file or environment.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver: DriverPostgres,
		},
		Store: StoreConfig{
			Table:            "model_snapshots",
			Dialect:          sqlengine.DialectPostgres,
			OriginTypeColumn: "origin_type",
			OriginIDColumn:   "origin_id",
		},
		Locks: LocksConfig{
			Backend:          LockBackendLocal,
			Timeout:          snapshot.DefaultLockTimeout,
			PollInterval:     50 * time.Millisecond,
			SnapshotLockName: snapshot.DefaultSnapshotLockName,
			RestoreLockName:  snapshot.DefaultRestoreLockName,
		},
		TimestampPrefix: snapshot.DefaultTimestampPrefix,
	}
}

// Load reads the YAML file at path over the defaults, applies environment overrides and validates.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Join(ErrInvalidConfig, err)
		}

		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Join(ErrInvalidConfig, fmt.Errorf("parsing %s: %w", path, err))
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ApplyEnv overrides values with the SNAPSHOT_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(key string) (string, bool)) error {
	strings := map[string]*string{
		EnvDatabaseDriver:   &c.Database.Driver,
		EnvDatabaseDSN:      &c.Database.DSN,
		EnvTable:            &c.Store.Table,
		EnvDialect:          &c.Store.Dialect,
		EnvOriginTypeColumn: &c.Store.OriginTypeColumn,
		EnvOriginIDColumn:   &c.Store.OriginIDColumn,
		EnvLockBackend:      &c.Locks.Backend,
		EnvSnapshotLockName: &c.Locks.SnapshotLockName,
		EnvRestoreLockName:  &c.Locks.RestoreLockName,
		EnvTimestampPrefix:  &c.TimestampPrefix,
	}

	for key, target := range strings {
		if value, ok := lookup(key); ok {
			*target = value
		}
	}

	durations := map[string]*time.Duration{
		EnvLockTimeout: &c.Locks.Timeout,
		EnvLockPoll:    &c.Locks.PollInterval,
	}

	for key, target := range durations {
		value, ok := lookup(key)
		if !ok {
			continue
		}

		parsed, err := time.ParseDuration(value)
		if err != nil {
			return errors.Join(ErrInvalidConfig, fmt.Errorf("%s: %w", key, err))
		}

		*target = parsed
	}

	if value, ok := lookup(EnvMaxOpenConns); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return errors.Join(ErrInvalidConfig, fmt.Errorf("%s: %w", EnvMaxOpenConns, err))
		}

		c.Database.MaxOpenConns = parsed
	}

	return nil
}

// Validate checks the struct rules and that the driver and dialect fit together.
func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}

	if dialectFor(c.Database.Driver) != c.Store.Dialect {
		return errors.Join(
			ErrInvalidConfig,
			fmt.Errorf("dialect %q does not fit driver %q", c.Store.Dialect, c.Database.Driver),
		)
	}

	if c.Locks.Backend == LockBackendAdvisory && c.Database.Driver != DriverPostgres {
		return errors.Join(ErrInvalidConfig, errors.New("advisory locks need the postgres driver"))
	}

	return nil
}

func dialectFor(driver string) string {
	if driver == DriverSQLite {
		return sqlengine.DialectSQLite
	}

	return sqlengine.DialectPostgres
}

// SnapshotterOptions translates the lock and timestamp settings into Snapshotter options.
func (c Config) SnapshotterOptions() []snapshot.Option {
	return []snapshot.Option{
		snapshot.WithSnapshotLock(c.Locks.SnapshotLockName, c.Locks.Timeout),
		snapshot.WithRestoreLock(c.Locks.RestoreLockName, c.Locks.Timeout),
		snapshot.WithTimestampPrefix(c.TimestampPrefix),
	}
}

// StoreOptions translates the table settings into Store options.
func (c Config) StoreOptions() []sqlengine.Option {
	return []sqlengine.Option{
		sqlengine.WithTableName(c.Store.Table),
		sqlengine.WithDialect(c.Store.Dialect),
		sqlengine.WithOriginColumns(c.Store.OriginTypeColumn, c.Store.OriginIDColumn),
	}
}
