// Package pgstore is the Postgres-backed adapter for the Job Registry,
// Conversation Session State Machine, KVStore/BlobStore, and the EventBus's
// persisted event log — the one durable deployment target behind the
// in-memory registries used by tests and single-process deployments.
// Connection setup and migration-running are grounded verbatim on the
// teacher's pkg/database/client.go: database/sql opened with the pgx/v5
// stdlib driver, golang-migrate against go:embed'd migration files. The
// teacher's ent.Client wrapping is dropped — this module has no generated
// ent package — in favor of a bare *pgxpool.Pool, the driver pkg/events/pgbus
// already uses for its own queries.
package pgstore

import (
	"context"
	stdsql "database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for migrations
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds the Postgres connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func (c Config) dsn() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Client wraps a pgxpool.Pool shared by JobStore, SessionStore, KVStore,
// and BlobStore, and reports durable-store health via Ping (satisfying
// pkg/api.Pinger).
type Client struct {
	Pool *pgxpool.Pool
}

// Open runs pending migrations then opens a connection pool against cfg.
// Migrations run over a separate database/sql connection (golang-migrate's
// postgres driver requires one); the runtime pool used by every Store in
// this package is a distinct pgxpool.Pool, closed independently via Close.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	if err := runMigrations(ctx, cfg); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Client{Pool: pool}, nil
}

// Close releases the connection pool.
func (c *Client) Close() {
	c.Pool.Close()
}

// Ping reports database reachability, satisfying pkg/api.Pinger.
func (c *Client) Ping(ctx context.Context) error {
	return c.Pool.Ping(ctx)
}

// runMigrations applies every pending migration embedded under migrations/.
func runMigrations(ctx context.Context, cfg Config) error {
	db, err := stdsql.Open("pgx", cfg.dsn())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, cfg.Database, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return sourceDriver.Close()
}
