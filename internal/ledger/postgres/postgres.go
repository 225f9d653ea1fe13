// Package postgres implements ledger.Backend on a PostgreSQL table, one row
// per key carrying the value and the signature that authorized it.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/peerledger/internal/ledger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ledger is a ledger.Backend backed by PostgreSQL.
type Ledger struct {
	db *sql.DB
}

// Compile-time checks.
var (
	_ ledger.Backend = (*Ledger)(nil)
	_ ledger.Lister  = (*Ledger)(nil)
)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*Ledger, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Ledger{db: db}, nil
}

// NewWithDB wraps an already-migrated database handle.
func NewWithDB(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "ledger_schema_migrations"})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

func (l *Ledger) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := queryGet(ctx, l.db, key)
	return v, unavailable(err)
}

func (l *Ledger) Put(ctx context.Context, w *ledger.SignedWrite) error {
	return unavailable(queryPut(ctx, l.db, w))
}

func (l *Ledger) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := queryKeys(ctx, l.db, prefix)
	return keys, unavailable(err)
}

// Entry returns the full signed write stored under key, or nil.
func (l *Ledger) Entry(ctx context.Context, key string) (*ledger.SignedWrite, error) {
	w, err := queryEntry(ctx, l.db, key)
	return w, unavailable(err)
}

func (l *Ledger) Ping(ctx context.Context) error {
	return unavailable(l.db.PingContext(ctx))
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}
