// Package ledger persists users, wallets, balances, instruments, orders and
// trades. It is the source of truth: the in-memory book is a cache that can
// be rebuilt from live orders at any time. Two backends are supported,
// PostgreSQL for deployments and SQLite for development and tests, behind
// the same SQL code path.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Supported driver names as they appear in configuration.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// ErrUnknownDriver is returned by Open for drivers other than the two above.
var ErrUnknownDriver = errors.New("unknown database driver")

// Store owns the database handle. All access goes through transactions
// obtained from Begin, or the View/Update helpers.
type Store struct {
	db     *sqlx.DB
	driver string
	log    *zap.Logger
}

// Open connects to the database identified by driver and dsn. SQLite is
// restricted to a single connection so row-level locking semantics degrade
// safely to full serialization.
func Open(driver, dsn string, log *zap.Logger) (*Store, error) {
	var sqlDriver string
	switch driver {
	case DriverPostgres:
		sqlDriver = "pgx"
	case DriverSQLite:
		sqlDriver = "sqlite3"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sqlx.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	log.Info("ledger connected", zap.String("driver", driver))
	return &Store{db: db, driver: driver, log: log.Named("ledger")}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the configured driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Bootstrap applies the embedded schema. Statements are idempotent.
func (s *Store) Bootstrap(ctx context.Context) error {
	stmts := schemaSQLite
	if s.driver == DriverPostgres {
		stmts = schemaPostgres
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	s.log.Info("schema ready", zap.Int("statements", len(stmts)))
	return nil
}

// Tx is a transaction with typed repository operations attached. Queries are
// written with ? placeholders and rebound for the active driver.
type Tx struct {
	tx     *sqlx.Tx
	driver string
	done   bool
}

// Begin opens a transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx, driver: s.driver}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	t.done = true
	return t.tx.Commit()
}

// Rollback aborts the transaction. Safe to defer after Begin; it is a no-op
// once Commit has run.
func (t *Tx) Rollback() {
	if t.done {
		return
	}
	_ = t.tx.Rollback()
}

// Update runs fn in a transaction, committing when fn returns nil.
func (s *Store) Update(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// View runs fn in a transaction that is always rolled back. Use for
// multi-statement reads that need a consistent snapshot.
func (s *Store) View(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(tx)
}

// rebind converts ? placeholders to the driver's native form.
func (t *Tx) rebind(query string) string {
	if t.driver == DriverPostgres {
		return sqlx.Rebind(sqlx.DOLLAR, query)
	}
	return query
}

// forUpdate returns the row-lock suffix. SQLite runs on a single connection,
// so the suffix is only meaningful on Postgres.
func (t *Tx) forUpdate() string {
	if t.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// insertReturningID runs an INSERT that produces a generated integer key.
// Postgres needs RETURNING; SQLite reports it through LastInsertId.
func (t *Tx) insertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	if t.driver == DriverPostgres {
		var id int64
		err := t.tx.QueryRowContext(ctx, t.rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// isUniqueViolation reports whether err is a unique-constraint failure on
// either backend.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
