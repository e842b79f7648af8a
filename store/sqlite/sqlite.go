/*
Package sqlite provides the SQLite-backed implementation of engine.Store.

PURPOSE:
  Implements the unit of work (WithTx), the committed read view (View),
  the durability flush and the currency service on top of a single
  embedded database file.

KEY TABLES:
  sheet_types, batches:        catalog and purchase lots
  sales, sale_items, payments: invoices
  ledger_entries:              append-only account ledger (customer/supplier)
  inventory_movements:         additive stock audit
  currencies, expenses:        reference data and expense approval

CONCURRENCY:
  One writer at a time. WithTx takes the write lock for the whole unit of
  work and the pool is pinned to a single connection; View takes the read
  lock. Nothing inside a unit of work may call back into the Store.

WAL MODE:
  The file is opened with WAL; Flush checkpoints the WAL into the main
  database file after each committed operation.

MIGRATION:
  Versioned SQL files under migrations/ are embedded and applied with goose
  when the store is opened. There are no per-operation schema checks.

USAGE:
  store, err := sqlite.New(ctx, "./data/sheets.db")
  if err != nil {
      return err
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/warp/sheet-ledger/engine"
)

//go:embed migrations/*.sql
var migrations embed.FS

const timestampLayout = time.RFC3339Nano

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	inMemory bool
}

var _ engine.Store = (*Store)(nil)
var _ engine.Flusher = (*Store)(nil)
var _ engine.CurrencyService = (*Store)(nil)

// New opens (or creates) the database at dbPath and applies pending
// migrations. Use ":memory:" for a private in-memory database.
func New(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps :memory: databases alive and matches the
	// single-writer model
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db, inMemory: dbPath == ":memory:"}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version_id), 0) FROM goose_db_version WHERE is_applied = 1",
	).Scan(&version)
	return version, err
}

// =============================================================================
// UNIT OF WORK (engine.Store)
// =============================================================================

// WithTx runs fn inside one database transaction. Any error from fn, or a
// panic, rolls the whole transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// View runs fn against committed state under the read lock.
func (s *Store) View(ctx context.Context, fn func(engine.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&txStore{q: s.db})
}

// Flush checkpoints the WAL into the database file.
func (s *Store) Flush(ctx context.Context) error {
	if s.inMemory {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var busy, logFrames, checkpointed int
	if err := s.db.QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &logFrames, &checkpointed); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	if busy != 0 {
		return fmt.Errorf("wal checkpoint incomplete: database busy")
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txStore implements engine.Tx over a querier.
type txStore struct {
	q querier
}

var _ engine.Tx = (*txStore)(nil)

func (t *txStore) insert(ctx context.Context, constraint string, query string, args ...any) (int64, error) {
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(err, constraint)
	}
	return res.LastInsertId()
}

func (t *txStore) exec(ctx context.Context, constraint string, query string, args ...any) (int64, error) {
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(err, constraint)
	}
	return res.RowsAffected()
}

// =============================================================================
// HELPERS
// =============================================================================

func now() string {
	return time.Now().UTC().Format(timestampLayout)
}

func formatDate(t time.Time) string {
	return t.Format(engine.DateLayout)
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(engine.DateLayout, s)
	return t
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(timestampLayout, s)
	return t
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func idPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// decimals parses stored decimal columns in order, stopping at the first
// malformed value.
type decimals struct {
	err error
}

func (d *decimals) parse(s string) decimal.Decimal {
	if d.err != nil {
		return decimal.Zero
	}
	parsed, err := engine.ParseDecimal(s)
	if err != nil {
		d.err = fmt.Errorf("malformed decimal %q: %w", s, err)
		return decimal.Zero
	}
	return parsed
}
