/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.TxStore (assignments, history, timesheets) plus the
  WorkerDirectory and AttendanceSource collaborators using SQLite, so the
  service runs standalone.

INTERFACES IMPLEMENTED:
  generic.TxStore:          Assignments, history, timesheets, WithTx
  generic.WorkerDirectory:  Hourly rates (workers table)
  generic.AttendanceSource: Check-in/check-out records (attendance table)

APPEND-ONLY ENFORCEMENT:
  assignment_history has no UPDATE or DELETE path in this package, and
  triggers in the schema abort any that slip in from elsewhere.

KEY TABLES:
  assignments:        Current state of every booking
  assignment_history: Append-only transition log
  timesheets:         Weekly payroll records
  workers:            Worker directory (rates)
  attendance:         Raw attendance input

INDEXES:
  - idx_assignments_assignee_status: Conflict detection (hot path)
  - idx_assignments_entity_status:   Site rosters
  - idx_timesheets_key:              UNIQUE (worker_id, site_id, week_start)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety within the process, one pooled
  connection, and BEGIN IMMEDIATE transactions (_txlock=immediate) so a
  second process waits for the write lock instead of failing mid-transaction.
  Everything run inside WithTx goes through the *sql.Tx.

MIGRATION:
  Versioned goose migrations are embedded from migrations/ and applied
  on New().

USAGE:
  store, err := sqlite.New("./data/workforce.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/warp/workforce-engine/generic"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// Store implements all storage interfaces using SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger routes migration output to l.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a new SQLite store with the given database path and applies
// pending migrations. Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: keeps ":memory:" databases shared and writes serial.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(store)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// MIGRATIONS
// =============================================================================

func (s *Store) migrate() error {
	return s.withGoose(func() error {
		return goose.Up(s.db, migrationsDir)
	})
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion() (int64, error) {
	var version int64
	err := s.withGoose(func() error {
		v, err := goose.GetDBVersion(s.db)
		version = v
		return err
	})
	return version, err
}

// Reset drops every table and re-applies the migrations.
// Demo scenarios use this; history triggers make row deletes impossible.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.withGoose(func() error {
		if err := goose.Reset(s.db, migrationsDir); err != nil {
			return fmt.Errorf("goose reset: %w", err)
		}
		return goose.Up(s.db, migrationsDir)
	})
}

func (s *Store) withGoose(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{s.logger.Sugar()})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return fn()
}

// gooseLogger adapts zap to goose.Logger.
type gooseLogger struct {
	l *zap.SugaredLogger
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.l.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.l.Fatalf(strings.TrimSuffix(format, "\n"), v...)
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
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

// txStore runs every query on the open transaction.
type txStore struct {
	q querier
}

func (ts *txStore) InsertAssignment(ctx context.Context, a generic.Assignment) error {
	return insertAssignment(ctx, ts.q, a)
}

func (ts *txStore) UpdateAssignment(ctx context.Context, a generic.Assignment) error {
	return updateAssignment(ctx, ts.q, a)
}

func (ts *txStore) GetAssignment(ctx context.Context, id string) (*generic.Assignment, error) {
	return getAssignment(ctx, ts.q, id)
}

func (ts *txStore) ListAssignmentsByAssignee(ctx context.Context, assignee generic.Assignee) ([]generic.Assignment, error) {
	return listAssignmentsByAssignee(ctx, ts.q, assignee, false)
}

func (ts *txStore) ListActiveAssignmentsByAssignee(ctx context.Context, assignee generic.Assignee) ([]generic.Assignment, error) {
	return listAssignmentsByAssignee(ctx, ts.q, assignee, true)
}

func (ts *txStore) ListActiveAssignmentsByEntity(ctx context.Context, entity generic.Entity) ([]generic.Assignment, error) {
	return listActiveAssignmentsByEntity(ctx, ts.q, entity)
}

func (ts *txStore) AppendHistory(ctx context.Context, entry generic.HistoryEntry) error {
	return appendHistory(ctx, ts.q, entry)
}

func (ts *txStore) History(ctx context.Context, assignmentID string) ([]generic.HistoryEntry, error) {
	return history(ctx, ts.q, assignmentID)
}

func (ts *txStore) SaveTimesheet(ctx context.Context, t generic.Timesheet) (string, error) {
	return saveTimesheet(ctx, ts.q, t)
}

func (ts *txStore) GetTimesheet(ctx context.Context, id string) (*generic.Timesheet, error) {
	return getTimesheet(ctx, ts.q, id)
}

func (ts *txStore) GetTimesheetByKey(ctx context.Context, key generic.TimesheetKey) (*generic.Timesheet, error) {
	return getTimesheetByKey(ctx, ts.q, key)
}

func (ts *txStore) ListTimesheetsByWorker(ctx context.Context, workerID string) ([]generic.Timesheet, error) {
	return listTimesheetsByWorker(ctx, ts.q, workerID)
}

// =============================================================================
// STORE (generic.Store interface, outside a transaction)
// =============================================================================

func (s *Store) InsertAssignment(ctx context.Context, a generic.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertAssignment(ctx, s.db, a)
}

func (s *Store) UpdateAssignment(ctx context.Context, a generic.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateAssignment(ctx, s.db, a)
}

func (s *Store) GetAssignment(ctx context.Context, id string) (*generic.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAssignment(ctx, s.db, id)
}

func (s *Store) ListAssignmentsByAssignee(ctx context.Context, assignee generic.Assignee) ([]generic.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAssignmentsByAssignee(ctx, s.db, assignee, false)
}

func (s *Store) ListActiveAssignmentsByAssignee(ctx context.Context, assignee generic.Assignee) ([]generic.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAssignmentsByAssignee(ctx, s.db, assignee, true)
}

func (s *Store) ListActiveAssignmentsByEntity(ctx context.Context, entity generic.Entity) ([]generic.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listActiveAssignmentsByEntity(ctx, s.db, entity)
}

func (s *Store) AppendHistory(ctx context.Context, entry generic.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendHistory(ctx, s.db, entry)
}

func (s *Store) History(ctx context.Context, assignmentID string) ([]generic.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return history(ctx, s.db, assignmentID)
}

func (s *Store) SaveTimesheet(ctx context.Context, t generic.Timesheet) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveTimesheet(ctx, s.db, t)
}

func (s *Store) GetTimesheet(ctx context.Context, id string) (*generic.Timesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTimesheet(ctx, s.db, id)
}

func (s *Store) GetTimesheetByKey(ctx context.Context, key generic.TimesheetKey) (*generic.Timesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTimesheetByKey(ctx, s.db, key)
}

func (s *Store) ListTimesheetsByWorker(ctx context.Context, workerID string) ([]generic.Timesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTimesheetsByWorker(ctx, s.db, workerID)
}

// =============================================================================
// HELPERS
// =============================================================================

func formatDate(d generic.Date) string { return d.String() }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullDate(d *generic.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(*d), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func parseHours(value string) generic.Amount {
	return generic.Amount{
		Value: generic.MustParseDecimal(value),
		Unit:  generic.UnitHours,
	}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
