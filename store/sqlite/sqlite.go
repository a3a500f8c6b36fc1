// Package sqlite provides the SQLite implementation of the registry
// store.
//
// # Calling Conventions
//
// Individual methods execute against s.conn, which is either the
// underlying *sql.DB (autocommit mode) or a *sql.Tx (transactional
// mode). In autocommit mode every statement runs in its own implicit
// transaction, so single-statement methods (Get, Delete, List) are
// atomic by themselves. The multi-step attach workflows wrap
// themselves in RunInTransaction; anything else that needs
// atomicity across calls must do the same:
//
//	err := st.RunInTransaction(ctx, func(tx store.Store) error {
//	    if _, err := tx.CreateLink(ctx, link); err != nil {
//	        return err // triggers rollback
//	    }
//	    _, err := tx.UpdateProgram(ctx, prog)
//	    return err // commits if nil
//	})
//
// # Concurrency Model
//
// The store assumes a single logical connection per caller context
// and introduces no locking of its own; concurrent writers are
// serialised by the engine. File-backed databases are opened in WAL
// mode so readers never block writers. Transactions use the default
// DEFERRED type, which is sufficient because atomicity and rollback
// are what the attach workflows need, not writer coordination.
//
// # Prepared Statements
//
// All SQL uses prepared statements compiled once at open time.
// Transactional calls bind the compiled masters to the transaction
// with tx.StmtContext; the masters themselves are never invalidated
// by transaction lifecycle events.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/frobware/bpfreg/store"
)

const driverName = "sqlite"

//go:embed schema.sql
var schemaSQL string

// msec formats a duration as milliseconds with 3 decimal places.
func msec(d time.Duration) string {
	return fmt.Sprintf("%.3f", float64(d.Microseconds())/1000)
}

// dsn builds a modernc.org/sqlite DSN from a path and pragma
// key-value pairs, each formatted as _pragma=key(value).
func dsn(path string, pragmas [][2]string) string {
	s := path
	for i, p := range pragmas {
		if i == 0 {
			s += "?"
		} else {
			s += "&"
		}
		s += "_pragma=" + p[0] + "(" + p[1] + ")"
	}
	return s
}

// dbConn abstracts *sql.DB and *sql.Tx for query execution.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteStore implements store.Store using SQLite.
type sqliteStore struct {
	db     *sql.DB // original connection, used for BeginTx
	conn   dbConn  // active connection (db or tx)
	logger *slog.Logger

	// Program statements
	stmtCreateProgram     *sql.Stmt
	stmtUpsertProgram     *sql.Stmt
	stmtGetProgram        *sql.Stmt
	stmtListPrograms      *sql.Stmt
	stmtUpdateProgram     *sql.Stmt
	stmtDeleteProgram     *sql.Stmt
	stmtDeleteAllPrograms *sql.Stmt

	// Link statements
	stmtCreateLink         *sql.Stmt
	stmtUpsertLink         *sql.Stmt
	stmtGetLink            *sql.Stmt
	stmtListLinks          *sql.Stmt
	stmtListLinksByProgram *sql.Stmt
	stmtUpdateLink         *sql.Stmt
	stmtDeleteLink         *sql.Stmt
	stmtDeleteAllLinks     *sql.Stmt

	// Map statements
	stmtCreateMap     *sql.Stmt
	stmtUpsertMap     *sql.Stmt
	stmtGetMap        *sql.Stmt
	stmtListMaps      *sql.Stmt
	stmtUpdateMap     *sql.Stmt
	stmtDeleteMap     *sql.Stmt
	stmtDeleteAllMaps *sql.Stmt

	// Program-map association statements
	stmtCreateProgramMap         *sql.Stmt
	stmtListProgramMaps          *sql.Stmt
	stmtListProgramMapsByProgram *sql.Stmt
}

// New creates a SQLite store at the given path, creating the parent
// directory and applying the schema as needed.
func New(ctx context.Context, dbPath string, logger *slog.Logger) (store.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "db", dbPath)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open(driverName, dsn(dbPath, [][2]string{{"journal_mode", "WAL"}, {"foreign_keys", "1"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &sqliteStore{db: db, conn: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.Info("opened database", "path", dbPath)
	return s, nil
}

// NewInMemory creates an in-memory SQLite store for testing.
func NewInMemory(ctx context.Context, logger *slog.Logger) (store.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "db", ":memory:")

	db, err := sql.Open(driverName, dsn(":memory:", [][2]string{{"foreign_keys", "1"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// Each pooled connection would otherwise see its own private
	// memory database.
	db.SetMaxOpenConns(1)

	s := &sqliteStore{db: db, conn: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.Info("opened in-memory database")
	return s, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close closes all prepared statements and the database connection.
func (s *sqliteStore) Close() error {
	s.closeStatements()
	return s.db.Close()
}

// closeStatements closes all prepared statements. Close errors are
// ignored because the database is about to be closed.
func (s *sqliteStore) closeStatements() {
	for _, stmt := range s.allStatements() {
		if stmt != nil {
			stmt.Close()
		}
	}
}

func (s *sqliteStore) allStatements() []*sql.Stmt {
	return []*sql.Stmt{
		s.stmtCreateProgram,
		s.stmtUpsertProgram,
		s.stmtGetProgram,
		s.stmtListPrograms,
		s.stmtUpdateProgram,
		s.stmtDeleteProgram,
		s.stmtDeleteAllPrograms,
		s.stmtCreateLink,
		s.stmtUpsertLink,
		s.stmtGetLink,
		s.stmtListLinks,
		s.stmtListLinksByProgram,
		s.stmtUpdateLink,
		s.stmtDeleteLink,
		s.stmtDeleteAllLinks,
		s.stmtCreateMap,
		s.stmtUpsertMap,
		s.stmtGetMap,
		s.stmtListMaps,
		s.stmtUpdateMap,
		s.stmtDeleteMap,
		s.stmtDeleteAllMaps,
		s.stmtCreateProgramMap,
		s.stmtListProgramMaps,
		s.stmtListProgramMapsByProgram,
	}
}

// RunInTransaction executes fn within a database transaction. If fn
// returns nil the transaction commits; otherwise it rolls back and
// fn's error is returned unchanged, not wrapped, so the caller sees
// the originating failure.
//
// tx.StmtContext creates lightweight transaction-bound handles that
// reference the already-compiled master statements; no SQL parsing
// occurs. After commit or rollback the tx-bound handles become
// invalid, but the tx-scoped store goes out of scope with them and
// the masters remain valid for subsequent calls.
//
// Calling RunInTransaction on a Store that is already
// transaction-scoped runs fn against the same transaction rather
// than attempting to nest.
func (s *sqliteStore) RunInTransaction(ctx context.Context, fn func(store.Store) error) error {
	if _, inTx := s.conn.(*sql.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txStore := &sqliteStore{
		db:     s.db,
		conn:   tx,
		logger: s.logger,

		stmtCreateProgram:     tx.StmtContext(ctx, s.stmtCreateProgram),
		stmtUpsertProgram:     tx.StmtContext(ctx, s.stmtUpsertProgram),
		stmtGetProgram:        tx.StmtContext(ctx, s.stmtGetProgram),
		stmtListPrograms:      tx.StmtContext(ctx, s.stmtListPrograms),
		stmtUpdateProgram:     tx.StmtContext(ctx, s.stmtUpdateProgram),
		stmtDeleteProgram:     tx.StmtContext(ctx, s.stmtDeleteProgram),
		stmtDeleteAllPrograms: tx.StmtContext(ctx, s.stmtDeleteAllPrograms),

		stmtCreateLink:         tx.StmtContext(ctx, s.stmtCreateLink),
		stmtUpsertLink:         tx.StmtContext(ctx, s.stmtUpsertLink),
		stmtGetLink:            tx.StmtContext(ctx, s.stmtGetLink),
		stmtListLinks:          tx.StmtContext(ctx, s.stmtListLinks),
		stmtListLinksByProgram: tx.StmtContext(ctx, s.stmtListLinksByProgram),
		stmtUpdateLink:         tx.StmtContext(ctx, s.stmtUpdateLink),
		stmtDeleteLink:         tx.StmtContext(ctx, s.stmtDeleteLink),
		stmtDeleteAllLinks:     tx.StmtContext(ctx, s.stmtDeleteAllLinks),

		stmtCreateMap:     tx.StmtContext(ctx, s.stmtCreateMap),
		stmtUpsertMap:     tx.StmtContext(ctx, s.stmtUpsertMap),
		stmtGetMap:        tx.StmtContext(ctx, s.stmtGetMap),
		stmtListMaps:      tx.StmtContext(ctx, s.stmtListMaps),
		stmtUpdateMap:     tx.StmtContext(ctx, s.stmtUpdateMap),
		stmtDeleteMap:     tx.StmtContext(ctx, s.stmtDeleteMap),
		stmtDeleteAllMaps: tx.StmtContext(ctx, s.stmtDeleteAllMaps),

		stmtCreateProgramMap:         tx.StmtContext(ctx, s.stmtCreateProgramMap),
		stmtListProgramMaps:          tx.StmtContext(ctx, s.stmtListProgramMaps),
		stmtListProgramMapsByProgram: tx.StmtContext(ctx, s.stmtListProgramMapsByProgram),
	}

	if err := fn(txStore); err != nil {
		return err
	}

	return tx.Commit()
}
