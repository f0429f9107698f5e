// Package store provides the SQLite request and session log for edgelive.
//
// The log lives for one run of the process. The default DSN is an in-memory
// database, so nothing is kept once the process exits.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// Store represents a SQLite database connection for the request log.
type Store struct {
	db   *sql.DB
	path string
}

// New creates a new Store with the given database path or DSN.
// An empty path selects MemoryDSN. It opens the database connection,
// enables foreign keys, and runs migrations.
func New(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = MemoryDSN
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to :memory: is a separate database, and SQLite allows a
	// single writer anyway.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign key constraints
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the path or DSN the store was opened with.
func (s *Store) Path() string {
	return s.path
}
