package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const fileName = "cache.db"

// UnavailableError means the cache database could not be opened, written
// or removed. It is fatal to the whole run.
type UnavailableError struct {
	Path string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("cache store unavailable at %s: %v", e.Path, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Store owns the embedded database file. It opens the file lazily,
// applies the schema exactly once per file, and hands out scoped
// connections that are released on every exit path. A single process is
// the only writer; readers within the process run concurrently under WAL.
type Store struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// New returns a store for the cache database inside dir. Nothing touches
// the filesystem until the first operation.
func New(dir string) *Store {
	return &Store{path: filepath.Join(dir, fileName)}
}

// Path returns the location of the database file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, &UnavailableError{Path: s.path, Err: fmt.Errorf("creating cache directory: %w", err)}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &UnavailableError{Path: s.path, Err: err}
	}

	if err := initSchema(ctx, db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Closing database after failed schema init")
		}
		return nil, &UnavailableError{Path: s.path, Err: err}
	}

	log.Debug().Str("path", s.path).Msg("Cache database opened")

	s.db = db
	return s.db, nil
}

// WithConn runs fn with a scoped connection. The connection is returned
// to the pool when fn exits, whether it succeeds or not.
func (s *Store) WithConn(ctx context.Context, fn func(*sql.Conn) error) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return &UnavailableError{Path: s.path, Err: fmt.Errorf("acquiring connection: %w", err)}
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Releasing cache connection")
		}
	}()

	return fn(conn)
}

// WithTx runs fn inside a transaction on a scoped connection. Any error
// from fn rolls the transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return s.WithConn(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}

		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Warn().Err(rbErr).Msg("Rolling back cache transaction")
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing transaction: %w", err)
		}
		return nil
	})
}

// Close releases the database handle. Subsequent operations reopen it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	return err
}

// Wipe deletes the database file and reports whether one existed. A
// missing file is not an error; a file that exists but cannot be removed
// is.
func (s *Store) Wipe() (string, bool, error) {
	if err := s.Close(); err != nil {
		return s.path, false, &UnavailableError{Path: s.path, Err: fmt.Errorf("closing before wipe: %w", err)}
	}

	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			return s.path, false, nil
		}
		return s.path, false, &UnavailableError{Path: s.path, Err: err}
	}

	if err := os.Remove(s.path); err != nil {
		return s.path, true, &UnavailableError{Path: s.path, Err: err}
	}

	// WAL sidecars are worthless without the main file.
	for _, sidecar := range []string{s.path + "-wal", s.path + "-shm"} {
		if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", sidecar).Msg("Removing WAL sidecar")
		}
	}

	log.Debug().Str("path", s.path).Msg("Cache database wiped")
	return s.path, true, nil
}
