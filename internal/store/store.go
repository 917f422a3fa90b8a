// Package store implements the hexmem backing store on SQLite.
//
// The driver is mattn/go-sqlite3 with two SQL functions registered per
// connection: trigram_sim(a, b) for lexical similarity and cosine_sim(a, b)
// for cosine similarity over JSON-encoded vectors. Optional sqlite-vec ANN
// acceleration is compiled in behind the sqlite_vec build tag (see init_vec.go).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const driverName = "sqlite3_hexmem"

var registerDriver sync.Once

// Options configures the store connection pool.
type Options struct {
	MaxOpenConns int
	ConnMaxIdle  time.Duration
}

// DefaultOptions returns the production pool settings.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns: 20,
		ConnMaxIdle:  30 * time.Second,
	}
}

// Store is the single relational+vector backend shared by ingestion, recall,
// and decay. All mutable state lives here; the only in-process state is the
// slug cache, which is opportunistic and never invalidated (slug renames are
// not supported).
type Store struct {
	db  *sql.DB
	log *zap.Logger

	// slugCache maps agent slug -> id. Populated on successful lookups.
	slugCache sync.Map
}

// Open initializes the SQLite database at the given path and applies any
// pending migrations. Use ":memory:" for tests.
func Open(path string, opts Options, log *zap.Logger) (*Store, error) {
	registerDriver.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterFunc("trigram_sim", TrigramSimilarity, true); err != nil {
					return err
				}
				return conn.RegisterFunc("cosine_sim", cosineSimSQL, true)
			},
		})
	})

	if log == nil {
		log = zap.NewNop()
	}

	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if path == ":memory:" {
		// A shared in-memory database vanishes per connection; pin to one.
		db.SetMaxOpenConns(1)
	}
	if opts.ConnMaxIdle > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdle)
	}

	s := &Store{db: db, log: log}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the raw handle for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// =============================================================================
// SCAN/ENCODE HELPERS
// =============================================================================

// encodeJSON marshals v to a JSON string, mapping nil maps/slices to their
// empty JSON forms so columns never hold SQL NULL for JSON documents.
func encodeJSON(v interface{}) string {
	switch t := v.(type) {
	case map[string]interface{}:
		if t == nil {
			return "{}"
		}
	case []string:
		if t == nil {
			return "[]"
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func decodeMap(raw string) map[string]interface{} {
	if raw == "" {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil || m == nil {
		return map[string]interface{}{}
	}
	return m
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time.UTC()
	return &v
}
