// Package sqlite implements internal/store.Store and internal/store.Tx
// over a pure-Go SQLite driver. Connection setup, WAL mode, and the WASM
// compilation cache are adapted from the teacher's internal/storage/sqlite
// package; the schema and queries are rewritten for the Project/Task/Job/
// Worker domain of spec.md §3.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/whatsnext/whatsnext/internal/store"
)

// setupWASMCache configures the wazero compilation cache under the user's
// cache directory so the WASM-compiled SQLite engine doesn't pay the full
// JIT cost on every process start. Falls back to an in-memory cache if the
// directory can't be created.
func setupWASMCache() {
	cacheDir := ""
	if userCache, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(userCache, "whatsnext", "wasm")
	}

	var cache wazero.CompilationCache
	if cacheDir != "" {
		if c, err := wazero.NewCompilationCacheWithDir(cacheDir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// Store is the SQLite-backed implementation of store.Store.
type Store struct {
	db       *sql.DB
	path     string
	readOnly bool
	closed   atomic.Bool
}

var _ store.Store = (*Store)(nil)

// Open creates (or opens) a SQLite-backed Store at path, applying schema
// and WAL mode. path may be ":memory:" for an isolated single-connection
// database (tests), or a filesystem path for a daemon-mode store.
func Open(ctx context.Context, path string) (*Store, error) {
	return OpenWithTimeout(ctx, path, 30*time.Second)
}

// OpenWithTimeout is Open with an explicit busy-timeout.
func OpenWithTimeout(ctx context.Context, path string, busyTimeout time.Duration) (*Store, error) {
	timeoutMs := int64(busyTimeout / time.Millisecond)

	// _txlock=immediate makes every BeginTx issue BEGIN IMMEDIATE (see WithTx).
	var connStr string
	isMemory := path == ":memory:"
	switch {
	case isMemory:
		connStr = fmt.Sprintf(
			"file:memdb?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)&_time_format=sqlite&_txlock=immediate",
			timeoutMs)
	case strings.HasPrefix(path, "file:"):
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += fmt.Sprintf("&_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)&_time_format=sqlite", timeoutMs)
		}
		if !strings.Contains(path, "_txlock=") {
			connStr += "&_txlock=immediate"
		}
	default:
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("sqlite: creating directory: %w", err)
			}
		}
		connStr = fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)&_time_format=sqlite&_txlock=immediate", path, timeoutMs)
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if isMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		maxConns := runtime.NumCPU() + 1
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
	}

	if !isMemory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: enabling WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: initializing schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// OpenReadOnly opens an existing database file without writing schema or
// WAL pragmas (SUPPLEMENTED FEATURES #6 in SPEC_FULL.md), so a reader
// doesn't contend with the daemon's writer connection. Nothing in this
// repository calls it: wn's read commands go through the broker's HTTP API.
func OpenReadOnly(ctx context.Context, path string) (*Store, error) {
	if path == ":memory:" {
		return nil, fmt.Errorf("sqlite: read-only mode not supported for in-memory databases")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("sqlite: database does not exist: %s", path)
	}

	connStr := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)&_time_format=sqlite", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening read-only database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: pinging read-only database: %w", err)
	}
	return &Store{db: db, path: path, readOnly: true}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		return s.db.Close()
	}
	return nil
}

// Healthy runs a trivial query to confirm the store can serve reads.
func (s *Store) Healthy(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// WithTx opens a BEGIN IMMEDIATE transaction (so the first writer blocks
// concurrent writers rather than racing to a deferred upgrade, matching
// the SELECT ... FOR UPDATE equivalent required by spec.md §5), runs fn,
// and commits or rolls back based on its result.
func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	tx := &txImpl{tx: sqlTx}
	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}
