// Package procguard implements the broker daemon's singleton lock: an
// exclusive, non-blocking flock on a well-known path so at most one
// whatsnextd process runs against a given state directory at a time.
// Adapted from the teacher's cmd/bd/daemon_lock.go, using the standard
// library's syscall.Flock directly instead of golang.org/x/sys/unix.
package procguard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrAlreadyRunning indicates another process already holds the lock.
var ErrAlreadyRunning = errors.New("procguard: another whatsnextd instance is already running")

// Info is the metadata persisted alongside the lock, for `wn doctor`-style
// inspection of a running daemon.
type Info struct {
	PID       int       `json:"pid"`
	Project   string    `json:"project"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
}

// Lock is a held singleton lock. Callers must Close it on shutdown.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive non-blocking lock on <dir>/whatsnextd.lock,
// writing Info as JSON once held. Returns ErrAlreadyRunning if another
// process holds it.
func Acquire(dir string, info Info) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("procguard: creating %s: %w", dir, err)
	}
	lockPath := filepath.Join(dir, "whatsnextd.lock")

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("procguard: opening lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("procguard: locking %s: %w", lockPath, err)
	}

	info.PID = os.Getpid()
	info.StartedAt = time.Now().UTC()

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("procguard: truncating lock file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("procguard: seeking lock file: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("procguard: writing lock metadata: %w", err)
	}
	_ = f.Sync()

	return &Lock{file: f, path: lockPath}, nil
}

// Close releases the lock. The underlying flock is also released
// implicitly by closing the file descriptor, so this is safe to call
// even if the process is about to exit anyway.
func (l *Lock) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Read reports the Info of whichever process currently holds (or most
// recently held) the lock at <dir>/whatsnextd.lock, without acquiring it.
func Read(dir string) (*Info, error) {
	data, err := os.ReadFile(filepath.Join(dir, "whatsnextd.lock"))
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("procguard: parsing lock file: %w", err)
	}
	return &info, nil
}
