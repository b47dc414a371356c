// Package session guards a run directory so only one foreman process
// orchestrates a given plan at a time.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/logging"
)

// LockFileName is the lock file created inside a run directory.
const LockFileName = "foreman.lock"

// Lock is an acquired run lock.
type Lock struct {
	RunID     string    `json:"run_id"`
	Command   string    `json:"command"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	path   string
	logger *logging.Logger
}

// AcquireLock takes the lock in dir for runID. A lock left by a process that
// is no longer alive is removed first; a live one yields ErrSessionLocked.
// logger may be nil.
func AcquireLock(dir, runID, command string, logger *logging.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	path := filepath.Join(dir, LockFileName)

	if _, err := CleanStaleLock(dir, logger); err != nil {
		return nil, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	lock := &Lock{
		RunID:     runID,
		Command:   command,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		path:      path,
		logger:    logger,
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal lock: %w", err)
	}

	// O_EXCL settles a race with another process past the stale check.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			if held, readErr := ReadLock(path); readErr == nil {
				logger.Error("failed to acquire lock", "run_id", runID, "held_by", held.PID)
				return nil, lockedError(held)
			}
			return nil, errors.ErrSessionLocked
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write lock file: %w", err)
	}

	logger.Info("run lock acquired", "run_id", runID, "pid", lock.PID, "path", path)
	return lock, nil
}

func lockedError(held *Lock) error {
	return fmt.Errorf("%w: %s run %s (PID %d on %s, since %s)",
		errors.ErrSessionLocked, held.Command, held.RunID, held.PID, held.Hostname,
		held.StartedAt.Format(time.RFC3339))
}

// Release removes the lock file if this process still owns it. It is safe
// to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	held, err := ReadLock(l.path)
	if err != nil || held.PID != l.PID || held.RunID != l.RunID {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if l.logger != nil {
		l.logger.Info("run lock released", "run_id", l.RunID)
	}
	return nil
}

// ReadLock parses the lock file at path.
func ReadLock(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("parse lock file: %w", err)
	}
	lock.path = path
	return &lock, nil
}

// IsLocked reports whether a live process holds the lock in dir.
func IsLocked(dir string) (*Lock, bool) {
	lock, err := ReadLock(filepath.Join(dir, LockFileName))
	if err != nil {
		return nil, false
	}
	return lock, isProcessAlive(lock.PID)
}

// CleanStaleLock removes the lock in dir when its owner is gone. It returns
// ErrSessionLocked when the owner is still running.
func CleanStaleLock(dir string, logger *logging.Logger) (bool, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	path := filepath.Join(dir, LockFileName)
	lock, err := ReadLock(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		// Unreadable lock files are treated as stale.
		logger.Warn("removing unreadable lock file", "path", path, "error", err)
		return true, removeLock(path)
	}
	if isProcessAlive(lock.PID) {
		return false, lockedError(lock)
	}
	if err := removeLock(path); err != nil {
		return false, err
	}
	logger.Warn("stale lock cleaned", "run_id", lock.RunID, "old_pid", lock.PID)
	return true, nil
}

func removeLock(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale lock: %w", err)
	}
	return nil
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
