package session

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/foreman/internal/errors"
)

// deadPID returns the PID of a process that has already exited.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot run true: %v", err)
	}
	return cmd.Process.Pid
}

func writeLock(t *testing.T, dir string, lock Lock) {
	t.Helper()
	data, err := json.Marshal(lock)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, LockFileName), data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestAcquireAndRelease(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs", "plan")

	lock, err := AcquireLock(dir, "run-1", "implement", nil)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if lock.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", lock.PID, os.Getpid())
	}

	held, locked := IsLocked(dir)
	if !locked || held.RunID != "run-1" || held.Command != "implement" {
		t.Errorf("IsLocked() = %+v, %v", held, locked)
	}

	if _, err := AcquireLock(dir, "run-2", "fix", nil); !errors.Is(err, errors.ErrSessionLocked) {
		t.Errorf("second AcquireLock() error = %v, want ErrSessionLocked", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
	if _, locked := IsLocked(dir); locked {
		t.Error("still locked after Release")
	}
}

func TestAcquireLock_CleansStaleLock(t *testing.T) {
	dir := t.TempDir()
	writeLock(t, dir, Lock{RunID: "old", PID: deadPID(t), StartedAt: time.Now()})

	if held, locked := IsLocked(dir); locked {
		t.Fatalf("dead owner reported as locked: %+v", held)
	}

	lock, err := AcquireLock(dir, "new", "implement", nil)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	defer lock.Release()
	if held, _ := IsLocked(dir); held.RunID != "new" {
		t.Errorf("RunID = %q, want new", held.RunID)
	}
}

func TestAcquireLock_UnreadableLockIsStale(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LockFileName), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	lock, err := AcquireLock(dir, "run", "fix", nil)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	_ = lock.Release()
}

func TestRelease_LeavesForeignLock(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir, "mine", "implement", nil)
	if err != nil {
		t.Fatal(err)
	}
	// Another run took over after a stale cleanup.
	writeLock(t, dir, Lock{RunID: "theirs", PID: os.Getpid()})

	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); err != nil {
		t.Error("Release removed a lock it does not own")
	}
}

func TestCleanStaleLock(t *testing.T) {
	dir := t.TempDir()
	if cleaned, err := CleanStaleLock(dir, nil); cleaned || err != nil {
		t.Errorf("CleanStaleLock(empty) = %v, %v", cleaned, err)
	}

	writeLock(t, dir, Lock{RunID: "live", PID: os.Getpid()})
	if _, err := CleanStaleLock(dir, nil); !errors.Is(err, errors.ErrSessionLocked) {
		t.Errorf("CleanStaleLock(live) error = %v", err)
	}

	writeLock(t, dir, Lock{RunID: "dead", PID: deadPID(t)})
	if cleaned, err := CleanStaleLock(dir, nil); !cleaned || err != nil {
		t.Errorf("CleanStaleLock(dead) = %v, %v", cleaned, err)
	}
}
