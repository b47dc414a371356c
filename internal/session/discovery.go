package session

import (
	"os"
	"path/filepath"
	"sort"
)

// LocksDir is the directory within the sessions directory holding one lock
// directory per run scope.
const LocksDir = "locks"

// Info describes the lock state of one run scope.
type Info struct {
	Scope string
	Dir   string
	// Lock is nil when the scope has no readable lock file.
	Lock   *Lock
	Active bool
}

// LockDir returns the lock directory for scope.
func LockDir(sessionsDir, scope string) string {
	return filepath.Join(sessionsDir, LocksDir, scope)
}

// ListRuns returns every run scope under sessionsDir ordered by scope.
func ListRuns(sessionsDir string) ([]*Info, error) {
	root := filepath.Join(sessionsDir, LocksDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var runs []*Info
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info := &Info{Scope: e.Name(), Dir: filepath.Join(root, e.Name())}
		info.Lock, info.Active = IsLocked(info.Dir)
		runs = append(runs, info)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Scope < runs[j].Scope })
	return runs, nil
}

// ActiveRuns returns the scopes whose lock is held by a live process.
func ActiveRuns(sessionsDir string) ([]*Info, error) {
	runs, err := ListRuns(sessionsDir)
	if err != nil {
		return nil, err
	}
	var active []*Info
	for _, r := range runs {
		if r.Active {
			active = append(active, r)
		}
	}
	return active, nil
}
