// Package conflict watches the worktrees of stages that run side by side and
// reports files written in more than one of them. Such stages are branched
// independently, so a shared file usually means their PRs will conflict.
package conflict

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/foreman/internal/logging"
)

// Overlap is a file written in more than one watched worktree.
type Overlap struct {
	// Path is relative to each worktree root.
	Path   string
	Owners []string
}

var ignoredDirs = map[string]bool{
	".git":         true,
	".foreman":     true,
	"node_modules": true,
	".build":       true,
	"vendor":       true,
}

// Detector records writes under a set of worktree roots.
type Detector struct {
	watcher *fsnotify.Watcher
	logger  *logging.Logger

	mu     sync.Mutex
	roots  map[string]string // owner -> root
	writes map[string]map[string]bool

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a Detector. logger may be nil.
func New(logger *logging.Logger) (*Detector, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Detector{
		watcher: watcher,
		logger:  logger.With("component", "conflict"),
		roots:   make(map[string]string),
		writes:  make(map[string]map[string]bool),
		done:    make(chan struct{}),
	}, nil
}

// Watch adds root and every directory below it, attributing writes to owner.
func (d *Detector) Watch(owner, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "watch", Path: root, Err: os.ErrInvalid}
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	d.mu.Lock()
	d.roots[owner] = root
	d.mu.Unlock()
	return d.addTree(root)
}

func (d *Detector) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, e os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !e.IsDir() {
			return nil
		}
		if path != root && ignoredDirs[e.Name()] {
			return filepath.SkipDir
		}
		if err := d.watcher.Add(path); err != nil {
			d.logger.Debug("cannot watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// Start processes events until Stop is called.
func (d *Detector) Start() {
	go d.loop()
}

// Stop ends watching. It is safe to call more than once.
func (d *Detector) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		_ = d.watcher.Close()
	})
}

func (d *Detector) loop() {
	for {
		select {
		case <-d.done:
			return
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.handle(ev)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Debug("watch error", "error", err)
		}
	}
}

func (d *Detector) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		if ev.Has(fsnotify.Create) && !ignoredDirs[info.Name()] {
			_ = d.addTree(ev.Name)
		}
		return
	}
	d.record(ev.Name)
}

func (d *Detector) record(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for owner, root := range d.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		for _, part := range strings.Split(rel, string(filepath.Separator)) {
			if ignoredDirs[part] {
				return
			}
		}
		if d.writes[rel] == nil {
			d.writes[rel] = make(map[string]bool)
		}
		d.writes[rel][owner] = true
		return
	}
}

// Written returns the files owner wrote, sorted.
func (d *Detector) Written(owner string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var files []string
	for rel, owners := range d.writes {
		if owners[owner] {
			files = append(files, rel)
		}
	}
	sort.Strings(files)
	return files
}

// Overlaps returns every file written by two or more owners, sorted by path.
func (d *Detector) Overlaps() []Overlap {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Overlap
	for rel, owners := range d.writes {
		if len(owners) < 2 {
			continue
		}
		o := Overlap{Path: rel}
		for owner := range owners {
			o.Owners = append(o.Owners, owner)
		}
		sort.Strings(o.Owners)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
