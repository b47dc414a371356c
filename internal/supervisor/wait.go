package supervisor

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WaitForAll blocks until every handle has finished, invoking onEach exactly
// once per handle, in the order completions are observed, before returning.
//
// A handle is finished once its marker exists. Markers are checked every
// pollInterval and whenever the filesystem reports activity in a marker's
// directory. Every SessionCheckInterval the sessions themselves are checked
// too, and a vanished session counts as finished even without a marker.
//
// Canceling ctx stops the wait and returns ctx.Err(); handles not yet
// observed get no callback.
func (s *Supervisor) WaitForAll(ctx context.Context, handles []*Handle, pollInterval time.Duration, onEach func(*Handle)) error {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	pending := append([]*Handle(nil), handles...)
	s.logger.Info("waiting for sessions", "count", len(pending))

	watcher := newMarkerWatcher(pending, s)
	defer watcher.Close()

	// sweep reports finished handles and keeps the rest; full also asks tmux.
	sweep := func(full bool) {
		remaining := pending[:0]
		var done []*Handle
		for _, h := range pending {
			if h.Finished() || (full && !s.Exists(ctx, h.Name)) {
				done = append(done, h)
				continue
			}
			remaining = append(remaining, h)
		}
		pending = remaining
		for _, h := range done {
			s.logger.Info("session finished", "session", h.Name, "marker", h.Finished())
			if onEach != nil {
				onEach(h)
			}
		}
	}

	sweep(false)
	if len(pending) == 0 {
		return nil
	}

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()
	sessions := time.NewTicker(s.opts.SessionCheckInterval)
	defer sessions.Stop()

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			s.logger.Warn("wait interrupted", "pending", len(pending))
			return ctx.Err()
		case <-watcher.Events():
			sweep(false)
		case <-poll.C:
			sweep(false)
		case <-sessions.C:
			sweep(true)
		}
	}

	s.logger.Info("all sessions finished", "count", len(handles))
	return nil
}

// markerWatcher turns filesystem activity in marker directories into wakeups.
// When fsnotify is unavailable it never fires and polling alone drives
// WaitForAll.
type markerWatcher struct {
	watcher *fsnotify.Watcher
	markers map[string]bool
	events  chan struct{}
	done    chan struct{}
}

func newMarkerWatcher(handles []*Handle, s *Supervisor) *markerWatcher {
	m := &markerWatcher{
		markers: make(map[string]bool),
		events:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Debug("marker watcher unavailable, polling only", "error", err)
		return m
	}

	dirs := make(map[string]bool)
	for _, h := range handles {
		if h.Marker == "" {
			continue
		}
		m.markers[filepath.Clean(h.Marker)] = true
		dirs[filepath.Dir(h.Marker)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			s.logger.Debug("cannot watch marker directory", "dir", dir, "error", err)
		}
	}

	m.watcher = w
	go m.loop()
	return m
}

func (m *markerWatcher) loop() {
	for {
		select {
		case <-m.done:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !m.markers[filepath.Clean(event.Name)] {
				continue
			}
			select {
			case m.events <- struct{}{}:
			default:
			}
		case _, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Events delivers a wakeup after a marker is created or written.
func (m *markerWatcher) Events() <-chan struct{} {
	return m.events
}

// Close stops the watcher.
func (m *markerWatcher) Close() {
	if m.watcher == nil {
		return
	}
	close(m.done)
	_ = m.watcher.Close()
}
