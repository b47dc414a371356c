package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/foreman/internal/errors"
)

// fakeTmux simulates a tmux server holding named sessions.
type fakeTmux struct {
	mu          sync.Mutex
	sessions    map[string]bool
	calls       [][]string
	interactive [][]string
	listOutput  string
	failNew     bool
	// onNew runs after a session is created, outside the lock.
	onNew func(session string)
}

func newFakeTmux(sessions ...string) *fakeTmux {
	f := &fakeTmux{sessions: make(map[string]bool)}
	for _, s := range sessions {
		f.sessions[s] = true
	}
	return f
}

func (f *fakeTmux) Run(_ context.Context, args ...string) ([]byte, error) {
	if args[0] == "new-session" && f.onNew != nil && !f.failNew {
		defer f.onNew(args[3])
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)

	switch args[0] {
	case "has-session":
		if f.sessions[args[2]] {
			return nil, nil
		}
		return []byte("can't find session"), fmt.Errorf("exit status 1")
	case "new-session":
		if f.failNew {
			return []byte("duplicate session"), fmt.Errorf("exit status 1")
		}
		f.sessions[args[3]] = true
		return nil, nil
	case "kill-session":
		if !f.sessions[args[2]] {
			return nil, fmt.Errorf("exit status 1")
		}
		delete(f.sessions, args[2])
		return nil, nil
	case "list-sessions":
		if f.listOutput == "" {
			return []byte("no server running"), fmt.Errorf("exit status 1")
		}
		return []byte(f.listOutput), nil
	case "display-message":
		return nil, fmt.Errorf("exit status 1")
	}
	return nil, nil
}

func (f *fakeTmux) Interactive(_ context.Context, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interactive = append(f.interactive, args)
	return nil
}

func (f *fakeTmux) exists(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[name]
}

func (f *fakeTmux) remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, name)
}

// commands returns the subcommand of every recorded call.
func (f *fakeTmux) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c[0])
	}
	return out
}

func (f *fakeTmux) call(sub string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c[0] == sub {
			return c
		}
	}
	return nil
}

func TestLaunch(t *testing.T) {
	fake := newFakeTmux()
	s := New(fake, Options{HistoryLimit: 1000}, nil)

	marker := filepath.Join(t.TempDir(), "stage.prompt.exit")
	if err := os.WriteFile(marker, []byte("0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	h, err := s.Launch(context.Background(), "feat/models", "/work/feat-models", "run-agent", marker)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if h.Name != "foreman-feat-models" {
		t.Errorf("Name = %q, want foreman-feat-models", h.Name)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("stale marker was not removed")
	}
	if h.Finished() {
		t.Error("new handle reports finished")
	}

	want := []string{"new-session", "-d", "-s", "foreman-feat-models", "-c", "/work/feat-models", "run-agent"}
	if got := fake.call("new-session"); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("new-session args = %v, want %v", got, want)
	}
	if got := fake.call("set-option"); got == nil || got[len(got)-1] != "1000" {
		t.Errorf("set-option args = %v, want history-limit 1000", got)
	}
}

func TestLaunch_KillsStaleSession(t *testing.T) {
	fake := newFakeTmux("foreman-stage-1")
	s := New(fake, Options{}, nil)

	if _, err := s.Launch(context.Background(), "stage-1", "/w", "cmd", ""); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	cmds := strings.Join(fake.commands(), ",")
	kill := strings.Index(cmds, "kill-session")
	create := strings.Index(cmds, "new-session")
	if kill < 0 || create < kill {
		t.Errorf("expected kill-session before new-session, got %s", cmds)
	}
	if !fake.exists("foreman-stage-1") {
		t.Error("session should exist after relaunch")
	}
}

func TestLaunch_Failure(t *testing.T) {
	fake := newFakeTmux()
	fake.failNew = true
	s := New(fake, Options{}, nil)

	_, err := s.Launch(context.Background(), "stage-2", "/w", "cmd", "")
	if !errors.Is(err, errors.ErrSessionLaunch) {
		t.Errorf("Launch() error = %v, want ErrSessionLaunch", err)
	}
	var sessErr *errors.SessionError
	if !errors.As(err, &sessErr) || sessErr.Session != "foreman-stage-2" {
		t.Errorf("error = %#v, want SessionError for foreman-stage-2", err)
	}
}

func TestExistsAndKill(t *testing.T) {
	fake := newFakeTmux("foreman-a")
	s := New(fake, Options{}, nil)
	ctx := context.Background()

	if !s.Exists(ctx, "a") {
		t.Error("Exists(a) = false")
	}
	s.Kill(ctx, "a")
	if s.Exists(ctx, "a") {
		t.Error("Exists(a) = true after Kill")
	}
	// Killing a missing session is a no-op.
	s.Kill(ctx, "a")
}

func TestListOwned(t *testing.T) {
	fake := newFakeTmux()
	fake.listOutput = "foreman-b:2:1:1700000001\nscratch:1:1:1700000000\nforeman-a:1:0:1700000000\n"
	s := New(fake, Options{}, nil)

	sessions, err := s.ListOwned(context.Background())
	if err != nil {
		t.Fatalf("ListOwned() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2: %+v", len(sessions), sessions)
	}
	if sessions[0].Name != "foreman-a" || sessions[1].Name != "foreman-b" {
		t.Errorf("names = %s, %s", sessions[0].Name, sessions[1].Name)
	}
	if !sessions[1].Attached || sessions[1].Windows != 2 {
		t.Errorf("foreman-b = %+v", sessions[1])
	}
	if sessions[0].Created.Unix() != 1700000000 {
		t.Errorf("Created = %v", sessions[0].Created)
	}
}

func TestListOwned_NoServer(t *testing.T) {
	s := New(newFakeTmux(), Options{}, nil)
	sessions, err := s.ListOwned(context.Background())
	if err != nil || len(sessions) != 0 {
		t.Errorf("ListOwned() = %v, %v; want empty, nil", sessions, err)
	}
}

func TestKillAllOwned(t *testing.T) {
	fake := newFakeTmux("foreman-fix-42", "foreman-stage-1", "foreman-stage-2")
	fake.listOutput = "foreman-fix-42:1:1:0\nforeman-stage-1:1:0:0\nforeman-stage-2:1:0:0\nother:1:0:0\n"
	s := New(fake, Options{}, nil)

	killed, err := s.KillAllOwned(context.Background(), []string{"foreman-fix-*", "foreman-impl-*"})
	if err != nil {
		t.Fatalf("KillAllOwned() error = %v", err)
	}
	if fmt.Sprint(killed) != "[foreman-stage-1 foreman-stage-2]" {
		t.Errorf("killed = %v", killed)
	}
	if !fake.exists("foreman-fix-42") {
		t.Error("excluded session was killed")
	}

	if _, err := s.KillAllOwned(context.Background(), []string{"["}); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("KillAllOwned(bad pattern) error = %v, want ErrInvalidInput", err)
	}
}

func TestAttach(t *testing.T) {
	fake := newFakeTmux("foreman-impl-notes")
	s := New(fake, Options{}, nil)
	ctx := context.Background()

	if err := s.Attach(ctx, "impl-notes"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if len(fake.interactive) != 1 || fake.interactive[0][2] != "foreman-impl-notes" {
		t.Errorf("interactive calls = %v", fake.interactive)
	}

	if err := s.Attach(ctx, "missing"); !errors.Is(err, errors.ErrSessionNotFound) {
		t.Errorf("Attach(missing) error = %v, want ErrSessionNotFound", err)
	}
}

func TestWaitForAll_CallbackOncePerHandle(t *testing.T) {
	dir := t.TempDir()
	fake := newFakeTmux("foreman-a", "foreman-b", "foreman-c")
	s := New(fake, Options{SessionCheckInterval: time.Hour}, nil)

	var handles []*Handle
	for _, name := range []string{"a", "b", "c"} {
		handles = append(handles, &Handle{
			Name:   "foreman-" + name,
			Marker: filepath.Join(dir, name+".prompt.exit"),
		})
	}
	// a is already done before the wait starts.
	writeMarker(t, handles[0].Marker)

	go func() {
		time.Sleep(30 * time.Millisecond)
		writeMarker(t, handles[2].Marker)
		time.Sleep(30 * time.Millisecond)
		writeMarker(t, handles[1].Marker)
	}()

	var order []string
	counts := make(map[string]int)
	err := s.WaitForAll(context.Background(), handles, 10*time.Millisecond, func(h *Handle) {
		order = append(order, h.Name)
		counts[h.Name]++
	})
	if err != nil {
		t.Fatalf("WaitForAll() error = %v", err)
	}

	for _, h := range handles {
		if counts[h.Name] != 1 {
			t.Errorf("callback for %s ran %d times, want 1", h.Name, counts[h.Name])
		}
	}
	want := "[foreman-a foreman-c foreman-b]"
	if fmt.Sprint(order) != want {
		t.Errorf("completion order = %v, want %s", order, want)
	}
}

func TestWaitForAll_SessionGoneFallback(t *testing.T) {
	fake := newFakeTmux("foreman-x")
	s := New(fake, Options{SessionCheckInterval: 20 * time.Millisecond}, nil)

	h := &Handle{Name: "foreman-x", Marker: filepath.Join(t.TempDir(), "x.prompt.exit")}
	go func() {
		time.Sleep(30 * time.Millisecond)
		fake.remove("foreman-x")
	}()

	called := 0
	err := s.WaitForAll(context.Background(), []*Handle{h}, time.Hour, func(*Handle) { called++ })
	if err != nil {
		t.Fatalf("WaitForAll() error = %v", err)
	}
	if called != 1 {
		t.Errorf("callback ran %d times, want 1", called)
	}
}

func TestWaitForAll_Canceled(t *testing.T) {
	fake := newFakeTmux("foreman-y")
	s := New(fake, Options{SessionCheckInterval: time.Hour}, nil)
	h := &Handle{Name: "foreman-y", Marker: filepath.Join(t.TempDir(), "y.prompt.exit")}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	called := false
	err := s.WaitForAll(ctx, []*Handle{h}, 10*time.Millisecond, func(*Handle) { called = true })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForAll() error = %v, want DeadlineExceeded", err)
	}
	if called {
		t.Error("callback ran for an unfinished handle")
	}
}

func TestWaitForAll_Empty(t *testing.T) {
	s := New(newFakeTmux(), Options{}, nil)
	if err := s.WaitForAll(context.Background(), nil, time.Hour, nil); err != nil {
		t.Errorf("WaitForAll(nil) error = %v", err)
	}
}

func writeMarker(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("0\n"), 0644); err != nil {
		t.Errorf("write marker: %v", err)
	}
}
