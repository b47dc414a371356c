package conflict

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// eventually polls cond for up to two seconds.
func eventually(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDetector_StopIsIdempotent(t *testing.T) {
	d, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	d.Start()
	d.Stop()
	d.Stop()
}

func TestDetector_WatchRejectsMissingAndFiles(t *testing.T) {
	d, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	if err := d.Watch("Stage 1", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Watch(missing) should fail")
	}
	file := filepath.Join(t.TempDir(), "f")
	write(t, file, "x")
	if err := d.Watch("Stage 1", file); err == nil {
		t.Error("Watch(file) should fail")
	}
}

func TestDetector_ReportsSharedFiles(t *testing.T) {
	d, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	one, two := t.TempDir(), t.TempDir()
	if err := os.MkdirAll(filepath.Join(one, "pkg"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(two, "pkg"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := d.Watch("Stage 1", one); err != nil {
		t.Fatal(err)
	}
	if err := d.Watch("Stage 2", two); err != nil {
		t.Fatal(err)
	}
	d.Start()

	write(t, filepath.Join(one, "pkg", "shared.go"), "package pkg // 1")
	write(t, filepath.Join(two, "pkg", "shared.go"), "package pkg // 2")
	write(t, filepath.Join(one, "only_one.go"), "package one")

	want := []Overlap{{Path: filepath.Join("pkg", "shared.go"), Owners: []string{"Stage 1", "Stage 2"}}}
	if !eventually(t, func() bool { return reflect.DeepEqual(d.Overlaps(), want) }) {
		t.Errorf("Overlaps() = %+v, want %+v", d.Overlaps(), want)
	}
	if !eventually(t, func() bool { return len(d.Written("Stage 1")) == 2 }) {
		t.Errorf("Written(Stage 1) = %v", d.Written("Stage 1"))
	}
}

func TestDetector_IgnoresGitAndNewDirectoriesAreWatched(t *testing.T) {
	d, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	one, two := t.TempDir(), t.TempDir()
	for _, root := range []string{one, two} {
		if err := os.MkdirAll(filepath.Join(root, ".git"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.Watch("a", one); err != nil {
		t.Fatal(err)
	}
	if err := d.Watch("b", two); err != nil {
		t.Fatal(err)
	}
	d.Start()

	write(t, filepath.Join(one, ".git", "index"), "x")
	write(t, filepath.Join(two, ".git", "index"), "y")

	// A directory created after Watch is picked up before its file lands.
	if err := os.Mkdir(filepath.Join(one, "new"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(two, "new"), 0755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	write(t, filepath.Join(one, "new", "f.txt"), "1")
	write(t, filepath.Join(two, "new", "f.txt"), "2")

	if !eventually(t, func() bool { return len(d.Overlaps()) == 1 }) {
		t.Fatalf("Overlaps() = %+v, want only new/f.txt", d.Overlaps())
	}
	if got := d.Overlaps()[0].Path; got != filepath.Join("new", "f.txt") {
		t.Errorf("overlap path = %q", got)
	}
}
