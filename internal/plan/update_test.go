package plan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// stageBlock extracts stage n's block text for comparisons.
func stageBlock(t *testing.T, content string, n int) string {
	t.Helper()
	start, end, ok := stageBounds(content, n)
	if !ok {
		t.Fatalf("stage %d not found", n)
	}
	return content[start:end]
}

func TestUpdateStageText(t *testing.T) {
	updated, ok := UpdateStageText(samplePlan, 3, StatusCompleted, 205)
	if !ok {
		t.Fatal("UpdateStageText() ok = false")
	}

	block := stageBlock(t, updated, 3)
	if !strings.Contains(block, "- **Status**: completed\n") {
		t.Errorf("status not updated:\n%s", block)
	}
	if !strings.Contains(block, "- **PR**: #205\n") {
		t.Errorf("PR not updated:\n%s", block)
	}
	if !strings.Contains(block, "- **Reviewer**: alice") {
		t.Errorf("unknown field lost:\n%s", block)
	}

	for _, n := range []int{1, 2} {
		if stageBlock(t, updated, n) != stageBlock(t, samplePlan, n) {
			t.Errorf("stage %d block changed", n)
		}
	}
	if !strings.HasSuffix(updated, "## Notes\n\nShip behind a flag.\n") {
		t.Error("notes section changed")
	}

	p, err := Parse(updated)
	if err != nil {
		t.Fatal(err)
	}
	if s := p.Stage(3); s.Status != StatusCompleted || s.PRNumber != 205 {
		t.Errorf("reparsed stage 3 = %s/#%d", s.Status, s.PRNumber)
	}
}

func TestUpdateStageText_StatusOnly(t *testing.T) {
	updated, ok := UpdateStageText(samplePlan, 1, StatusInProgress, 0)
	if !ok {
		t.Fatal("UpdateStageText() ok = false")
	}
	want := strings.Replace(samplePlan, "- **Status**: completed", "- **Status**: in_progress", 1)
	if updated != want {
		t.Errorf("only the status field should change, got:\n%s", updated)
	}
}

func TestUpdateStageText_DoesNotMatchPrefixNumber(t *testing.T) {
	content := "### Stage 10: Ten\n\n- **Status**: pending\n\n### Stage 1: One\n\n- **Status**: pending\n"
	updated, ok := UpdateStageText(content, 1, StatusCompleted, 0)
	if !ok {
		t.Fatal("UpdateStageText() ok = false")
	}
	want := "### Stage 10: Ten\n\n- **Status**: pending\n\n### Stage 1: One\n\n- **Status**: completed\n"
	if updated != want {
		t.Errorf("UpdateStageText() =\n%s\nwant\n%s", updated, want)
	}
}

func TestUpdateStageText_MissingStage(t *testing.T) {
	updated, ok := UpdateStageText(samplePlan, 42, StatusCompleted, 1)
	if ok {
		t.Error("UpdateStageText() ok = true for a missing stage")
	}
	if updated != samplePlan {
		t.Error("content changed for a missing stage")
	}
}

func TestUpdater(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.md")
	if err := os.WriteFile(path, []byte(samplePlan), 0600); err != nil {
		t.Fatal(err)
	}
	u := NewUpdater(path, nil)

	ok, err := u.UpdateStage(2, StatusCompleted, 150)
	if err != nil || !ok {
		t.Fatalf("UpdateStage() = %v, %v", ok, err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if s := p.Stage(2); s.Status != StatusCompleted || s.PRNumber != 150 {
		t.Errorf("stage 2 = %s/#%d", s.Status, s.PRNumber)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	before, _ := os.ReadFile(path)
	ok, err = u.UpdateStage(99, StatusFailed, 0)
	if err != nil || ok {
		t.Errorf("UpdateStage(missing) = %v, %v; want false, nil", ok, err)
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("file changed for a missing stage")
	}
}

func TestUpdater_MarkInProgress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.md")
	if err := os.WriteFile(path, []byte(samplePlan), 0644); err != nil {
		t.Fatal(err)
	}

	if err := NewUpdater(path, nil).MarkInProgress([]int{2, 3}); err != nil {
		t.Fatalf("MarkInProgress() error = %v", err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{2, 3} {
		if s := p.Stage(n); s.Status != StatusInProgress {
			t.Errorf("stage %d status = %s, want in_progress", n, s.Status)
		}
	}
	if p.Stage(1).Status != StatusCompleted {
		t.Error("stage 1 should be untouched")
	}
}

func TestUpdater_MissingFile(t *testing.T) {
	u := NewUpdater(filepath.Join(t.TempDir(), "gone.md"), nil)
	ok, err := u.UpdateStage(1, StatusCompleted, 0)
	if ok || err != nil {
		t.Errorf("UpdateStage() = %v, %v; want false, nil", ok, err)
	}
}
