package tmux

import (
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// DescendantPIDs returns every process below pid, parents before their
// children. Discovery uses pgrep -P; processes that exit mid-walk are simply
// missing from the result.
func DescendantPIDs(pid int) []int {
	if pid <= 0 {
		return nil
	}
	var found []int
	queue := []int{pid}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, child := range childPIDs(parent) {
			found = append(found, child)
			queue = append(queue, child)
		}
	}
	return found
}

func childPIDs(pid int) []int {
	out, err := exec.Command("pgrep", "-P", strconv.Itoa(pid)).Output()
	if err != nil {
		// pgrep exits 1 when there are no children.
		return nil
	}
	var pids []int
	for _, field := range strings.Fields(string(out)) {
		if n, err := strconv.Atoi(field); err == nil {
			pids = append(pids, n)
		}
	}
	return pids
}

// IsProcessAlive reports whether pid exists. EPERM counts as alive: the
// process is there, it just belongs to someone else.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

// KillProcessTree sends SIGKILL to pid and everything below it, leaves
// first, so no child is reparented before it is killed.
func KillProcessTree(pid int) {
	if pid <= 0 {
		return
	}
	tree := append([]int{pid}, DescendantPIDs(pid)...)
	for i := len(tree) - 1; i >= 0; i-- {
		_ = unix.Kill(tree[i], unix.SIGKILL)
	}
}

// EnsureProcessesKilled kills whatever in pids outlived a session, along
// with anything it spawned since.
func EnsureProcessesKilled(pids []int) {
	for _, pid := range pids {
		if IsProcessAlive(pid) {
			KillProcessTree(pid)
		}
	}
}

// WaitForProcessExit polls until pid is gone or timeout elapses, and reports
// whether it is gone.
func WaitForProcessExit(pid int, timeout time.Duration) bool {
	const step = 50 * time.Millisecond
	deadline := time.Now().Add(timeout)
	for IsProcessAlive(pid) {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(step)
	}
	return true
}
