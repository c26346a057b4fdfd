//go:build linux

package focuswatch

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// getParentPID reads /proc/<pid>/stat to extract the parent PID.
func getParentPID(pid int) int {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0
	}
	return parseParentPID(string(data))
}

// frontmostWindowPID shells out to xdotool, when present, to find the PID
// owning the currently focused window. Returns (0, false) when xdotool is
// unavailable or the query fails — the watcher simply skips that tick.
func frontmostWindowPID() (int, bool) {
	path, err := exec.LookPath("xdotool")
	if err != nil {
		return 0, false
	}

	out, err := exec.Command(path, "getactivewindow", "getwindowpid").Output()
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, false
	}
	return pid, true
}
