package notify

import (
	"os/exec"
	"runtime"
)

// DesktopDispatcher shells out to the platform's notification tool. Unlike
// a native notification-center integration, a fire-and-forget shell-out
// can't observe a click, so every dispatch reports "dismissed" — the
// focus-on-click half of §4.8 is wired but inert until a richer notifier
// is plugged in behind the Dispatcher interface.
type DesktopDispatcher struct{}

// NewDesktopDispatcher constructs a DesktopDispatcher.
func NewDesktopDispatcher() *DesktopDispatcher {
	return &DesktopDispatcher{}
}

// Dispatch implements Dispatcher.
func (d *DesktopDispatcher) Dispatch(n Notification) string {
	switch runtime.GOOS {
	case "darwin":
		script := `display notification "` + escapeAppleScript(n.Body) + `" with title "` + escapeAppleScript(n.Title) + `"`
		exec.Command("osascript", "-e", script).Run()
	default:
		if path, err := exec.LookPath("notify-send"); err == nil {
			exec.Command(path, n.Title, n.Body).Run()
		}
	}
	return "dismissed"
}

func escapeAppleScript(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '"' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
