// Package procscan implements the Process Scanner (§4.2): on-demand
// enumeration of running Claude Code processes via gopsutil, independent of
// the hook pipeline, so a session gets a row in the registry even before
// its first hook event arrives.
package procscan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gopsprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/gregory-lime/jacques/internal/session"
)

// isClaudeProcess matches the main claude process (or a node process
// running claude's CLI entrypoint), not the subprocesses it spawns.
func isClaudeProcess(args []string) bool {
	if len(args) == 0 {
		return false
	}
	exe := filepath.Base(args[0])
	if exe == "claude" || exe == "claude-code" {
		return true
	}
	if exe == "node" {
		for _, part := range args[1:] {
			if strings.Contains(part, "claude") && !strings.Contains(part, "node_modules/.bin") {
				return true
			}
		}
	}
	return false
}

// isBypass reports whether the process was launched with
// --dangerously-skip-permissions.
func isBypass(args []string) bool {
	for _, part := range args {
		if strings.Contains(part, "--dangerously-skip-permissions") {
			return true
		}
	}
	return false
}

// isTrashCwd filters out processes whose working directory has been moved
// to the trash — a stale, about-to-vanish session that shouldn't surface.
func isTrashCwd(cwd string) bool {
	sep := string(filepath.Separator)
	return strings.Contains(cwd, sep+".Trash"+sep) || strings.HasSuffix(cwd, sep+".Trash")
}

// Scanner discovers running Claude Code processes. Its cwd/cmdline
// filtering is platform-independent; gopsutil supplies the Unix/Windows
// process-table access underneath.
type Scanner struct{}

// New constructs a Scanner.
func New() *Scanner {
	return &Scanner{}
}

// Discover enumerates the process table and returns one DetectedSession per
// running Claude Code process found.
func (s *Scanner) Discover(ctx context.Context) ([]session.DetectedSession, error) {
	procs, err := gopsprocess.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	homeDir, _ := os.UserHomeDir()
	claudeDir := filepath.Join(homeDir, ".claude")

	var out []session.DetectedSession
	for _, p := range procs {
		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil || !isClaudeProcess(args) {
			continue
		}

		cwd, err := p.CwdWithContext(ctx)
		if err != nil || cwd == "" {
			continue
		}
		if cwd == claudeDir || strings.HasPrefix(cwd, claudeDir+string(filepath.Separator)) {
			continue
		}
		if isTrashCwd(cwd) {
			continue
		}

		createMs, _ := p.CreateTimeWithContext(ctx)
		tty, _ := p.TerminalWithContext(ctx)

		out = append(out, session.DetectedSession{
			SessionID:    fmt.Sprintf("scan:%d:%d", p.Pid, createMs),
			PID:          int(p.Pid),
			TTY:          tty,
			Cwd:          cwd,
			LastActivity: createMs,
			IsBypass:     isBypass(args),
		})
	}
	return out, nil
}

// IsAlive implements session.LivenessChecker, used by the Cleanup Service
// to confirm a process is actually gone before evicting its session.
func (s *Scanner) IsAlive(pid int) bool {
	running, err := gopsprocess.PidExists(int32(pid))
	if err != nil {
		return false
	}
	return running
}
