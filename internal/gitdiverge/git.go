package gitdiverge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gregory-lime/jacques/internal/shell"
)

// defaultBranch resolves the repository's mainline per §4.6's literal
// order: symbolic-ref of origin/HEAD, then a local "main", then "master" as
// a last resort with no further probing.
func defaultBranch(ctx context.Context, r shell.Runner, repoRoot string) string {
	if res, err := r.Run(ctx, repoRoot, "git", "symbolic-ref", "refs/remotes/origin/HEAD"); err == nil && res.ExitCode == 0 {
		parts := strings.Split(res.Stdout, "/")
		if len(parts) > 0 && parts[len(parts)-1] != "" {
			return parts[len(parts)-1]
		}
	}
	if res, err := r.Run(ctx, repoRoot, "git", "rev-parse", "--verify", "refs/heads/main"); err == nil && res.ExitCode == 0 {
		return "main"
	}
	return "master"
}

// aheadBehind counts commits reachable from branch but not base (ahead) and
// from base but not branch (behind).
func aheadBehind(ctx context.Context, r shell.Runner, repoRoot, branch, base string) (ahead, behind int, err error) {
	res, runErr := r.Run(ctx, repoRoot, "git", "rev-list", "--left-right", "--count", fmt.Sprintf("%s...%s", branch, base))
	if runErr != nil {
		return 0, 0, runErr
	}
	if res.ExitCode != 0 {
		return 0, 0, fmt.Errorf("rev-list failed: %s", res.Stderr)
	}
	parts := strings.Fields(res.Stdout)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output: %q", res.Stdout)
	}
	ahead, _ = strconv.Atoi(parts[0])
	behind, _ = strconv.Atoi(parts[1])
	return ahead, behind, nil
}

// isDirty reports whether repoRoot has uncommitted changes.
func isDirty(ctx context.Context, r shell.Runner, repoRoot string) (bool, error) {
	res, err := r.Run(ctx, repoRoot, "git", "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) != "", nil
}

// currentBranch returns the branch checked out at repoRoot, or "" when
// HEAD is detached.
func currentBranch(ctx context.Context, r shell.Runner, repoRoot string) string {
	res, err := r.Run(ctx, repoRoot, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil || res.ExitCode != 0 || res.Stdout == "HEAD" {
		return ""
	}
	return res.Stdout
}
