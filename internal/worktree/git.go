package worktree

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gregory-lime/jacques/internal/shell"
)

// defaultBranch mirrors gitdiverge's resolution order: symbolic-ref of
// origin/HEAD, then local "main", then "master".
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

func isDirty(ctx context.Context, r shell.Runner, dir string) (bool, error) {
	res, err := r.Run(ctx, dir, "git", "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) != "", nil
}

// isMerged implements §4.10's three-step merge-detection heuristic:
//  1. merge-base --is-ancestor: branch tip must reach base at all.
//  2. first-parent-line check: if the tip sits on base's first-parent line,
//     the branch merely points at an old mainline commit — it was never
//     merged, it just hasn't diverged. Not a merge.
//  3. merge-commit parent scan: look for a merge commit on base whose
//     non-mainline parent is the branch tip — a true non-fast-forward
//     merge. Step 1 passing alone is not sufficient: a branch can be an
//     ancestor of base merely because it was cut from an old mainline
//     commit, without ever having been merged.
func isMerged(ctx context.Context, r shell.Runner, repoRoot, branch, base string) (bool, error) {
	anc, err := r.Run(ctx, repoRoot, "git", "merge-base", "--is-ancestor", branch, base)
	if err != nil {
		return false, err
	}
	if anc.ExitCode != 0 {
		return false, nil
	}

	tipRes, err := r.Run(ctx, repoRoot, "git", "rev-parse", branch)
	if err != nil {
		return false, err
	}
	tip := strings.TrimSpace(tipRes.Stdout)

	fpRes, err := r.Run(ctx, repoRoot, "git", "rev-list", "--first-parent", fmt.Sprintf("%s^..%s", tip, base))
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(fpRes.Stdout, "\n") {
		if strings.TrimSpace(line) == tip {
			return false, nil
		}
	}

	mergesRes, err := r.Run(ctx, repoRoot, "git", "rev-list", "--merges", "--min-parents=2", base)
	if err != nil {
		return false, err
	}
	for _, commit := range strings.Split(mergesRes.Stdout, "\n") {
		commit = strings.TrimSpace(commit)
		if commit == "" {
			continue
		}
		parentsRes, err := r.Run(ctx, repoRoot, "git", "rev-parse", commit+"^@")
		if err != nil {
			continue
		}
		for _, p := range strings.Split(parentsRes.Stdout, "\n") {
			if strings.TrimSpace(p) == tip {
				return true, nil
			}
		}
	}
	return false, nil
}

// parsePorcelain decodes `git worktree list --porcelain` output.
func parsePorcelain(out string) []Worktree {
	var worktrees []Worktree
	var current *Worktree

	flush := func() {
		if current != nil {
			worktrees = append(worktrees, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			current = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "HEAD "):
			if current != nil {
				current.Commit = strings.TrimPrefix(line, "HEAD ")
			}
		case strings.HasPrefix(line, "branch "):
			if current != nil {
				branch := strings.TrimPrefix(line, "branch ")
				current.Branch = strings.TrimPrefix(branch, "refs/heads/")
			}
		case line == "detached":
			if current != nil {
				current.Branch = ""
			}
		}
	}
	flush()
	return worktrees
}
