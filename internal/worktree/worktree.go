// Package worktree implements the Worktree Manager (§4.10): create, list,
// list-with-status, and remove operations over git worktrees. It never
// calls checkout, fetch, pull, or push — those mutate shared branch state
// outside a worktree's own lifecycle and are explicitly out of scope (§5).
package worktree

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gregory-lime/jacques/internal/shell"
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName enforces the worktree naming rule: letters, digits,
// underscore, hyphen, 1-100 characters.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("worktree name must not be empty")
	}
	if len(name) > 100 {
		return fmt.Errorf("worktree name %q exceeds 100 characters", name)
	}
	if !nameRe.MatchString(name) {
		return fmt.Errorf("worktree name %q contains characters outside [A-Za-z0-9_-]", name)
	}
	return nil
}

// Worktree is a single git worktree entry.
type Worktree struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Branch string `json:"branch"`
	Commit string `json:"commit"`
}

// Status augments a Worktree with divergence-against-default-branch and
// merge state.
type Status struct {
	Worktree
	Ahead  int  `json:"ahead"`
	Behind int  `json:"behind"`
	Dirty  bool `json:"dirty"`
	Merged bool `json:"merged"`
}

// Manager operates on the worktrees of a single git repository.
type Manager struct {
	runner   shell.Runner
	repoRoot string
}

// New constructs a Manager rooted at repoRoot (the main worktree's path).
func New(runner shell.Runner, repoRoot string) *Manager {
	return &Manager{runner: runner, repoRoot: repoRoot}
}

func (m *Manager) pathFor(name string) string {
	base := filepath.Base(strings.TrimRight(m.repoRoot, string(filepath.Separator)))
	return filepath.Join(filepath.Dir(m.repoRoot), fmt.Sprintf("%s-%s", base, name))
}

// samePath reports whether a and b resolve to the same location, following
// symlinks where possible and falling back to lexical comparison when a
// path can't be resolved (e.g. already removed).
func samePath(a, b string) bool {
	ra, err := filepath.EvalSymlinks(a)
	if err != nil {
		ra = filepath.Clean(a)
	}
	rb, err := filepath.EvalSymlinks(b)
	if err != nil {
		rb = filepath.Clean(b)
	}
	return ra == rb
}

// Create adds a new worktree named name, branching from baseBranch (the
// repository's default branch if empty).
func (m *Manager) Create(ctx context.Context, name, baseBranch string) (*Worktree, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	mctx, cancel := shell.MutationContext(ctx)
	defer cancel()

	if baseBranch == "" {
		baseBranch = defaultBranch(mctx, m.runner, m.repoRoot)
	}

	path := m.pathFor(name)
	args := []string{"worktree", "add", "-b", name, path, baseBranch}
	res, err := m.runner.Run(mctx, m.repoRoot, "git", args...)
	if err != nil {
		return nil, fmt.Errorf("git worktree add: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, errors.New(classifyGitError(res.Stderr))
	}

	return &Worktree{Name: name, Path: path, Branch: name}, nil
}

// classifyGitError maps common git stderr patterns to canonical messages
// (§7); anything unrecognized passes through trimmed.
func classifyGitError(stderr string) string {
	trimmed := strings.TrimSpace(stderr)
	lower := strings.ToLower(trimmed)
	switch {
	case strings.Contains(lower, "already exists"):
		if strings.Contains(lower, "branch") {
			return "branch already exists"
		}
		return "directory already exists"
	case strings.Contains(lower, "is already used by worktree"):
		return "branch already exists"
	case strings.Contains(lower, "uncommitted") || strings.Contains(lower, "contains modified or untracked files"):
		return "has uncommitted changes"
	default:
		return trimmed
	}
}

// nameFromBranch derives the worktree's logical name from its branch, for
// entries discovered via `git worktree list` rather than created here.
func nameFromBranch(branch string) string {
	return strings.ReplaceAll(branch, "/", "-")
}

// List returns every worktree of the repository, including the main one.
func (m *Manager) List(ctx context.Context) ([]Worktree, error) {
	sctx, cancel := shell.StatusContext(ctx)
	defer cancel()

	res, err := m.runner.Run(sctx, m.repoRoot, "git", "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git worktree list: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("git worktree list failed: %s", res.Stderr)
	}

	worktrees := parsePorcelain(res.Stdout)
	for i := range worktrees {
		if worktrees[i].Branch != "" {
			worktrees[i].Name = nameFromBranch(worktrees[i].Branch)
		}
	}
	return worktrees, nil
}

// ListWithStatus returns every non-main worktree together with its
// divergence against the repository's default branch and whether it has
// already been merged in.
func (m *Manager) ListWithStatus(ctx context.Context) ([]Status, error) {
	worktrees, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	sctx, cancel := shell.StatusContext(ctx)
	defer cancel()
	base := defaultBranch(sctx, m.runner, m.repoRoot)

	var out []Status
	for _, wt := range worktrees {
		if wt.Path == m.repoRoot || wt.Branch == "" || wt.Branch == base {
			continue
		}

		statCtx, statCancel := shell.StatusContext(ctx)
		ahead, behind, aerr := aheadBehind(statCtx, m.runner, m.repoRoot, wt.Branch, base)
		dirty, _ := isDirty(statCtx, m.runner, wt.Path)
		merged, _ := isMerged(statCtx, m.runner, m.repoRoot, wt.Branch, base)
		statCancel()
		if aerr != nil {
			continue
		}

		out = append(out, Status{Worktree: wt, Ahead: ahead, Behind: behind, Dirty: dirty, Merged: merged})
	}
	return out, nil
}

// Remove deletes the worktree named name. force passes --force to git,
// discarding uncommitted changes and unpushed commits in that worktree. If
// deleteBranch is set, its branch (captured before removal) is deleted
// afterward with -d (-D when force); a branch-deletion failure does not
// fail the overall remove — it is reported via the returned bool.
func (m *Manager) Remove(ctx context.Context, name string, force, deleteBranch bool) (branchDeleted bool, err error) {
	worktrees, err := m.List(ctx)
	if err != nil {
		return false, err
	}

	var target *Worktree
	for i := range worktrees {
		if worktrees[i].Name == name {
			target = &worktrees[i]
			break
		}
	}
	if target == nil {
		return false, fmt.Errorf("no worktree named %q", name)
	}
	if samePath(target.Path, m.repoRoot) {
		return false, errors.New("cannot remove the main worktree")
	}
	branch := target.Branch

	mctx, cancel := shell.MutationContext(ctx)
	defer cancel()

	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, target.Path)

	res, err := m.runner.Run(mctx, m.repoRoot, "git", args...)
	if err != nil {
		return false, fmt.Errorf("git worktree remove: %w", err)
	}
	if res.ExitCode != 0 {
		return false, errors.New(classifyGitError(res.Stderr))
	}

	if deleteBranch && branch != "" {
		flag := "-d"
		if force {
			flag = "-D"
		}
		bctx, bcancel := shell.MutationContext(ctx)
		bres, berr := m.runner.Run(bctx, m.repoRoot, "git", "branch", flag, branch)
		bcancel()
		branchDeleted = berr == nil && bres.ExitCode == 0
	}

	return branchDeleted, nil
}
