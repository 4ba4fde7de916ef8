// Package git provides git operations via the git CLI.
package git

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jayteealao/gitup/internal/errors"
)

// Manager handles git operations for a repository.
type Manager struct {
	repoPath string
	trace    func(msg string)
}

// NewManager creates a new git manager for the given repository.
func NewManager(repoPath string) *Manager {
	return &Manager{repoPath: repoPath}
}

// WithTrace sets a callback that receives every git command line before it runs.
func (m *Manager) WithTrace(fn func(msg string)) *Manager {
	m.trace = fn
	return m
}

// Open is an Opener backed by the git CLI.
func Open(path string) GitOperations {
	return NewManager(path)
}

// CheckInstalled returns ErrGitNotFound when no git binary is on PATH.
func CheckInstalled() error {
	if _, err := exec.LookPath("git"); err != nil {
		return errors.ErrGitNotFound
	}
	return nil
}

// RepoPath returns the repository path.
func (m *Manager) RepoPath() string {
	return m.repoPath
}

// IsGitRepo checks if the path is the root of a git working tree.
// A plain directory inside some other repository does not count.
func (m *Manager) IsGitRepo(ctx context.Context) bool {
	return m.checkRepo(ctx) == nil
}

// checkRepo returns ErrNotGitRepo unless git resolves the path to its own
// working tree. Without this, git would walk up and operate on a parent repository.
func (m *Manager) checkRepo(ctx context.Context) error {
	stdout, stderr, err := m.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		if err == errors.ErrGitNotFound {
			return err
		}
		return fmt.Errorf("%w: %s", errors.ErrNotGitRepo, firstLine(stderr, err))
	}

	top, err := filepath.EvalSymlinks(filepath.FromSlash(strings.TrimSpace(stdout)))
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrNotGitRepo, err)
	}
	want, err := filepath.EvalSymlinks(m.repoPath)
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrNotGitRepo, err)
	}
	if top != want {
		return fmt.Errorf("%w: %s is inside %s", errors.ErrNotGitRepo, m.repoPath, top)
	}
	return nil
}

// Fetch fetches one remote, pruning deleted remote branches.
func (m *Manager) Fetch(ctx context.Context, remote string) error {
	_, stderr, err := m.run(ctx, "fetch", "--prune", remote)
	if err != nil {
		return fmt.Errorf("%w: %s: %s", errors.ErrGitFetchFailed, remote, firstLine(stderr, err))
	}
	return nil
}

// ResolveRef resolves a git reference to a full commit SHA.
func (m *Manager) ResolveRef(ctx context.Context, ref string) (string, error) {
	stdout, _, err := m.run(ctx, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("%w: %s", errors.ErrGitRefNotFound, ref)
	}
	return strings.TrimSpace(stdout), nil
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (m *Manager) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	_, stderr, err := m.run(ctx, "merge-base", "--is-ancestor", ancestor, descendant)
	if err == nil {
		return true, nil
	}
	if exitCode(err) == 1 {
		return false, nil
	}
	return false, fmt.Errorf("failed to compare %s and %s: %s", ShortSHA(ancestor), ShortSHA(descendant), firstLine(stderr, err))
}

// CountCommits returns the number of commits reachable from to but not from.
func (m *Manager) CountCommits(ctx context.Context, from, to string) (int, error) {
	stdout, stderr, err := m.run(ctx, "rev-list", "--count", from+".."+to)
	if err != nil {
		return 0, fmt.Errorf("failed to count commits: %s", firstLine(stderr, err))
	}
	n, err := strconv.Atoi(strings.TrimSpace(stdout))
	if err != nil {
		return 0, fmt.Errorf("unexpected rev-list output %q: %w", stdout, err)
	}
	return n, nil
}

// FastForward moves the current branch to ref without creating a merge commit.
func (m *Manager) FastForward(ctx context.Context, ref string) error {
	_, stderr, err := m.run(ctx, "merge", "--ff-only", ref)
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrIntegrationFailed, firstLine(stderr, err))
	}
	return nil
}

// Rebase replays local commits onto upstream. With keepMerges, local merge
// commits are recreated instead of flattened.
// On conflicts the rebase is left in progress for the user to resolve.
func (m *Manager) Rebase(ctx context.Context, upstream string, keepMerges bool) error {
	args := []string{"rebase"}
	if keepMerges {
		args = append(args, "--rebase-merges")
	}
	_, stderr, err := m.run(ctx, append(args, upstream)...)
	if err != nil {
		return m.integrationError(ctx, stderr, err)
	}
	return nil
}

// Merge merges ref into the current branch with git's default message.
// On conflicts the merge is left in progress for the user to resolve.
func (m *Manager) Merge(ctx context.Context, ref string) error {
	_, stderr, err := m.run(ctx, "merge", "--no-edit", ref)
	if err != nil {
		return m.integrationError(ctx, stderr, err)
	}
	return nil
}

// HasConflicts reports whether the index has unmerged paths or a rebase is stopped.
func (m *Manager) HasConflicts(ctx context.Context) (bool, error) {
	stdout, stderr, err := m.run(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return false, fmt.Errorf("failed to list unmerged paths: %s", firstLine(stderr, err))
	}
	if strings.TrimSpace(stdout) != "" {
		return true, nil
	}

	for _, dir := range []string{"rebase-merge", "rebase-apply"} {
		path, _, err := m.run(ctx, "rev-parse", "--git-path", dir)
		if err != nil {
			continue
		}
		path = strings.TrimSpace(path)
		if !filepath.IsAbs(path) {
			path = filepath.Join(m.repoPath, path)
		}
		if _, err := os.Stat(path); err == nil {
			return true, nil
		}
	}
	return false, nil
}

func (m *Manager) integrationError(ctx context.Context, stderr string, runErr error) error {
	conflicted, err := m.HasConflicts(ctx)
	if err == nil && conflicted {
		return fmt.Errorf("%w: %s", errors.ErrIntegrationConflict, firstLine(stderr, runErr))
	}
	return fmt.Errorf("%w: %s", errors.ErrIntegrationFailed, firstLine(stderr, runErr))
}

// run executes git in the repository and returns stdout and stderr separately.
func (m *Manager) run(ctx context.Context, args ...string) (string, string, error) {
	if m.trace != nil {
		m.trace(fmt.Sprintf("%s: git %s", m.repoPath, strings.Join(args, " ")))
	}

	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", m.repoPath}, args...)...)
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_MERGE_AUTOEDIT=no",
		"LC_ALL=C",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if stderrors.Is(err, exec.ErrNotFound) {
		return "", "", errors.ErrGitNotFound
	}
	return stdout.String(), stderr.String(), err
}

// exitCode returns the process exit code carried by err, or -1.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// firstLine returns the most useful line of git's stderr, falling back to err.
func firstLine(stderr string, err error) string {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "fatal: ") || strings.HasPrefix(line, "error: ") {
			return line
		}
	}
	for _, line := range strings.Split(stderr, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// ShortSHA returns the 7-character short SHA.
func ShortSHA(fullSHA string) string {
	if len(fullSHA) < 7 {
		return fullSHA
	}
	return fullSHA[:7]
}
