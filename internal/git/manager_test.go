package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/jayteealao/gitup/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.CommandContext(context.Background(), "git", append([]string{"-C", dir}, args...)...)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), output)
	return strings.TrimSpace(string(output))
}

func configureIdentity(t *testing.T, repoPath string) {
	t.Helper()

	gitCmd(t, repoPath, "config", "user.email", "test@test.com")
	gitCmd(t, repoPath, "config", "user.name", "Test")
	gitCmd(t, repoPath, "config", "commit.gpgsign", "false")
}

func commitFile(t *testing.T, repoPath, name, content, message string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(repoPath, name), []byte(content), 0644))
	gitCmd(t, repoPath, "add", name)
	gitCmd(t, repoPath, "commit", "-m", message)
}

// setupTestRepo creates an upstream repository on main and a clone tracking origin/main.
func setupTestRepo(t *testing.T) (upstream, clone string) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	tmpDir := t.TempDir()

	upstream = filepath.Join(tmpDir, "upstream")
	require.NoError(t, os.MkdirAll(upstream, 0755))
	gitCmd(t, upstream, "init")
	configureIdentity(t, upstream)
	commitFile(t, upstream, "README.md", "# Test\n", "Initial commit")
	gitCmd(t, upstream, "branch", "-M", "main")

	clone = filepath.Join(tmpDir, "clone")
	gitCmd(t, tmpDir, "clone", upstream, clone)
	configureIdentity(t, clone)

	return upstream, clone
}

func TestManager_IsGitRepo(t *testing.T) {
	_, clone := setupTestRepo(t)
	ctx := context.Background()

	t.Run("valid repo", func(t *testing.T) {
		assert.True(t, NewManager(clone).IsGitRepo(ctx))
	})

	t.Run("invalid path", func(t *testing.T) {
		assert.False(t, NewManager("/nonexistent/path").IsGitRepo(ctx))
	})
}

func TestManager_Inspect(t *testing.T) {
	upstream, clone := setupTestRepo(t)
	ctx := context.Background()

	t.Run("clean branch with upstream", func(t *testing.T) {
		state, err := NewManager(clone).Inspect(ctx)
		require.NoError(t, err)

		assert.Equal(t, clone, state.Path)
		assert.Equal(t, "main", state.Branch)
		assert.False(t, state.Detached)
		assert.False(t, state.Dirty)
		require.Len(t, state.Remotes, 1)
		assert.Equal(t, "origin", state.Remotes[0].Name)
		assert.Equal(t, upstream, state.Remotes[0].URL)
		require.NotNil(t, state.Upstream)
		assert.Equal(t, "origin", state.Upstream.Remote)
		assert.Equal(t, "refs/heads/main", state.Upstream.Merge)
		assert.Equal(t, "refs/remotes/origin/main", state.Upstream.Ref)
		assert.Equal(t, "origin/main", state.Upstream.ShortName())
		assert.Equal(t, PreferUnset, state.RebasePreference)
	})

	t.Run("untracked files do not make the tree dirty", func(t *testing.T) {
		path := filepath.Join(clone, "scratch.txt")
		require.NoError(t, os.WriteFile(path, []byte("tmp"), 0644))
		defer os.Remove(path)

		state, err := NewManager(clone).Inspect(ctx)
		require.NoError(t, err)
		assert.False(t, state.Dirty)
	})

	t.Run("modified tracked file makes the tree dirty", func(t *testing.T) {
		path := filepath.Join(clone, "README.md")
		require.NoError(t, os.WriteFile(path, []byte("changed\n"), 0644))
		defer gitCmd(t, clone, "checkout", "--", "README.md")

		state, err := NewManager(clone).Inspect(ctx)
		require.NoError(t, err)
		assert.True(t, state.Dirty)
	})

	t.Run("rebase preference from config", func(t *testing.T) {
		gitCmd(t, clone, "config", "pull.rebase", "true")
		state, err := NewManager(clone).Inspect(ctx)
		require.NoError(t, err)
		assert.Equal(t, PreferRebase, state.RebasePreference)

		gitCmd(t, clone, "config", "branch.main.rebase", "false")
		state, err = NewManager(clone).Inspect(ctx)
		require.NoError(t, err)
		assert.Equal(t, PreferMerge, state.RebasePreference, "branch setting wins over pull.rebase")

		gitCmd(t, clone, "config", "--unset", "branch.main.rebase")
		gitCmd(t, clone, "config", "--unset", "pull.rebase")
	})

	t.Run("detached head", func(t *testing.T) {
		gitCmd(t, clone, "checkout", "--detach")
		defer gitCmd(t, clone, "checkout", "main")

		state, err := NewManager(clone).Inspect(ctx)
		require.NoError(t, err)
		assert.True(t, state.Detached)
		assert.Empty(t, state.Branch)
		assert.Nil(t, state.Upstream)
	})

	t.Run("branch without upstream", func(t *testing.T) {
		state, err := NewManager(upstream).Inspect(ctx)
		require.NoError(t, err)
		assert.Equal(t, "main", state.Branch)
		assert.Empty(t, state.Remotes)
		assert.Nil(t, state.Upstream)
	})

	t.Run("directory that is not a repository", func(t *testing.T) {
		_, err := NewManager(t.TempDir()).Inspect(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrNotGitRepo))
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := NewManager(filepath.Join(t.TempDir(), "gone")).Inspect(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrNotGitRepo))
	})

	t.Run("custom fetch refspec", func(t *testing.T) {
		gitCmd(t, clone, "config", "remote.origin.fetch", "+refs/heads/*:refs/remotes/mirror/*")
		defer gitCmd(t, clone, "config", "remote.origin.fetch", "+refs/heads/*:refs/remotes/origin/*")

		state, err := NewManager(clone).Inspect(ctx)
		require.NoError(t, err)
		require.NotNil(t, state.Upstream)
		assert.Equal(t, "refs/remotes/mirror/main", state.Upstream.Ref)
		assert.Equal(t, "origin/main", state.Upstream.ShortName())
	})
}

func TestManager_NestedDirectoryWithoutGit(t *testing.T) {
	_, clone := setupTestRepo(t)
	ctx := context.Background()

	nested := filepath.Join(clone, "proj")
	require.NoError(t, os.MkdirAll(nested, 0755))
	gitCmd(t, nested, "init")
	configureIdentity(t, nested)
	commitFile(t, nested, "main.go", "package main\n", "Nested commit")

	manager := NewManager(nested)
	assert.True(t, manager.IsGitRepo(ctx))

	// Without its own metadata git would resolve the parent clone.
	require.NoError(t, os.RemoveAll(filepath.Join(nested, ".git")))

	assert.False(t, manager.IsGitRepo(ctx))
	_, err := manager.Inspect(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotGitRepo))
	assert.Contains(t, err.Error(), "is inside")
}

func TestManager_RebaseKeepsMerges(t *testing.T) {
	setup := func(t *testing.T) (*Manager, string) {
		upstream, clone := setupTestRepo(t)
		commitFile(t, upstream, "upstream.txt", "u\n", "Upstream file")

		gitCmd(t, clone, "checkout", "-b", "topic")
		commitFile(t, clone, "topic.txt", "t\n", "Topic file")
		gitCmd(t, clone, "checkout", "main")
		commitFile(t, clone, "local.txt", "l\n", "Local file")
		gitCmd(t, clone, "merge", "--no-ff", "--no-edit", "topic")

		manager := NewManager(clone)
		require.NoError(t, manager.Fetch(context.Background(), "origin"))
		return manager, clone
	}
	mergeCommits := func(t *testing.T, clone string) string {
		return gitCmd(t, clone, "rev-list", "--merges", "--count", "refs/remotes/origin/main..HEAD")
	}

	t.Run("plain rebase flattens local merges", func(t *testing.T) {
		manager, clone := setup(t)
		require.NoError(t, manager.Rebase(context.Background(), "refs/remotes/origin/main", false))
		assert.Equal(t, "0", mergeCommits(t, clone))
	})

	t.Run("rebase merges recreates them", func(t *testing.T) {
		manager, clone := setup(t)
		require.NoError(t, manager.Rebase(context.Background(), "refs/remotes/origin/main", true))
		assert.Equal(t, "1", mergeCommits(t, clone))

		isAncestor, err := manager.IsAncestor(context.Background(), "refs/remotes/origin/main", "HEAD")
		require.NoError(t, err)
		assert.True(t, isAncestor)
	})
}

func TestManager_FetchAndFastForward(t *testing.T) {
	upstream, clone := setupTestRepo(t)
	ctx := context.Background()
	manager := NewManager(clone)

	commitFile(t, upstream, "a.txt", "a\n", "Add a")
	commitFile(t, upstream, "b.txt", "b\n", "Add b")

	require.NoError(t, manager.Fetch(ctx, "origin"))

	head, err := manager.ResolveRef(ctx, "HEAD")
	require.NoError(t, err)
	remote, err := manager.ResolveRef(ctx, "refs/remotes/origin/main")
	require.NoError(t, err)
	assert.NotEqual(t, head, remote)

	isAncestor, err := manager.IsAncestor(ctx, head, remote)
	require.NoError(t, err)
	assert.True(t, isAncestor)

	isAncestor, err = manager.IsAncestor(ctx, remote, head)
	require.NoError(t, err)
	assert.False(t, isAncestor)

	count, err := manager.CountCommits(ctx, head, remote)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, manager.FastForward(ctx, remote))

	head, err = manager.ResolveRef(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, remote, head)
}

func TestManager_FetchFailure(t *testing.T) {
	_, clone := setupTestRepo(t)
	ctx := context.Background()

	gitCmd(t, clone, "remote", "add", "broken", filepath.Join(t.TempDir(), "missing"))

	err := NewManager(clone).Fetch(ctx, "broken")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrGitFetchFailed))
	assert.Contains(t, err.Error(), "broken")
}

func TestManager_ResolveRef(t *testing.T) {
	_, clone := setupTestRepo(t)
	ctx := context.Background()
	manager := NewManager(clone)

	sha, err := manager.ResolveRef(ctx, "HEAD")
	require.NoError(t, err)
	assert.Len(t, sha, 40)

	_, err = manager.ResolveRef(ctx, "refs/remotes/origin/nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrGitRefNotFound))
}

func TestManager_IntegrationConflicts(t *testing.T) {
	setupDiverged := func(t *testing.T) (*Manager, string) {
		upstream, clone := setupTestRepo(t)
		commitFile(t, upstream, "README.md", "# Upstream\n", "Upstream change")
		commitFile(t, clone, "README.md", "# Local\n", "Local change")

		manager := NewManager(clone)
		require.NoError(t, manager.Fetch(context.Background(), "origin"))
		return manager, clone
	}

	t.Run("merge leaves conflict in place", func(t *testing.T) {
		manager, clone := setupDiverged(t)
		ctx := context.Background()

		err := manager.Merge(ctx, "refs/remotes/origin/main")
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrIntegrationConflict))

		conflicted, err := manager.HasConflicts(ctx)
		require.NoError(t, err)
		assert.True(t, conflicted)

		_, err = os.Stat(filepath.Join(clone, ".git", "MERGE_HEAD"))
		assert.NoError(t, err, "merge must not be aborted")
	})

	t.Run("rebase leaves conflict in place", func(t *testing.T) {
		manager, clone := setupDiverged(t)
		ctx := context.Background()

		err := manager.Rebase(ctx, "refs/remotes/origin/main", false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrIntegrationConflict))

		conflicted, err := manager.HasConflicts(ctx)
		require.NoError(t, err)
		assert.True(t, conflicted)

		status := gitCmd(t, clone, "status")
		assert.Contains(t, status, "rebase", "rebase must not be aborted")
	})

	t.Run("merge without conflicts", func(t *testing.T) {
		upstream, clone := setupTestRepo(t)
		commitFile(t, upstream, "upstream.txt", "u\n", "Upstream file")
		commitFile(t, clone, "local.txt", "l\n", "Local file")

		manager := NewManager(clone)
		ctx := context.Background()
		require.NoError(t, manager.Fetch(ctx, "origin"))
		require.NoError(t, manager.Merge(ctx, "refs/remotes/origin/main"))

		conflicted, err := manager.HasConflicts(ctx)
		require.NoError(t, err)
		assert.False(t, conflicted)
	})
}

func TestManager_Trace(t *testing.T) {
	_, clone := setupTestRepo(t)

	var lines []string
	manager := NewManager(clone).WithTrace(func(msg string) {
		lines = append(lines, msg)
	})
	assert.True(t, manager.IsGitRepo(context.Background()))
	require.Len(t, lines, 1)
	assert.Equal(t, clone+": git rev-parse --show-toplevel", lines[0])
}

func TestParsePreference(t *testing.T) {
	tests := []struct {
		value    string
		expected Preference
	}{
		{"", PreferUnset},
		{"false", PreferMerge},
		{"FALSE", PreferMerge},
		{"true", PreferRebase},
		{"interactive", PreferRebase},
		{"merges", PreferRebaseMerges},
		{"m", PreferRebaseMerges},
		{"preserve", PreferRebaseMerges},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParsePreference(tt.value))
		})
	}
}

func TestShortSHA(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"abc123def456789012345678901234567890abcd", "abc123d"},
		{"abc123", "abc123"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShortSHA(tt.input))
		})
	}
}
