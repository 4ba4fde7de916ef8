package git

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jayteealao/gitup/internal/errors"
)

// Preference is the integration mode requested by git configuration.
type Preference int

const (
	PreferUnset Preference = iota
	PreferRebase
	// PreferRebaseMerges rebases while recreating local merge commits.
	PreferRebaseMerges
	PreferMerge
)

func (p Preference) String() string {
	switch p {
	case PreferRebase:
		return "rebase"
	case PreferRebaseMerges:
		return "rebase-merges"
	case PreferMerge:
		return "merge"
	default:
		return "unset"
	}
}

// Remote is a configured remote.
type Remote struct {
	Name string
	URL  string
}

// Upstream is the branch the current branch tracks.
type Upstream struct {
	// Remote is the configured remote name, or "." for a local branch.
	Remote string
	// Merge is the tracked ref on the remote, e.g. refs/heads/main.
	Merge string
	// Ref is the local ref to integrate with, e.g. refs/remotes/origin/main.
	Ref string
}

// IsLocal reports whether the upstream is a branch of the same repository.
func (u *Upstream) IsLocal() bool {
	return u.Remote == "."
}

// ShortName returns the upstream in remote/branch form.
func (u *Upstream) ShortName() string {
	branch := strings.TrimPrefix(u.Merge, "refs/heads/")
	if u.IsLocal() {
		return branch
	}
	return u.Remote + "/" + branch
}

// RepoState is a point-in-time snapshot of one repository.
type RepoState struct {
	Path             string
	Branch           string
	Detached         bool
	Dirty            bool
	Remotes          []Remote
	Upstream         *Upstream
	RebasePreference Preference
}

// HasRemote reports whether a remote with the given name is configured.
func (s *RepoState) HasRemote(name string) bool {
	for _, r := range s.Remotes {
		if r.Name == name {
			return true
		}
	}
	return false
}

// RemoteNames returns the configured remote names in config order.
func (s *RepoState) RemoteNames() []string {
	names := make([]string, 0, len(s.Remotes))
	for _, r := range s.Remotes {
		names = append(names, r.Name)
	}
	return names
}

// Inspect reads the branch, working tree, remotes and upstream of the repository.
// It never modifies the repository.
func (m *Manager) Inspect(ctx context.Context) (*RepoState, error) {
	if _, err := os.Stat(m.repoPath); err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrNotGitRepo, m.repoPath)
	}
	if err := m.checkRepo(ctx); err != nil {
		return nil, err
	}

	state := &RepoState{Path: m.repoPath}

	stdout, stderr, err := m.run(ctx, "symbolic-ref", "-q", "HEAD")
	switch {
	case err == nil:
		state.Branch = strings.TrimPrefix(strings.TrimSpace(stdout), "refs/heads/")
	case exitCode(err) == 1:
		state.Detached = true
	default:
		return nil, fmt.Errorf("failed to read HEAD: %s", firstLine(stderr, err))
	}

	stdout, stderr, err = m.run(ctx, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %s", firstLine(stderr, err))
	}
	state.Dirty = strings.TrimSpace(stdout) != ""

	remotes, err := m.remotes(ctx)
	if err != nil {
		return nil, err
	}
	state.Remotes = remotes

	if state.Branch != "" {
		upstream, err := m.upstream(ctx, state.Branch)
		if err != nil {
			return nil, err
		}
		state.Upstream = upstream
	}

	pref, err := m.rebasePreference(ctx, state.Branch)
	if err != nil {
		return nil, err
	}
	state.RebasePreference = pref

	return state, nil
}

func (m *Manager) remotes(ctx context.Context) ([]Remote, error) {
	stdout, stderr, err := m.run(ctx, "config", "--get-regexp", `^remote\..*\.url$`)
	if err != nil {
		if exitCode(err) == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list remotes: %s", firstLine(stderr, err))
	}

	var remotes []Remote
	seen := make(map[string]bool)
	for _, line := range strings.Split(stdout, "\n") {
		key, url, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, "remote."), ".url")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		remotes = append(remotes, Remote{Name: name, URL: url})
	}
	return remotes, nil
}

func (m *Manager) upstream(ctx context.Context, branch string) (*Upstream, error) {
	remote, ok, err := m.configGet(ctx, "branch."+branch+".remote")
	if err != nil || !ok {
		return nil, err
	}
	merge, ok, err := m.configGet(ctx, "branch."+branch+".merge")
	if err != nil || !ok {
		return nil, err
	}

	u := &Upstream{Remote: remote, Merge: merge}

	// git maps the merge ref through the remote's fetch refspec.
	stdout, stderr, err := m.run(ctx, "for-each-ref", "--format=%(upstream)", "refs/heads/"+branch)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upstream of %s: %s", branch, firstLine(stderr, err))
	}
	u.Ref = strings.TrimSpace(stdout)
	if u.Ref == "" {
		if u.IsLocal() {
			u.Ref = merge
		} else {
			u.Ref = "refs/remotes/" + remote + "/" + strings.TrimPrefix(merge, "refs/heads/")
		}
	}
	return u, nil
}

func (m *Manager) rebasePreference(ctx context.Context, branch string) (Preference, error) {
	keys := []string{"pull.rebase"}
	if branch != "" {
		keys = append([]string{"branch." + branch + ".rebase"}, keys...)
	}

	for _, key := range keys {
		value, ok, err := m.configGet(ctx, key)
		if err != nil {
			return PreferUnset, err
		}
		if ok {
			return ParsePreference(value), nil
		}
	}
	return PreferUnset, nil
}

// ParsePreference maps a pull.rebase style value to a Preference.
// Every value git accepts other than false means rebase; merges and the
// older preserve also keep local merge commits.
func ParsePreference(value string) Preference {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return PreferUnset
	case "false", "no", "off", "0":
		return PreferMerge
	case "merges", "m", "preserve", "p":
		return PreferRebaseMerges
	default:
		return PreferRebase
	}
}

// configGet reads a single config value. A missing key is not an error.
func (m *Manager) configGet(ctx context.Context, key string) (string, bool, error) {
	stdout, stderr, err := m.run(ctx, "config", "--get", key)
	if err != nil {
		if exitCode(err) == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read %s: %s", key, firstLine(stderr, err))
	}
	return strings.TrimSpace(stdout), true, nil
}
