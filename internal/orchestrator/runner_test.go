package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jayteealao/gitup/internal/discover"
	apperrors "github.com/jayteealao/gitup/internal/errors"
	"github.com/jayteealao/gitup/internal/git"
	"github.com/jayteealao/gitup/internal/update"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock Implementations ---

// mockUpdater implements RepoUpdater for testing.
type mockUpdater struct {
	outcomes map[string]update.Kind
	delays   map[string]time.Duration
	panics   map[string]bool
	hook     func(ctx context.Context, path string)

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu    sync.Mutex
	calls []string
}

func (m *mockUpdater) Update(ctx context.Context, path string, opts update.Options) update.Outcome {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxInFlight.Load()
		if n <= cur || m.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, path)
	m.mu.Unlock()

	if m.hook != nil {
		m.hook(ctx, path)
	}
	if d := m.delays[path]; d > 0 {
		time.Sleep(d)
	}
	if m.panics[path] {
		panic("updater exploded")
	}
	return update.Outcome{Path: path, Kind: m.outcomes[path]}
}

func (m *mockUpdater) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func targetsFor(paths ...string) []discover.Target {
	targets := make([]discover.Target, len(paths))
	for i, p := range paths {
		targets[i] = discover.Target{Path: p}
	}
	return targets
}

func kindsOf(report *Report) []update.Kind {
	kinds := make([]update.Kind, len(report.Outcomes))
	for i, o := range report.Outcomes {
		kinds[i] = o.Kind
	}
	return kinds
}

func TestRunner_PreservesOrder(t *testing.T) {
	updater := &mockUpdater{
		outcomes: map[string]update.Kind{
			"/r/a": update.Merged,
			"/r/b": update.UpToDate,
			"/r/c": update.FastForwarded,
			"/r/d": update.Rebased,
		},
		delays: map[string]time.Duration{
			"/r/a": 40 * time.Millisecond,
			"/r/b": 10 * time.Millisecond,
			"/r/c": 30 * time.Millisecond,
		},
	}

	var streamed []string
	report, err := NewRunner(updater).Run(context.Background(), targetsFor("/r/a", "/r/b", "/r/c", "/r/d"), RunOptions{
		Concurrency: 4,
		OnOutcome:   func(out update.Outcome) { streamed = append(streamed, out.Path) },
	})
	require.NoError(t, err)

	assert.Equal(t, []update.Kind{update.Merged, update.UpToDate, update.FastForwarded, update.Rebased}, kindsOf(report))
	assert.Equal(t, "/r/a", report.Outcomes[0].Path)
	assert.Equal(t, "/r/d", report.Outcomes[3].Path)
	assert.ElementsMatch(t, []string{"/r/a", "/r/b", "/r/c", "/r/d"}, streamed)
	assert.True(t, report.Success())
	assert.False(t, report.Stopped)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestRunner_BoundsConcurrency(t *testing.T) {
	updater := &mockUpdater{delays: map[string]time.Duration{}}
	var paths []string
	for i := 0; i < 12; i++ {
		p := fmt.Sprintf("/r/%02d", i)
		paths = append(paths, p)
		updater.delays[p] = 15 * time.Millisecond
	}

	report, err := NewRunner(updater).Run(context.Background(), targetsFor(paths...), RunOptions{Concurrency: 3})
	require.NoError(t, err)

	assert.Len(t, report.Outcomes, 12)
	assert.LessOrEqual(t, updater.maxInFlight.Load(), int32(3))
	assert.Len(t, updater.Calls(), 12)
}

func TestRunner_MissingTargets(t *testing.T) {
	updater := &mockUpdater{outcomes: map[string]update.Kind{"/r/ok": update.UpToDate}}
	targets := []discover.Target{
		{Path: "/r/gone", Missing: true, Reason: "path does not exist"},
		{Path: "/r/ok"},
	}

	report, err := NewRunner(updater).Run(context.Background(), targets, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, update.Outcome{Path: "/r/gone", Kind: update.NotARepo, Detail: "path does not exist"}, report.Outcomes[0])
	assert.Equal(t, update.UpToDate, report.Outcomes[1].Kind)
	assert.Equal(t, []string{"/r/ok"}, updater.Calls())
	assert.False(t, report.Success())
	assert.Equal(t, 1, report.Failed())
}

func TestRunner_IsolatesPanics(t *testing.T) {
	updater := &mockUpdater{
		outcomes: map[string]update.Kind{"/r/a": update.UpToDate, "/r/c": update.Merged},
		panics:   map[string]bool{"/r/b": true},
	}

	report, err := NewRunner(updater).Run(context.Background(), targetsFor("/r/a", "/r/b", "/r/c"), RunOptions{Concurrency: 1})
	require.NoError(t, err)

	assert.Equal(t, []update.Kind{update.UpToDate, update.Unknown, update.Merged}, kindsOf(report))
	assert.Contains(t, report.Outcomes[1].Detail, "updater exploded")
}

func TestRunner_RejectsInvalidOptions(t *testing.T) {
	t.Run("rebase and merge together", func(t *testing.T) {
		updater := &mockUpdater{}
		_, err := NewRunner(updater).Run(context.Background(), targetsFor("/r/a"), RunOptions{
			Update: update.Options{ForceRebase: true, ForceMerge: true},
		})
		assert.ErrorIs(t, err, apperrors.ErrConflictingModes)
		assert.Empty(t, updater.Calls(), "no repository may be touched")
	})

	t.Run("negative concurrency", func(t *testing.T) {
		updater := &mockUpdater{}
		_, err := NewRunner(updater).Run(context.Background(), targetsFor("/r/a"), RunOptions{Concurrency: -1})
		assert.ErrorIs(t, err, apperrors.ErrInvalidConcurrency)
		assert.Empty(t, updater.Calls())
	})
}

func TestRunner_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	release := make(chan struct{})
	var inFlightCtxErr error

	updater := &mockUpdater{
		outcomes: map[string]update.Kind{"/r/a": update.FastForwarded},
		hook: func(ctx context.Context, path string) {
			if path != "/r/a" {
				return
			}
			close(started)
			<-release
			inFlightCtxErr = ctx.Err()
		},
	}

	go func() {
		<-started
		cancel()
		close(release)
	}()

	report, err := NewRunner(updater).Run(ctx, targetsFor("/r/a", "/r/b", "/r/c"), RunOptions{Concurrency: 1})
	require.NoError(t, err)

	assert.Equal(t, []update.Kind{update.FastForwarded, update.Stopped, update.Stopped}, kindsOf(report))
	assert.Equal(t, "/r/c", report.Outcomes[2].Path)
	assert.NoError(t, inFlightCtxErr, "in-flight repository must finish its git work")
	assert.Equal(t, []string{"/r/a"}, updater.Calls())
	assert.True(t, report.Stopped)
	assert.False(t, report.Success())
}

func TestRunner_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	updater := &mockUpdater{}
	targets := []discover.Target{{Path: "/r/a"}, {Path: "/r/gone", Missing: true}}

	report, err := NewRunner(updater).Run(ctx, targets, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []update.Kind{update.Stopped, update.NotARepo}, kindsOf(report))
	assert.Empty(t, updater.Calls())
}

func TestReport_Counts(t *testing.T) {
	report := &Report{Outcomes: []update.Outcome{
		{Kind: update.UpToDate}, {Kind: update.UpToDate}, {Kind: update.Conflict},
	}}
	assert.Equal(t, map[update.Kind]int{update.UpToDate: 2, update.Conflict: 1}, report.Counts())
	assert.Equal(t, 1, report.Failed())
}

// --- End-to-end through the real updater ---

// scriptedRepo implements git.GitOperations with a fixed state.
type scriptedRepo struct {
	state *git.RepoState
	head  string
	up    string
	// behind is true when head is an ancestor of up.
	behind bool
}

func (s *scriptedRepo) RepoPath() string { return s.state.Path }
func (s *scriptedRepo) Inspect(ctx context.Context) (*git.RepoState, error) {
	return s.state, nil
}
func (s *scriptedRepo) Fetch(ctx context.Context, remote string) error { return nil }
func (s *scriptedRepo) ResolveRef(ctx context.Context, ref string) (string, error) {
	if ref == "HEAD" {
		return s.head, nil
	}
	return s.up, nil
}
func (s *scriptedRepo) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	return s.behind && ancestor == s.head && descendant == s.up, nil
}
func (s *scriptedRepo) CountCommits(ctx context.Context, from, to string) (int, error) {
	return 1, nil
}
func (s *scriptedRepo) FastForward(ctx context.Context, ref string) error {
	s.head = s.up
	return nil
}
func (s *scriptedRepo) Rebase(ctx context.Context, upstream string, keepMerges bool) error {
	return nil
}
func (s *scriptedRepo) Merge(ctx context.Context, ref string) error { return nil }

func scripted(path string, mutate func(s *git.RepoState)) *scriptedRepo {
	state := &git.RepoState{
		Path:     path,
		Branch:   "main",
		Remotes:  []git.Remote{{Name: "origin"}},
		Upstream: &git.Upstream{Remote: "origin", Merge: "refs/heads/main", Ref: "refs/remotes/origin/main"},
	}
	if mutate != nil {
		mutate(state)
	}
	return &scriptedRepo{state: state, head: "111", up: "222", behind: true}
}

func TestRunner_MixedBatch(t *testing.T) {
	repos := map[string]*scriptedRepo{
		"/r/a": scripted("/r/a", nil),
		"/r/b": scripted("/r/b", func(s *git.RepoState) { s.Dirty = true }),
		"/r/c": scripted("/r/c", func(s *git.RepoState) {
			s.Detached, s.Branch, s.Upstream = true, "", nil
		}),
	}
	open := func(path string) git.GitOperations { return repos[path] }

	report, err := NewRunner(update.NewUpdater(open)).Run(context.Background(), targetsFor("/r/a", "/r/b", "/r/c"), RunOptions{})
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, "/r/a", report.Outcomes[0].Path)
	assert.Equal(t, update.FastForwarded, report.Outcomes[0].Kind)
	assert.Equal(t, "/r/b", report.Outcomes[1].Path)
	assert.Equal(t, update.DirtyWorkingTree, report.Outcomes[1].Kind)
	assert.Equal(t, "/r/c", report.Outcomes[2].Path)
	assert.Equal(t, update.DetachedHead, report.Outcomes[2].Kind)
	assert.False(t, report.Success())
}

func TestRunner_VanishedBookmark(t *testing.T) {
	gone := filepath.Join(t.TempDir(), "deleted-project")

	updater := &mockUpdater{}
	report, err := NewRunner(updater).Run(context.Background(), discover.Locate([]string{gone}), RunOptions{})
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, gone, report.Outcomes[0].Path)
	assert.Equal(t, update.NotARepo, report.Outcomes[0].Kind)
	assert.Empty(t, updater.Calls())
}
