package update

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/jayteealao/gitup/internal/errors"
	"github.com/jayteealao/gitup/internal/git"
)

// fakeRepo implements git.GitOperations for testing.
type fakeRepo struct {
	path  string
	state *git.RepoState

	// refs maps a ref name to its commit.
	refs map[string]string
	// ancestors holds "a..b" for every a that is an ancestor of b.
	ancestors map[string]bool
	count     int

	// Error injection
	inspectErr     error
	fetchErrs      map[string]error
	blockFetch     bool
	fastForwardErr error
	rebaseErr      error
	mergeErr       error
	panicMsg       string

	// Call tracking
	mu    sync.Mutex
	calls []string
}

func (f *fakeRepo) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRepo) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRepo) RepoPath() string { return f.path }

func (f *fakeRepo) Inspect(ctx context.Context) (*git.RepoState, error) {
	f.record("inspect")
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.inspectErr != nil {
		return nil, f.inspectErr
	}
	return f.state, nil
}

func (f *fakeRepo) Fetch(ctx context.Context, remote string) error {
	f.record("fetch " + remote)
	if f.blockFetch {
		<-ctx.Done()
		return fmt.Errorf("%w: %s: signal: killed", apperrors.ErrGitFetchFailed, remote)
	}
	return f.fetchErrs[remote]
}

func (f *fakeRepo) ResolveRef(ctx context.Context, ref string) (string, error) {
	if sha, ok := f.refs[ref]; ok {
		return sha, nil
	}
	return "", fmt.Errorf("%w: %s", apperrors.ErrGitRefNotFound, ref)
}

func (f *fakeRepo) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	return f.ancestors[ancestor+".."+descendant], nil
}

func (f *fakeRepo) CountCommits(ctx context.Context, from, to string) (int, error) {
	return f.count, nil
}

func (f *fakeRepo) FastForward(ctx context.Context, ref string) error {
	f.record("fast-forward " + ref)
	if f.fastForwardErr != nil {
		return f.fastForwardErr
	}
	f.refs["HEAD"] = f.refs[ref]
	return nil
}

func (f *fakeRepo) Rebase(ctx context.Context, upstream string, keepMerges bool) error {
	if keepMerges {
		f.record("rebase --rebase-merges " + upstream)
	} else {
		f.record("rebase " + upstream)
	}
	return f.rebaseErr
}

func (f *fakeRepo) Merge(ctx context.Context, ref string) error {
	f.record("merge " + ref)
	return f.mergeErr
}

var _ git.GitOperations = (*fakeRepo)(nil)

const upstreamRef = "refs/remotes/origin/main"

// trackingState is a clean main branch tracking origin/main.
func trackingState(path string) *git.RepoState {
	return &git.RepoState{
		Path:    path,
		Branch:  "main",
		Remotes: []git.Remote{{Name: "origin", URL: "https://example.com/repo.git"}},
		Upstream: &git.Upstream{
			Remote: "origin",
			Merge:  "refs/heads/main",
			Ref:    upstreamRef,
		},
	}
}

// upToDateRepo has HEAD equal to its upstream.
func upToDateRepo(path string) *fakeRepo {
	return &fakeRepo{
		path:  path,
		state: trackingState(path),
		refs:  map[string]string{"HEAD": "aaa", upstreamRef: "aaa"},
	}
}

// behindRepo can be fast-forwarded to its upstream.
func behindRepo(path string) *fakeRepo {
	return &fakeRepo{
		path:      path,
		state:     trackingState(path),
		refs:      map[string]string{"HEAD": "aaa", upstreamRef: "bbb"},
		ancestors: map[string]bool{"aaa..bbb": true},
		count:     2,
	}
}

// divergedRepo has local and upstream commits.
func divergedRepo(path string) *fakeRepo {
	return &fakeRepo{
		path:      path,
		state:     trackingState(path),
		refs:      map[string]string{"HEAD": "aaa", upstreamRef: "ccc"},
		ancestors: map[string]bool{},
	}
}

// openerFor returns an Opener that serves the given fakes by path.
func openerFor(repos ...*fakeRepo) git.Opener {
	byPath := make(map[string]*fakeRepo, len(repos))
	for _, r := range repos {
		byPath[r.path] = r
	}
	return func(path string) git.GitOperations {
		if r, ok := byPath[path]; ok {
			return r
		}
		return &fakeRepo{path: path, inspectErr: apperrors.ErrNotGitRepo}
	}
}
