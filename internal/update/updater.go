package update

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/jayteealao/gitup/internal/errors"
	"github.com/jayteealao/gitup/internal/git"
)

// Updater runs fetch and integration for one repository at a time.
// It is safe for concurrent use on different repositories.
type Updater struct {
	open git.Opener
}

// NewUpdater creates an Updater that reaches repositories through open.
func NewUpdater(open git.Opener) *Updater {
	return &Updater{open: open}
}

// Update fetches the planned remotes of the repository at path and then
// integrates its upstream. It always returns an outcome; a panic while
// handling this repository is reported as Unknown.
func (u *Updater) Update(ctx context.Context, path string, opts Options) (out Outcome) {
	onVerbose := opts.OnVerbose
	if onVerbose == nil {
		onVerbose = func(msg string) {}
	}

	defer func() {
		if r := recover(); r != nil {
			onVerbose(fmt.Sprintf("%s: panic: %v\n%s", path, r, debug.Stack()))
			out = Outcome{Path: path, Kind: Unknown, Detail: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	repo := u.open(path)

	state, err := repo.Inspect(ctx)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotGitRepo) {
			return Outcome{Path: path, Kind: NotARepo}
		}
		return Outcome{Path: path, Kind: Unknown, Detail: err.Error()}
	}

	plan := BuildPlan(state, opts)
	onVerbose(fmt.Sprintf("%s: fetching %v, mode %s", path, plan.Remotes, plan.Mode))

	fetchErrs := u.fetch(ctx, repo, plan.Remotes, opts)

	out = u.integrate(ctx, repo, state, plan, fetchErrs)
	out.Path = path

	if out.Kind.IsSuccess() {
		var failed []string
		for _, remote := range plan.Remotes {
			if _, ok := fetchErrs[remote]; ok {
				failed = append(failed, remote)
			}
		}
		if len(failed) > 0 {
			note := "could not fetch " + strings.Join(failed, ", ")
			if out.Detail == "" {
				out.Detail = note
			} else {
				out.Detail += "; " + note
			}
		}
	}

	return out
}

// fetch fetches each remote in turn. A failed remote does not stop the others.
func (u *Updater) fetch(ctx context.Context, repo git.GitOperations, remotes []string, opts Options) map[string]error {
	failures := make(map[string]error)

	for _, remote := range remotes {
		fctx, cancel := ctx, context.CancelFunc(func() {})
		if opts.FetchTimeout > 0 {
			fctx, cancel = context.WithTimeout(ctx, opts.FetchTimeout)
		}

		err := repo.Fetch(fctx, remote)
		if err != nil && stderrors.Is(fctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s: timed out after %s", errors.ErrGitFetchFailed, remote, opts.FetchTimeout)
		}
		cancel()

		if err != nil {
			failures[remote] = err
		}
	}

	return failures
}

func (u *Updater) integrate(ctx context.Context, repo git.GitOperations, state *git.RepoState, plan Plan, fetchErrs map[string]error) Outcome {
	switch {
	case state.Dirty:
		return Outcome{Kind: DirtyWorkingTree}
	case state.Detached:
		return Outcome{Kind: DetachedHead}
	case state.Upstream == nil:
		return Outcome{Kind: NoUpstream, Detail: fmt.Sprintf("branch %s has no upstream", state.Branch)}
	}

	up := state.Upstream
	if !up.IsLocal() && !state.HasRemote(up.Remote) {
		return Outcome{Kind: NoUpstream, Detail: fmt.Sprintf("remote %q is not configured", up.Remote)}
	}

	if err, ok := fetchErrs[up.Remote]; ok {
		return Outcome{Kind: NetworkError, Detail: detailOf(err)}
	}

	head, err := repo.ResolveRef(ctx, "HEAD")
	if err != nil {
		return Outcome{Kind: Unknown, Detail: err.Error()}
	}

	target, err := repo.ResolveRef(ctx, up.Ref)
	if err != nil {
		if stderrors.Is(err, errors.ErrGitRefNotFound) {
			return Outcome{Kind: NoUpstream, Detail: fmt.Sprintf("upstream %s is gone", up.ShortName())}
		}
		return Outcome{Kind: Unknown, Detail: err.Error()}
	}

	if head == target {
		return Outcome{Kind: UpToDate}
	}

	ahead, err := repo.IsAncestor(ctx, target, head)
	if err != nil {
		return Outcome{Kind: Unknown, Detail: err.Error()}
	}
	if ahead {
		return Outcome{Kind: UpToDate}
	}

	behind, err := repo.IsAncestor(ctx, head, target)
	if err != nil {
		return Outcome{Kind: Unknown, Detail: err.Error()}
	}
	if behind {
		count, err := repo.CountCommits(ctx, head, target)
		if err != nil {
			return Outcome{Kind: Unknown, Detail: err.Error()}
		}
		if err := repo.FastForward(ctx, up.Ref); err != nil {
			return Outcome{Kind: Unknown, Detail: detailOf(err)}
		}
		return Outcome{Kind: FastForwarded, Detail: commitCount(count)}
	}

	switch plan.Mode {
	case ModeRebase:
		if err := repo.Rebase(ctx, up.Ref, plan.KeepMerges); err != nil {
			return integrationFailure(err)
		}
		return Outcome{Kind: Rebased, Detail: "onto " + up.ShortName()}
	case ModeMerge:
		if err := repo.Merge(ctx, up.Ref); err != nil {
			return integrationFailure(err)
		}
		return Outcome{Kind: Merged, Detail: "with " + up.ShortName()}
	default:
		return Outcome{Kind: Unknown, Detail: "no integration mode for a diverged branch"}
	}
}

func integrationFailure(err error) Outcome {
	if stderrors.Is(err, errors.ErrIntegrationConflict) {
		return Outcome{Kind: Conflict, Detail: detailOf(err)}
	}
	return Outcome{Kind: Unknown, Detail: detailOf(err)}
}

// detailOf strips the sentinel prefix so reports show git's own message.
func detailOf(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{
		errors.ErrGitFetchFailed,
		errors.ErrIntegrationConflict,
		errors.ErrIntegrationFailed,
	} {
		if stderrors.Is(err, sentinel) {
			return strings.TrimPrefix(msg, sentinel.Error()+": ")
		}
	}
	return msg
}

func commitCount(n int) string {
	if n == 1 {
		return "1 new commit"
	}
	return fmt.Sprintf("%d new commits", n)
}
