package update

import (
	"time"

	"github.com/jayteealao/gitup/internal/errors"
	"github.com/jayteealao/gitup/internal/git"
)

// Mode is how a diverged branch is integrated with its upstream.
type Mode int

const (
	ModeNone Mode = iota
	ModeRebase
	ModeMerge
)

func (m Mode) String() string {
	switch m {
	case ModeRebase:
		return "rebase"
	case ModeMerge:
		return "merge"
	default:
		return "none"
	}
}

// Options controls one update invocation.
type Options struct {
	// CurrentRemoteOnly fetches only the remote tracked by the current branch.
	CurrentRemoteOnly bool
	ForceRebase       bool
	ForceMerge        bool
	// FetchTimeout bounds each fetch; zero means no limit.
	FetchTimeout time.Duration
	OnVerbose    func(msg string)
}

// Validate rejects contradictory options.
func (o Options) Validate() error {
	if o.ForceRebase && o.ForceMerge {
		return errors.ErrConflictingModes
	}
	return nil
}

// Plan is what will be done to one repository.
type Plan struct {
	Remotes []string
	Mode    Mode
	// KeepMerges recreates local merge commits when rebasing.
	KeepMerges bool
}

// BuildPlan picks the remotes to fetch and the integration mode.
// A forced mode wins over git configuration; with neither, merge is used.
// A forced rebase keeps local merge commits, as does a merges or preserve setting.
func BuildPlan(state *git.RepoState, opts Options) Plan {
	if state.Detached {
		if opts.CurrentRemoteOnly {
			return Plan{Remotes: inferRemote(state), Mode: ModeNone}
		}
		return Plan{Remotes: state.RemoteNames(), Mode: ModeNone}
	}

	if state.Upstream == nil {
		return Plan{Remotes: state.RemoteNames(), Mode: ModeNone}
	}

	var remotes []string
	switch {
	case !opts.CurrentRemoteOnly:
		remotes = state.RemoteNames()
	case !state.Upstream.IsLocal() && state.HasRemote(state.Upstream.Remote):
		remotes = []string{state.Upstream.Remote}
	}

	mode, keepMerges := chooseMode(state.RebasePreference, opts)
	return Plan{Remotes: remotes, Mode: mode, KeepMerges: keepMerges}
}

func chooseMode(pref git.Preference, opts Options) (Mode, bool) {
	switch {
	case opts.ForceRebase:
		return ModeRebase, true
	case opts.ForceMerge:
		return ModeMerge, false
	case pref == git.PreferRebase:
		return ModeRebase, false
	case pref == git.PreferRebaseMerges:
		return ModeRebase, true
	default:
		return ModeMerge, false
	}
}

// inferRemote guesses the remote of a detached HEAD: the only remote, else origin.
func inferRemote(state *git.RepoState) []string {
	names := state.RemoteNames()
	if len(names) <= 1 {
		return names
	}
	if state.HasRemote("origin") {
		return []string{"origin"}
	}
	return names
}
