package git

import "context"

// GitOperations defines the git operations the updater needs for one repository.
type GitOperations interface {
	RepoPath() string
	Inspect(ctx context.Context) (*RepoState, error)
	Fetch(ctx context.Context, remote string) error
	ResolveRef(ctx context.Context, ref string) (string, error)
	IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error)
	CountCommits(ctx context.Context, from, to string) (int, error)
	FastForward(ctx context.Context, ref string) error
	Rebase(ctx context.Context, upstream string, keepMerges bool) error
	Merge(ctx context.Context, ref string) error
}

// Opener returns the git operations for the repository at path.
type Opener func(path string) GitOperations

// Ensure Manager implements GitOperations
var _ GitOperations = (*Manager)(nil)
