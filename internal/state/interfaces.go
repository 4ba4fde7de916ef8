package state

import "context"

// StateStore defines the interface for state storage operations.
type StateStore interface {
	Close() error
	DataDir() string

	// Bookmark operations
	AddBookmark(ctx context.Context, path string) error
	DeleteBookmark(ctx context.Context, path string) error
	ListBookmarks(ctx context.Context) ([]Bookmark, error)
	BookmarkPaths(ctx context.Context) ([]string, error)

	// Run operations
	RecordRun(ctx context.Context, run *Run, outcomes []OutcomeRecord) error
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	GetRun(ctx context.Context, idPrefix string) (*Run, error)
	ListRunOutcomes(ctx context.Context, runID string) ([]OutcomeRecord, error)
	ListRepoOutcomes(ctx context.Context, path string, limit int) ([]RepoOutcome, error)
	PruneRuns(ctx context.Context, keep int) (int, error)
}

// Ensure Store implements StateStore
var _ StateStore = (*Store)(nil)
