// Package errors provides sentinel errors for gitup operations.
package errors

import "errors"

// Bookmark errors
var (
	// ErrBookmarkNotFound indicates the path is not in the bookmark list.
	ErrBookmarkNotFound = errors.New("bookmark not found")

	// ErrBookmarkExists indicates the path is already bookmarked.
	ErrBookmarkExists = errors.New("bookmark already exists")

	// ErrInvalidBookmarkPath indicates a bookmark path is empty or cannot be resolved.
	ErrInvalidBookmarkPath = errors.New("invalid bookmark path")
)

// Git errors
var (
	// ErrGitNotFound indicates git CLI is not available.
	ErrGitNotFound = errors.New("git command not found")

	// ErrNotGitRepo indicates the path is not a git repository.
	ErrNotGitRepo = errors.New("path is not a git repository")

	// ErrGitRefNotFound indicates the specified git ref does not exist.
	ErrGitRefNotFound = errors.New("git ref not found")

	// ErrGitFetchFailed indicates the git fetch operation failed.
	ErrGitFetchFailed = errors.New("git fetch failed")

	// ErrIntegrationConflict indicates a rebase or merge stopped on conflicting changes.
	ErrIntegrationConflict = errors.New("integration stopped on conflicts")

	// ErrIntegrationFailed indicates a rebase or merge failed for a reason other than conflicts.
	ErrIntegrationFailed = errors.New("integration failed")
)

// Update option errors
var (
	// ErrConflictingModes indicates both forced rebase and forced merge were requested.
	ErrConflictingModes = errors.New("--rebase and --merge are mutually exclusive")

	// ErrJSONWithActions indicates --json was combined with bookmark actions or a second batch.
	ErrJSONWithActions = errors.New("--json reports a single update and cannot be combined with --add, --delete, --list or with both paths and --update")

	// ErrInvalidConcurrency indicates the worker count is below one.
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
)

// Run errors
var (
	// ErrRunNotFound indicates the requested update run does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrAmbiguousRunID indicates a run ID prefix matches more than one run.
	ErrAmbiguousRunID = errors.New("run ID prefix is ambiguous")

	// ErrUpdateLocked indicates another gitup process is updating.
	ErrUpdateLocked = errors.New("another update is in progress")

	// ErrPartialFailure indicates at least one repository did not end in a success outcome.
	ErrPartialFailure = errors.New("some repositories were not updated")
)
