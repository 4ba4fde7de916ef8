// Package state provides SQLite-based storage for bookmarks and update history.
package state

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jayteealao/gitup/internal/errors"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/001_initial.sql
var initialMigration string

//go:embed migrations/002_outcome_path_index.sql
var outcomePathIndexMigration string

// Run statuses.
const (
	RunSucceeded = "succeeded"
	RunPartial   = "partial"
	RunStopped   = "stopped"
)

// Store provides state management for gitup using SQLite.
type Store struct {
	db      *sql.DB
	dataDir string
}

// Bookmark is a directory updated when gitup runs without paths.
type Bookmark struct {
	Path      string
	CreatedAt time.Time
}

// Run is one recorded batch update.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  *time.Time
	CurrentOnly bool
	ForceRebase bool
	ForceMerge  bool
	Status      string
	Total       int
	Failed      int
}

// OutcomeRecord is the stored result for one repository of a run.
type OutcomeRecord struct {
	RunID    string
	Position int
	Path     string
	Kind     string
	Detail   string
}

// RepoOutcome is an outcome together with the time of its run.
type RepoOutcome struct {
	OutcomeRecord
	StartedAt time.Time
}

// New creates a new Store with the given data directory.
// The database file will be created at <dataDir>/gitup.db.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "gitup.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't handle concurrent writes well
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{
		db:      db,
		dataDir: dataDir,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DataDir returns the data directory path.
func (s *Store) DataDir() string {
	return s.dataDir
}

// migrate runs database migrations.
func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// Table doesn't exist yet
		version = 0
	}

	if version < 1 {
		if _, err := s.db.Exec(initialMigration); err != nil {
			return fmt.Errorf("failed to run initial migration: %w", err)
		}
	}

	if version < 2 {
		if _, err := s.db.Exec(outcomePathIndexMigration); err != nil {
			return fmt.Errorf("failed to run outcome path index migration: %w", err)
		}
	}

	return nil
}

// --- Bookmark Operations ---

// AddBookmark stores path as a bookmark. The caller resolves it to an absolute path.
func (s *Store) AddBookmark(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO bookmarks (path) VALUES (?)`, path)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.ErrBookmarkExists
		}
		return fmt.Errorf("failed to add bookmark: %w", err)
	}
	return nil
}

// DeleteBookmark removes a bookmark. The directory itself is left alone.
func (s *Store) DeleteBookmark(ctx context.Context, path string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.ErrBookmarkNotFound
	}
	return nil
}

// ListBookmarks returns bookmarks in the order they were added.
func (s *Store) ListBookmarks(ctx context.Context) ([]Bookmark, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, created_at FROM bookmarks ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	defer rows.Close()

	var bookmarks []Bookmark
	for rows.Next() {
		var b Bookmark
		if err := rows.Scan(&b.Path, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		bookmarks = append(bookmarks, b)
	}

	return bookmarks, rows.Err()
}

// BookmarkPaths returns just the bookmarked paths, in order.
func (s *Store) BookmarkPaths(ctx context.Context) ([]string, error) {
	bookmarks, err := s.ListBookmarks(ctx)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(bookmarks))
	for i, b := range bookmarks {
		paths[i] = b.Path
	}
	return paths, nil
}

// --- Run Operations ---

// RecordRun stores a finished run and its outcomes in one transaction.
func (s *Store) RecordRun(ctx context.Context, run *Run, outcomes []OutcomeRecord) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var finishedAt sql.NullTime
	if run.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, current_only, force_rebase, force_merge, status, total, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.StartedAt.UTC(), finishedAt, run.CurrentOnly, run.ForceRebase, run.ForceMerge,
		run.Status, run.Total, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_outcomes (run_id, position, path, kind, detail) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for i := range outcomes {
		o := &outcomes[i]
		o.RunID = run.ID
		o.Position = i
		if _, err := stmt.ExecContext(ctx, o.RunID, o.Position, o.Path, o.Kind, nullString(o.Detail)); err != nil {
			return fmt.Errorf("failed to record outcome for %s: %w", o.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, current_only, force_rebase, force_merge, status, total, failed`

func scanRun(scanner interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	var finishedAt sql.NullTime
	if err := scanner.Scan(
		&r.ID, &r.StartedAt, &finishedAt, &r.CurrentOnly, &r.ForceRebase, &r.ForceMerge,
		&r.Status, &r.Total, &r.Failed,
	); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	return &r, nil
}

// ListRuns returns runs, most recent first. A negative limit returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// GetRun retrieves a run by ID or unambiguous ID prefix.
func (s *Store) GetRun(ctx context.Context, idPrefix string) (*Run, error) {
	if idPrefix == "" {
		return nil, errors.ErrRunNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE substr(id, 1, ?) = ? LIMIT 2`,
		len(idPrefix), idPrefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, errors.ErrRunNotFound
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", errors.ErrAmbiguousRunID, idPrefix)
	}
}

// ListRunOutcomes returns a run's outcomes in discovery order.
func (s *Store) ListRunOutcomes(ctx context.Context, runID string) ([]OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, position, path, kind, detail
		FROM run_outcomes WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []OutcomeRecord
	for rows.Next() {
		var o OutcomeRecord
		var detail sql.NullString
		if err := rows.Scan(&o.RunID, &o.Position, &o.Path, &o.Kind, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Detail = detail.String
		outcomes = append(outcomes, o)
	}

	return outcomes, rows.Err()
}

// ListRepoOutcomes returns the recorded outcomes of one repository, most recent first.
func (s *Store) ListRepoOutcomes(ctx context.Context, path string, limit int) ([]RepoOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.run_id, o.position, o.path, o.kind, o.detail, r.started_at
		FROM run_outcomes o JOIN runs r ON r.id = o.run_id
		WHERE o.path = ?
		ORDER BY r.started_at DESC LIMIT ?
	`, path, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list repository outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []RepoOutcome
	for rows.Next() {
		var o RepoOutcome
		var detail sql.NullString
		if err := rows.Scan(&o.RunID, &o.Position, &o.Path, &o.Kind, &detail, &o.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Detail = detail.String
		outcomes = append(outcomes, o)
	}

	return outcomes, rows.Err()
}

// PruneRuns deletes all but the keep most recent runs and returns how many were removed.
func (s *Store) PruneRuns(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
