package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jayteealao/gitup/internal/discover"
	apperrors "github.com/jayteealao/gitup/internal/errors"
	"github.com/jayteealao/gitup/internal/lock"
	"github.com/jayteealao/gitup/internal/notify"
	"github.com/jayteealao/gitup/internal/orchestrator"
	"github.com/jayteealao/gitup/internal/report"
	"github.com/jayteealao/gitup/internal/state"
	"github.com/jayteealao/gitup/internal/update"
	"github.com/jayteealao/gitup/internal/validate"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	updateFlag      bool
	currentOnlyFlag bool
	rebaseFlag      bool
	mergeFlag       bool
	addFlag         []string
	deleteFlag      []string
	listFlag        bool
	jsonFlag        bool
)

// lockTimeout is how long an update waits for another gitup process to finish.
var lockTimeout = 2 * time.Second

func registerUpdateFlags() {
	flags := rootCmd.Flags()

	flags.BoolVarP(&updateFlag, "update", "u", false, "update all bookmarks (default if no paths or other actions are given)")
	flags.BoolVarP(&currentOnlyFlag, "current-only", "c", false, "fetch only the remote tracked by the current branch")
	flags.BoolVarP(&rebaseFlag, "rebase", "r", false, "always rebase diverged branches, ignoring pull.rebase")
	flags.BoolVarP(&mergeFlag, "merge", "m", false, "always merge diverged branches, ignoring pull.rebase")
	flags.StringSliceVarP(&addFlag, "add", "a", nil, "add directories to the bookmark list")
	flags.StringSliceVarP(&deleteFlag, "delete", "d", nil, "remove directories from the bookmark list")
	flags.BoolVarP(&listFlag, "list", "l", false, "show the bookmark list")
	flags.BoolVar(&jsonFlag, "json", false, "print the update report as JSON")
	flags.Int("concurrency", orchestrator.DefaultConcurrency, "number of repositories updated at once")
	flags.Duration("fetch-timeout", 2*time.Minute, "time limit for fetching one remote")

	// Notification flags
	flags.String("webhook-url", "", "generic webhook URL notified after each update")
	flags.String("slack-webhook", "", "Slack incoming webhook URL")
	flags.String("slack-channel", "", "Slack channel override")
	flags.String("discord-webhook", "", "Discord webhook URL")

	rootCmd.MarkFlagsMutuallyExclusive("rebase", "merge")

	viper.BindPFlag("concurrency", flags.Lookup("concurrency"))
	viper.BindPFlag("fetch-timeout", flags.Lookup("fetch-timeout"))
	viper.BindPFlag("notify.webhook-url", flags.Lookup("webhook-url"))
	viper.BindPFlag("notify.slack-webhook", flags.Lookup("slack-webhook"))
	viper.BindPFlag("notify.slack-channel", flags.Lookup("slack-channel"))
	viper.BindPFlag("notify.discord-webhook", flags.Lookup("discord-webhook"))
}

// checkJSONActions rejects flag combinations whose output would not be one JSON document.
func checkJSONActions(args []string) error {
	if !jsonFlag {
		return nil
	}
	if len(addFlag) > 0 || len(deleteFlag) > 0 || listFlag || (len(args) > 0 && updateFlag) {
		return apperrors.ErrJSONWithActions
	}
	return nil
}

// updateOptions builds the engine options from flags and configuration.
func updateOptions() (update.Options, error) {
	opts := update.Options{
		CurrentRemoteOnly: currentOnlyFlag,
		ForceRebase:       rebaseFlag,
		ForceMerge:        mergeFlag,
		FetchTimeout:      viper.GetDuration("fetch-timeout"),
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	if err := validate.Concurrency(viper.GetInt("concurrency")); err != nil {
		return opts, err
	}
	return opts, nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	// Contradictory options fail before any repository is touched.
	opts, err := updateOptions()
	if err != nil {
		return err
	}
	if err := checkJSONActions(args); err != nil {
		return err
	}

	printer := report.NewPrinter(out)
	if !jsonFlag {
		printer.Banner()
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	acted := false
	if len(addFlag) > 0 {
		addBookmarks(ctx, out, store, addFlag)
		acted = true
	}
	if len(deleteFlag) > 0 {
		deleteBookmarks(ctx, out, store, deleteFlag)
		acted = true
	}
	if listFlag {
		paths, err := store.BookmarkPaths(ctx)
		if err != nil {
			return fmt.Errorf("failed to list bookmarks: %w", err)
		}
		printer.Bookmarks(paths)
		acted = true
	}

	var failed bool
	if len(args) > 0 {
		r, err := updatePaths(ctx, out, store, args, opts)
		if err != nil {
			return err
		}
		failed = failed || !r.Success()
		acted = true
	}

	if updateFlag || !acted {
		if err := checkContext(ctx); err == nil {
			r, err := updateBookmarks(ctx, out, store, opts)
			if err != nil {
				return err
			}
			failed = failed || (r != nil && !r.Success())
		}
	}

	if failed {
		return apperrors.ErrPartialFailure
	}
	return nil
}

// addBookmarks stores each path, reporting but not failing on bad or known ones.
func addBookmarks(ctx context.Context, w io.Writer, store state.StateStore, paths []string) {
	for _, p := range paths {
		abs, err := validate.BookmarkPath(p)
		if err != nil {
			fmt.Fprintf(w, "Cannot bookmark %s: %v\n", p, err)
			continue
		}
		err = store.AddBookmark(ctx, abs)
		switch {
		case errors.Is(err, apperrors.ErrBookmarkExists):
			fmt.Fprintf(w, "%s is already bookmarked.\n", abs)
		case err != nil:
			fmt.Fprintf(w, "Cannot bookmark %s: %v\n", abs, err)
		default:
			fmt.Fprintf(w, "Added bookmark: %s\n", abs)
		}
	}
}

// deleteBookmarks removes each path. The directory need not exist any more.
func deleteBookmarks(ctx context.Context, w io.Writer, store state.StateStore, paths []string) {
	for _, p := range paths {
		abs, err := validate.ResolvePath(p)
		if err != nil {
			fmt.Fprintf(w, "Cannot remove bookmark %s: %v\n", p, err)
			continue
		}
		err = store.DeleteBookmark(ctx, abs)
		switch {
		case errors.Is(err, apperrors.ErrBookmarkNotFound):
			fmt.Fprintf(w, "%s is not bookmarked.\n", abs)
		case err != nil:
			fmt.Fprintf(w, "Cannot remove bookmark %s: %v\n", abs, err)
		default:
			fmt.Fprintf(w, "Deleted bookmark: %s\n", abs)
		}
	}
}

// updateBookmarks updates every bookmarked directory. It returns a nil
// report when there are no bookmarks.
func updateBookmarks(ctx context.Context, w io.Writer, store state.StateStore, opts update.Options) (*orchestrator.Report, error) {
	paths, err := store.BookmarkPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookmarks: %w", err)
	}
	if len(paths) == 0 {
		if !jsonFlag {
			fmt.Fprintln(w, "You don't have any repositories bookmarked.")
		}
		return nil, nil
	}
	return updatePaths(ctx, w, store, paths, opts)
}

// updatePaths runs one batch over paths, records it and prints its report.
func updatePaths(ctx context.Context, w io.Writer, store state.StateStore, paths []string, opts update.Options) (*orchestrator.Report, error) {
	if err := checkGit(); err != nil {
		return nil, err
	}

	l, err := acquireUpdateLock(ctx, store.DataDir())
	if err != nil {
		return nil, err
	}
	defer l.Release()

	targets := discover.Locate(paths)
	printVerbose("Found %d repositories", len(targets))

	runner := orchestrator.NewRunner(update.NewUpdater(openRepo))
	r, err := runner.Run(ctx, targets, orchestrator.RunOptions{
		Update:      opts,
		Concurrency: viper.GetInt("concurrency"),
		OnOutcome: func(o update.Outcome) {
			printVerbose("Finished %s", o)
		},
		OnVerbose: func(msg string) {
			printVerbose("%s", msg)
		},
	})
	if err != nil {
		return nil, err
	}

	// History and notifications never change the outcome of the run.
	runID := recordRun(context.WithoutCancel(ctx), store, r, opts)
	notifyRun(context.WithoutCancel(ctx), runID, r)

	if jsonFlag {
		if err := report.WriteJSON(w, runID, r); err != nil {
			return nil, fmt.Errorf("failed to write report: %w", err)
		}
		return r, nil
	}

	printer := report.NewPrinter(w)
	for _, o := range r.Outcomes {
		printer.Outcome(o)
	}
	printer.Summary(r)
	if r.Stopped {
		fmt.Fprintln(w, "Stopped by user.")
	}
	return r, nil
}

func acquireUpdateLock(ctx context.Context, dir string) (*lock.Lock, error) {
	lockMgr, err := lock.NewManager(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize lock manager: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	printVerbose("Acquiring update lock...")
	return lockMgr.Acquire(lockCtx, lock.UpdateLock)
}

// runStatus maps a report to the status stored in history.
func runStatus(r *orchestrator.Report) string {
	switch {
	case r.Stopped:
		return state.RunStopped
	case r.Success():
		return state.RunSucceeded
	default:
		return state.RunPartial
	}
}

// recordRun stores the run in history and prunes old runs. Failures are
// reported on stderr; the returned run ID is empty when nothing was stored.
func recordRun(ctx context.Context, store state.StateStore, r *orchestrator.Report, opts update.Options) string {
	finished := r.FinishedAt
	run := &state.Run{
		StartedAt:   r.StartedAt,
		FinishedAt:  &finished,
		CurrentOnly: opts.CurrentRemoteOnly,
		ForceRebase: opts.ForceRebase,
		ForceMerge:  opts.ForceMerge,
		Status:      runStatus(r),
		Total:       len(r.Outcomes),
		Failed:      r.Failed(),
	}

	records := make([]state.OutcomeRecord, len(r.Outcomes))
	for i, o := range r.Outcomes {
		records[i] = state.OutcomeRecord{Path: o.Path, Kind: o.Kind.String(), Detail: o.Detail}
	}

	if err := store.RecordRun(ctx, run, records); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record run: %v\n", err)
		return ""
	}
	printVerbose("Recorded run %s", run.ID)

	if pruned, err := store.PruneRuns(ctx, viper.GetInt("history.retention")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to prune history: %v\n", err)
	} else if pruned > 0 {
		printVerbose("Pruned %d old runs", pruned)
	}

	return run.ID
}

// notifyRun sends the run summary to every configured backend.
func notifyRun(ctx context.Context, runID string, r *orchestrator.Report) {
	manager := notify.NewManagerFromConfig(notifyConfig())
	defer manager.Close()
	if manager.Count() == 0 {
		return
	}

	failures := make(map[string]string)
	for _, o := range r.Outcomes {
		if !o.Kind.IsSuccess() {
			failures[o.Path] = o.Kind.Description()
		}
	}

	printVerbose("Sending notifications to %d backends...", manager.Count())
	if err := manager.Notify(ctx, notify.NewRunEvent(runID, len(r.Outcomes), failures, r.Stopped)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}
