package cmd

import (
	"fmt"
	"os"

	"github.com/jayteealao/gitup/internal/prompt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale bookmarks and old history",
	Long: `Clean up the bookmark list and the update history.

This command:
1. Removes bookmarks whose directories no longer exist
2. Deletes recorded runs beyond the history.retention setting

Bookmarks are only removed after confirmation unless --yes is given.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

var (
	cleanupDryRunFlag bool
	cleanupYesFlag    bool
)

// Interactive prompts; tests replace them.
var (
	selectPaths   = prompt.SelectPaths
	confirmAction = prompt.ConfirmAction
)

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().BoolVar(&cleanupDryRunFlag, "dry-run", false, "show what would be cleaned without making changes")
	cleanupCmd.Flags().BoolVarP(&cleanupYesFlag, "yes", "y", false, "do not ask for confirmation")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Fprintln(out, "Starting cleanup...")
	if cleanupDryRunFlag {
		fmt.Fprintln(out, "(dry run mode - no changes will be made)")
	}
	fmt.Fprintln(out)

	// 1. Bookmarks whose directory is gone
	fmt.Fprintln(out, "Checking for missing bookmarks...")
	paths, err := store.BookmarkPaths(ctx)
	if err != nil {
		return fmt.Errorf("failed to list bookmarks: %w", err)
	}

	var missing []string
	for _, p := range paths {
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			fmt.Fprintf(out, "  Found missing bookmark: %s\n", p)
			missing = append(missing, p)
		}
	}

	if len(missing) > 0 && !cleanupDryRunFlag {
		remove := missing
		if !cleanupYesFlag {
			remove, err = selectPaths("Remove missing bookmarks?", "Unselect any you want to keep.", missing)
			if err != nil {
				return fmt.Errorf("failed to read selection: %w", err)
			}
		}
		for _, p := range remove {
			if err := store.DeleteBookmark(ctx, p); err != nil {
				fmt.Fprintf(os.Stderr, "    Warning: failed to remove %s: %v\n", p, err)
				continue
			}
			fmt.Fprintf(out, "  Removed bookmark: %s\n", p)
		}
	}
	fmt.Fprintln(out)

	// 2. History beyond retention
	retention := viper.GetInt("history.retention")
	fmt.Fprintf(out, "Pruning history to the last %d runs...\n", retention)
	runs, err := store.ListRuns(ctx, -1)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	excess := len(runs) - retention
	switch {
	case excess <= 0:
		fmt.Fprintln(out, "  Nothing to prune")
	case cleanupDryRunFlag:
		fmt.Fprintf(out, "  Would delete %d runs\n", excess)
	default:
		if !cleanupYesFlag {
			ok, err := confirmAction(fmt.Sprintf("Delete %d old runs?", excess), "Their outcomes are deleted with them.")
			if err != nil {
				return fmt.Errorf("failed to read confirmation: %w", err)
			}
			if !ok {
				fmt.Fprintln(out, "  Skipped")
				break
			}
		}
		pruned, err := store.PruneRuns(ctx, retention)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  Deleted %d runs\n", pruned)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Cleanup complete.")
	return nil
}
