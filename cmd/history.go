package cmd

import (
	"errors"
	"fmt"

	apperrors "github.com/jayteealao/gitup/internal/errors"
	"github.com/jayteealao/gitup/internal/report"
	"github.com/jayteealao/gitup/internal/validate"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show update history",
	Long: `Show recent update runs, newest first.

With a run ID, shows the outcome of every repository in that run. Any
unambiguous prefix of the ID is accepted. With --repo, shows what happened
to one repository across runs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var (
	historyLimitFlag int
	historyJSONFlag  bool
	historyRepoFlag  string
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "number of runs to show")
	historyCmd.Flags().BoolVar(&historyJSONFlag, "json", false, "output in JSON format")
	historyCmd.Flags().StringVar(&historyRepoFlag, "repo", "", "show the history of one repository")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if historyRepoFlag != "" {
		if len(args) == 1 {
			return fmt.Errorf("--repo cannot be combined with a run ID")
		}
		path, err := validate.ResolvePath(historyRepoFlag)
		if err != nil {
			return err
		}
		outcomes, err := store.ListRepoOutcomes(ctx, path, historyLimitFlag)
		if err != nil {
			return fmt.Errorf("failed to list outcomes: %w", err)
		}
		if historyJSONFlag {
			return report.WriteRepoOutcomesJSON(out, outcomes)
		}
		report.NewPrinter(out).RepoOutcomes(path, outcomes)
		return nil
	}

	if len(args) == 1 {
		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			if errors.Is(err, apperrors.ErrRunNotFound) {
				return fmt.Errorf("run %q not found", args[0])
			}
			return err
		}
		outcomes, err := store.ListRunOutcomes(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to list outcomes: %w", err)
		}
		if historyJSONFlag {
			return report.WriteRunOutcomesJSON(out, run, outcomes)
		}
		report.NewPrinter(out).RunOutcomes(run, outcomes)
		return nil
	}

	runs, err := store.ListRuns(ctx, historyLimitFlag)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if historyJSONFlag {
		return report.WriteRunsJSON(out, runs)
	}
	report.NewPrinter(out).Runs(runs)
	return nil
}
