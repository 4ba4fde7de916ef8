package cmd

import (
	"context"
	"fmt"

	"github.com/jayteealao/gitup/internal/discover"
	"github.com/jayteealao/gitup/internal/git"
	"github.com/jayteealao/gitup/internal/report"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [path...]",
	Short: "Show repository state without fetching",
	Long: `Show the branch, working tree, upstream and remotes of each repository.

Paths are resolved the same way as for an update; without paths, the
bookmarked directories are shown. Nothing is fetched, so ahead and behind
counts are against the last fetched upstream.`,
	RunE: runStatusCmd,
}

var statusJSONFlag bool

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSONFlag, "json", false, "output in JSON format")
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	paths := args
	if len(paths) == 0 {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		paths, err = store.BookmarkPaths(ctx)
		if err != nil {
			return fmt.Errorf("failed to load bookmarks: %w", err)
		}
		if len(paths) == 0 {
			fmt.Fprintln(out, "You don't have any repositories bookmarked.")
			return nil
		}
	}

	if err := checkGit(); err != nil {
		return err
	}

	var statuses []report.RepoStatus
	for _, target := range discover.Locate(paths) {
		if err := checkContext(ctx); err != nil {
			return err
		}
		if target.Missing {
			statuses = append(statuses, report.RepoStatus{Path: target.Path, Err: fmt.Errorf("%s", target.Reason)})
			continue
		}
		statuses = append(statuses, repoStatus(ctx, openRepo(target.Path)))
	}

	if statusJSONFlag {
		return report.WriteStatusJSON(out, statuses)
	}
	report.NewPrinter(out).Statuses(statuses)
	return nil
}

// repoStatus inspects one repository and compares it with its upstream.
func repoStatus(ctx context.Context, repo git.GitOperations) report.RepoStatus {
	s := report.RepoStatus{Path: repo.RepoPath()}

	st, err := repo.Inspect(ctx)
	if err != nil {
		s.Err = err
		return s
	}
	s.State = st

	if st.Upstream == nil {
		return s
	}
	// An upstream that was never fetched has no ref to compare with.
	if _, err := repo.ResolveRef(ctx, st.Upstream.Ref); err != nil {
		printVerbose("%s: %v", s.Path, err)
		return s
	}

	ahead, err := repo.CountCommits(ctx, st.Upstream.Ref, "HEAD")
	if err != nil {
		printVerbose("%s: %v", s.Path, err)
		return s
	}
	behind, err := repo.CountCommits(ctx, "HEAD", st.Upstream.Ref)
	if err != nil {
		printVerbose("%s: %v", s.Path, err)
		return s
	}
	s.Ahead, s.Behind, s.Compared = ahead, behind, true
	return s
}
