package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jayteealao/gitup/internal/tui"
	"github.com/spf13/cobra"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse update history interactively",
	Long: `Launch an interactive terminal browser for past update runs.

Navigation:
  ↑/↓     Select a run
  Enter   Show the outcome of every repository in the run
  Esc     Go back
  r       Refresh
  q       Quit`,
	Args: cobra.NoArgs,
	RunE: runBrowse,
}

var browseRefreshFlag time.Duration

func init() {
	rootCmd.AddCommand(browseCmd)

	browseCmd.Flags().DurationVar(&browseRefreshFlag, "refresh", 5*time.Second, "refresh interval")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	model := tui.NewModel(cmd.Context(), store, browseRefreshFlag)

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	return nil
}
