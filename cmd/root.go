// Package cmd provides CLI commands for gitup.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	apperrors "github.com/jayteealao/gitup/internal/errors"
	"github.com/jayteealao/gitup/internal/git"
	"github.com/jayteealao/gitup/internal/notify"
	"github.com/jayteealao/gitup/internal/orchestrator"
	"github.com/jayteealao/gitup/internal/state"
	"github.com/jayteealao/gitup/internal/validate"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is the current version of gitup.
// Can be overridden at build time: go build -ldflags "-X github.com/jayteealao/gitup/cmd.Version=v1.0.0"
var Version = "v0.6.0"

var (
	cfgFile string
	dataDir string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gitup [path...]",
	Short: "Easily update multiple git repositories at once",
	Long: `gitup fetches and integrates the upstream of many git repositories in one go.

Each path is updated if it is a repository, or every repository directly
inside it is updated if it is not. Without paths, bookmarked directories
are updated. Branches that track an upstream are fast-forwarded when
possible, otherwise rebased or merged following pull.rebase and
branch.<name>.rebase. Repositories with uncommitted changes, a detached
HEAD or no upstream are reported and left alone.

Both relative and absolute paths are accepted by all arguments.`,
	Version:       Version,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first signal stops new repositories from starting; a second one exits.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		printVerbose("Received signal %v, finishing repositories in progress...", sig)
		cancel()
		<-sigCh
		os.Exit(130)
	}()

	os.Exit(exitCode(rootCmd.ExecuteContext(ctx)))
}

// exitCode prints err, unless it is a partial failure already shown in the
// report, and maps it to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if !errors.Is(err, apperrors.ErrPartialFailure) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return 1
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.SetVersionTemplate("gitup version {{.Version}}\n")

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gitup/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default is $HOME/.gitup)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Bind flags to viper
	viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	viper.SetDefault("concurrency", orchestrator.DefaultConcurrency)
	viper.SetDefault("fetch-timeout", 2*time.Minute)
	viper.SetDefault("history.retention", 50)

	registerUpdateFlags()
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		configDir := filepath.Join(home, ".gitup")
		viper.AddConfigPath(configDir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// GITUP_NOTIFY_SLACK_WEBHOOK sets notify.slack-webhook
	viper.SetEnvPrefix("GITUP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// getDataDir returns the data directory, defaulting to $HOME/.gitup
func getDataDir() (string, error) {
	if dataDir != "" {
		return dataDir, nil
	}
	if d := viper.GetString("data-dir"); d != "" {
		return d, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".gitup"), nil
}

// openStore opens the bookmark and history store. Tests replace it.
var openStore = func() (state.StateStore, error) {
	return initStore()
}

// openRepo opens a repository for the updater. Tests replace it.
var openRepo git.Opener = func(path string) git.GitOperations {
	m := git.NewManager(path)
	if isVerbose() {
		m = m.WithTrace(func(msg string) { printVerbose("  %s", msg) })
	}
	return m
}

// checkGit fails early when git is not installed. Tests replace it.
var checkGit = git.CheckInstalled

// initStore initializes and returns the state store.
func initStore() (*state.Store, error) {
	dir, err := getDataDir()
	if err != nil {
		return nil, err
	}

	store, err := state.New(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	return store, nil
}

// notifyConfig collects notification endpoints from flags, env and config.
// Invalid URLs are reported and skipped.
func notifyConfig() notify.Config {
	cfg := notify.Config{
		WebhookURL:     viper.GetString("notify.webhook-url"),
		SlackWebhook:   viper.GetString("notify.slack-webhook"),
		SlackChannel:   viper.GetString("notify.slack-channel"),
		DiscordWebhook: viper.GetString("notify.discord-webhook"),
	}
	for name, u := range map[string]*string{
		"webhook-url":     &cfg.WebhookURL,
		"slack-webhook":   &cfg.SlackWebhook,
		"discord-webhook": &cfg.DiscordWebhook,
	} {
		if *u == "" {
			continue
		}
		if err := validate.WebhookURL(*u); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: ignoring notify.%s: %v\n", name, err)
			*u = ""
		}
	}
	return cfg
}

// isVerbose returns true if verbose output is enabled.
func isVerbose() bool {
	return verbose || viper.GetBool("verbose")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if isVerbose() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// checkContext returns an error if the context is cancelled.
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
