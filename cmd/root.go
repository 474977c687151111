package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/streamchat/streamchat/internal/config"
	"github.com/streamchat/streamchat/internal/logging"
)

var (
	cfgFile      string
	modelFlag    string
	providerFlag string
	limitFlag    int
	profileFlag  string
	useTUI       bool
	debugFlag    bool

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:   "streamchat",
		Short: "Streaming chat with an LLM in the terminal",
		Long: "streamchat is a terminal chat client. Replies stream in as they are generated,\n" +
			"can be cancelled mid-stream, and the conversation is saved between runs.",
		// Running streamchat with no subcommand starts chat mode.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Default TUI on when stdout is a terminal and --tui was not explicitly set.
			if !cmd.Root().PersistentFlags().Changed("tui") && term.IsTerminal(int(os.Stdout.Fd())) {
				useTUI = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/streamchat/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override model")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "override provider")
	rootCmd.PersistentFlags().IntVar(&limitFlag, "limit", 0, "number of prior messages allowed before sends are rejected")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "conversation profile (separate saved history)")
	rootCmd.PersistentFlags().BoolVar(&useTUI, "tui", false, "use bubbletea TUI mode (default: auto-detect terminal)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "write debug-level records to the log file")

	// Subcommands
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// CLI flags override config values
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if cmd.Flags().Changed("limit") {
		cfg.Limit = limitFlag
	}
	if profileFlag != "" {
		cfg.Profile = profileFlag
	}
	if debugFlag {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openLogger opens the log file named by cfg. When the file cannot be opened
// the command still runs, without logs.
func openLogger(cfg *config.Config) (*slog.Logger, io.Closer) {
	logger, closer, err := logging.Open(cfg.Log.Path, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
		return logging.Discard(), io.NopCloser(nil)
	}
	return logger.With("profile", cfg.Profile), closer
}
