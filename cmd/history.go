package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/streamchat/streamchat/internal/session"
	"github.com/streamchat/streamchat/internal/tui"
)

const historyTimeout = 10 * time.Second

func newHistoryCmd() *cobra.Command {
	var clearFlag, listFlag bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print, list or purge saved conversations",
		Example: `  streamchat history
  streamchat history --profile work --clear
  streamchat history --list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initConfig(cmd)
			if err != nil {
				return err
			}
			store, err := buildStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
			defer cancel()

			switch {
			case clearFlag:
				if err := store.Clear(ctx); err != nil {
					return fmt.Errorf("clear history: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared history for profile %q.\n", cfg.Profile)
				return nil
			case listFlag:
				return printProfiles(ctx, cmd, store)
			default:
				msgs, err := store.Load(ctx)
				if err != nil {
					return fmt.Errorf("load history: %w", err)
				}
				printTranscript(cmd, cfg.Profile, msgs)
				return nil
			}
		},
	}

	cmd.Flags().BoolVar(&clearFlag, "clear", false, "delete the saved conversation of the profile")
	cmd.Flags().BoolVar(&listFlag, "list", false, "list every saved profile (sqlite and file stores)")
	cmd.MarkFlagsMutuallyExclusive("clear", "list")

	return cmd
}

func printTranscript(cmd *cobra.Command, profile string, msgs []session.Message) {
	out := cmd.OutOrStdout()
	if len(msgs) == 0 {
		fmt.Fprintf(out, "No saved history for profile %q.\n", profile)
		return
	}
	fmt.Fprintf(out, "Profile %q (%d messages):\n", profile, len(msgs))
	for _, m := range msgs {
		fmt.Fprintf(out, "\n[%s] %s\n%s\n",
			m.Timestamp.Local().Format("2006-01-02 15:04:05"),
			strings.ToUpper(string(m.Role)),
			m.Content)
	}
}

func printProfiles(ctx context.Context, cmd *cobra.Command, store session.Store) error {
	lister, ok := store.(session.Lister)
	if !ok {
		return fmt.Errorf("this store cannot list profiles")
	}
	infos, err := lister.List(ctx)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No saved conversations.")
		return nil
	}
	fmt.Fprintf(out, "Saved conversations (%d):\n", len(infos))
	for _, info := range infos {
		fmt.Fprintf(out, "  %s  %s  %d msgs\n",
			tui.Preview(info.Profile, 24),
			info.UpdatedAt.Local().Format("2006-01-02 15:04"),
			info.Messages)
	}
	return nil
}
