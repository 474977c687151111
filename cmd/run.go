package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/streamchat/streamchat/internal/chat"
	"github.com/streamchat/streamchat/internal/session"
	"github.com/streamchat/streamchat/internal/tui"
)

func newRunCmd() *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send a single prompt non-interactively",
		Example: `  streamchat run -P "explain goroutines in one paragraph"
  streamchat run --prompt "hello" --provider anthropic`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt / -P is required")
			}
			return runOnce(cmd, prompt)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "P", "", "the prompt to send")
	cmd.MarkFlagRequired("prompt")

	return cmd
}

// runOnce sends a single prompt and exits. The conversation is not saved.
func runOnce(cmd *cobra.Command, prompt string) error {
	cfg, err := initConfig(cmd)
	if err != nil {
		return err
	}
	logger, logCloser := openLogger(cfg)
	defer logCloser.Close()

	ui := tui.NewPlainIO()
	runner := chat.New(ui, chat.Info{}, logger.With("component", "chat"))
	core, err := buildCore(cfg, session.NewMemoryStore(), logger, runner.Observe)
	if err != nil {
		return err
	}
	defer core.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			core.Abort()
		case <-ctx.Done():
		}
	}()

	if err := core.Open(ctx); err != nil {
		return err
	}
	return runner.RunOnce(ctx, core, prompt)
}
