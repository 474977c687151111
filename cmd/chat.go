package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/streamchat/streamchat/internal/chat"
	"github.com/streamchat/streamchat/internal/config"
	"github.com/streamchat/streamchat/internal/session"
	"github.com/streamchat/streamchat/internal/tui"
)

// runChat starts the interactive chat (REPL) mode.
func runChat(cmd *cobra.Command) error {
	cfg, err := initConfig(cmd)
	if err != nil {
		return err
	}
	logger, logCloser := openLogger(cfg)
	defer logCloser.Close()

	info := chat.Info{
		Provider:   cfg.Provider,
		Model:      modelLabel(cfg),
		Profile:    cfg.Profile,
		Store:      cfg.Store.Driver,
		ConfigPath: configPathLabel(),
	}
	logger.Info("chat starting", "provider", info.Provider, "model", info.Model, "store", info.Store, "tui", useTUI)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if useTUI {
		tuiCfg := tui.TUIConfig{
			Provider: info.Provider,
			Model:    info.Model,
			Profile:  info.Profile,
		}
		// Esc cancels a reply inside the TUI; SIGTERM ends the loop.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()

		return tui.RunTUI(tuiCfg, func(ui tui.IO) error {
			return interactive(ctx, cfg, ui, info, logger, false)
		})
	}

	return interactive(ctx, cfg, tui.NewPlainIO(), info, logger, true)
}

// interactive builds the core for ui and runs the chat loop until the user
// quits. With handleSignals, Ctrl-C cancels a streaming reply and otherwise
// exits.
func interactive(ctx context.Context, cfg *config.Config, ui tui.IO, info chat.Info, logger *slog.Logger, handleSignals bool) error {
	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	runner := chat.New(ui, info, logger.With("component", "chat"))
	core, err := buildCore(cfg, store, logger, runner.Observe)
	if err != nil {
		return err
	}
	defer core.Close()

	if handleSignals {
		stop := watchInterrupts(core, logger)
		defer stop()
	}

	if err := core.Restore(ctx); err != nil {
		return err
	}
	// An init failure is already in the transcript; the loop still runs so
	// the user can read it and quit.
	if err := core.Initialize(ctx); err != nil {
		logger.Warn("completion client unavailable", "error", err)
	}

	err = runner.Run(ctx, core)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchInterrupts turns SIGINT into Abort while a reply streams. Otherwise
// SIGINT or SIGTERM closes the core, which flushes the snapshot, and exits:
// the loop is blocked reading stdin and cannot observe a cancelled context.
func watchInterrupts(core *session.Core, logger *slog.Logger) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-sigCh:
				if sig == syscall.SIGINT && core.Abort() {
					continue
				}
				logger.Info("interrupted, exiting", "signal", sig.String())
				if err := core.Close(); err != nil {
					logger.Warn("close session", "error", err)
				}
				os.Exit(130)
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func configPathLabel() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}
