package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/civictech-tv/reelvault-core/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch configured directories and auto-upload qualifying files",
	Long: `Starts the upload engine and one filesystem watcher per configured
watch root. Files matching the include/exclude rules are enqueued
automatically; press Ctrl-C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		if len(rt.cfg.Watch) == 0 {
			return fmt.Errorf("no watch roots configured")
		}

		if err := rt.lifecycle.EnableDefaultRule(ctx); err != nil {
			return err
		}

		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		rt.engine.Start(ctx)
		defer rt.engine.Stop()

		var watchers []*watcher.Watcher
		for _, wc := range rt.cfg.Watch {
			w, err := watcher.New(wc, home, rt.engine, rt.metadata, rt.logger)
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return err
			}
			watchers = append(watchers, w)
			rt.logger.Info("watching", "root", wc.RootPath, "recursive", wc.Recursive)
		}
		defer func() {
			for _, w := range watchers {
				w.Stop()
			}
		}()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case <-ctx.Done():
		case s := <-sig:
			rt.logger.Info("shutting down", "signal", s)
		}
		return nil
	},
}
