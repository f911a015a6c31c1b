package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pagewatch/internal/config"
	"pagewatch/internal/notify"
	"pagewatch/internal/reconcile"
	"pagewatch/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch <file>...",
	Short: "Watch documents for external changes",
	Long: `Watch one or more document files and reconcile external changes.

Raw filesystem events are coalesced into batches; each batch triggers a
reconciliation pass that snapshots the document, classifies what changed,
and records a pending change in the store.

Example usage:
  pw watch report.pdf                  # Watch one document
  pw watch --active report.pdf *.pdf   # Deletion of report.pdf jumps the queue
  pw watch --dashboard report.pdf      # Also broadcast events over WebSocket`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		activePath, _ := cmd.Flags().GetString("active")
		dashboard, _ := cmd.Flags().GetBool("dashboard")

		cfg, db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		logger := config.NewLogger(cfg, "[pagewatch] ")

		var notifier reconcile.Notifier
		if dashboard || cfg.Notify.Enabled {
			server := notify.NewServer(&notify.Config{
				Port:   cfg.Notify.Port,
				Logger: log.New(logger.Writer(), "[notify] ", log.LstdFlags),
			})
			if err := server.Start(); err != nil {
				fatal("failed to start notification server: %v", err)
			}
			defer server.Stop()
			notifier = server
			fmt.Printf("%s Notifications on ws://localhost:%d/ws\n", ui.RenderAccent("→"), cfg.Notify.Port)
		}

		rec, err := reconcile.New(&reconcile.Config{
			Store:      db,
			WatchPaths: args,
			ActivePath: activePath,
			BatchDelay: time.Duration(cfg.BatchDelayMs) * time.Millisecond,
			Notifier:   notifier,
			Logger:     logger,
		})
		if err != nil {
			fatal("%v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		fmt.Printf("%s Watching %d document(s). Press Ctrl+C to stop.\n",
			ui.RenderPass("✓"), len(args))

		if err := rec.Run(ctx); err != nil {
			fatal("%v", err)
		}
	},
}

func init() {
	watchCmd.Flags().String("active", "", "path of the currently open document (its deletion is delivered first)")
	watchCmd.Flags().Bool("dashboard", false, "broadcast events over WebSocket")
}
