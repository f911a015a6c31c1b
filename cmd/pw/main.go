// Command pw is the pagewatch CLI: it watches documents for external
// changes, reports pending changes, and manages reconciliation settings.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pagewatch/internal/config"
	"pagewatch/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "pw",
	Short: "External change reconciliation for documents",
	Long: `pagewatch watches document files for external modifications and
reconciles them against unsaved in-editor edits.

It keeps a structural snapshot of every watched document (page hashes,
rotations, sizes, annotation counts) and classifies what changed when the
file on disk is touched by another process.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(dismissCmd)
	rootCmd.AddCommand(settingsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore loads the configuration and opens the store, creating the
// schema if needed.
func openStore() (*config.Config, *store.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, nil, err
	}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return cfg, db, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
