package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pagewatch/internal/document"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <file>",
	Short: "Print the structural snapshot of a document",
	Long: `Capture and print a document's structural snapshot as JSON.

The snapshot contains page content hashes, rotations, sizes, annotation
counts and document metadata; it is the same fingerprint the watch daemon
compares across reloads.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		snap, err := document.Capture(args[0])
		if err != nil {
			fatal("%v", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			fatal("%v", err)
		}
		fmt.Fprintf(os.Stderr, "%d page(s), %d form field(s)\n", snap.PageCount, snap.FormFieldCount)
	},
}
