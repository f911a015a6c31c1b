package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pagewatch/internal/store"
	"pagewatch/internal/ui"
)

var dismissCmd = &cobra.Command{
	Use:   "dismiss <change-id>...",
	Short: "Dismiss pending external changes",
	Long: `Mark one or more pending changes as dismissed.

Dismissed changes no longer appear in 'pw status'. Events still queued in
a running watch daemon are unaffected.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		for _, id := range args {
			if err := db.DismissChange(id); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					fmt.Printf("%s Unknown change id %s\n", ui.RenderFail("✗"), id)
					continue
				}
				fatal("%v", err)
			}
			fmt.Printf("%s Dismissed %s\n", ui.RenderPass("✓"), id)
		}
	},
}
