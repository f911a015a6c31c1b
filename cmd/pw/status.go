package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pagewatch/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending external changes",
	Long: `List non-dismissed external changes, most recent per path.

Example usage:
  pw status
  pw status --purge   # also delete dismissed entries`,
	Run: func(cmd *cobra.Command, args []string) {
		purge, _ := cmd.Flags().GetBool("purge")

		_, db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		if purge {
			n, err := db.PurgeDismissed()
			if err != nil {
				fatal("%v", err)
			}
			fmt.Printf("%s Purged %d dismissed change(s)\n", ui.RenderPass("✓"), n)
		}

		changes, err := db.PendingChanges()
		if err != nil {
			fatal("%v", err)
		}

		if len(changes) == 0 {
			fmt.Printf("%s No pending external changes\n", ui.RenderPass("✓"))
			return
		}

		fmt.Printf("%s %d pending change(s):\n", ui.RenderWarn("!"), len(changes))
		for _, ch := range changes {
			marker := ui.RenderWarn("•")
			if ch.Type == "unlink" || ch.Type == "error" {
				marker = ui.RenderFail("•")
			}
			fmt.Printf("  %s %s  %s  %s  %s\n",
				marker, ch.Timestamp.Format(time.RFC3339), ch.Type, ch.Path,
				ui.RenderDim(ch.ID))
		}
	},
}

func init() {
	statusCmd.Flags().Bool("purge", false, "delete dismissed changes")
}
