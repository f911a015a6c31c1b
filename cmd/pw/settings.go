package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pagewatch/internal/ui"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change reconciliation settings",
	Long: `Show or change the settings the reconciler consults per pass.

With --auto-reload, external changes are resolved automatically using the
default strategy instead of being surfaced as conflicts.

Example usage:
  pw settings
  pw settings --auto-reload --strategy merge-prefer-local
  pw settings --auto-reload=false`,
	Run: func(cmd *cobra.Command, args []string) {
		_, db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		s, err := db.LoadSettings()
		if err != nil {
			fatal("%v", err)
		}

		changed := false
		if cmd.Flags().Changed("auto-reload") {
			s.AutoReload, _ = cmd.Flags().GetBool("auto-reload")
			changed = true
		}
		if cmd.Flags().Changed("notifications") {
			s.ShowNotifications, _ = cmd.Flags().GetBool("notifications")
			changed = true
		}
		if cmd.Flags().Changed("style") {
			s.NotificationStyle, _ = cmd.Flags().GetString("style")
			changed = true
		}
		if cmd.Flags().Changed("strategy") {
			s.DefaultStrategy, _ = cmd.Flags().GetString("strategy")
			changed = true
		}

		if changed {
			if err := db.SaveSettings(s); err != nil {
				fatal("%v", err)
			}
			fmt.Printf("%s Settings updated\n", ui.RenderPass("✓"))
		}

		fmt.Printf("auto-reload:        %v\n", s.AutoReload)
		fmt.Printf("notifications:      %v\n", s.ShowNotifications)
		fmt.Printf("notification style: %s\n", s.NotificationStyle)
		fmt.Printf("default strategy:   %s\n", s.DefaultStrategy)
	},
}

func init() {
	settingsCmd.Flags().Bool("auto-reload", false, "resolve external changes automatically")
	settingsCmd.Flags().Bool("notifications", true, "surface change notifications")
	settingsCmd.Flags().String("style", "banner", "notification style (banner, toast, silent)")
	settingsCmd.Flags().String("strategy", "merge-prefer-local", "default resolution strategy")
}
