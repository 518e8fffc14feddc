package main

import (
	"fmt"

	"github.com/fontkit/font-manager/pkg/fm"
	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Rebuild the font metadata cache from scratch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := manager.Reload(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Cached %d font files\n", report.Added)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Bring the font metadata cache up to date",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := manager.Sync(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(report)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the cache in sync while fonts are added or removed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		debounce, _ := cmd.Flags().GetDuration("debounce")
		if !cmd.Flags().Changed("debounce") {
			debounce = cfg.WatchDebounce.Duration
		}

		fmt.Println("Watching font directories, press Ctrl+C to stop")
		return manager.Watch(cmd.Context(), debounce, func(r *fm.SyncReport) {
			fmt.Println(r)
			updateFontCache()
		})
	},
}

func init() {
	rootCmd.AddCommand(reloadCmd, syncCmd, watchCmd)

	watchCmd.Flags().Duration("debounce", 0, "Delay between a change and the resync (default from config)")
}
