package cmd

import (
	"portforge/config"

	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [export PATH | --file PATH]",
	Short: "Watch an in-progress build in real time",
	Long:  `Poll the build database for the active run and display live statistics, or export a snapshot to a monitor.dat-compatible file.`,
	Run:   runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) {
	cfg := config.GetConfig()
	if err := DoMonitor(cfg, args); err != nil {
		fatal("monitor failed: %v", err)
	}
}
