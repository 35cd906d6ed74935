package cmd

import (
	"fmt"

	"portforge/config"
	"portforge/service"

	"github.com/spf13/cobra"
)

var flagCleanupForce bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale worker directories and mounts",
	Long:  `Scan the build base for leftover worker directories, unmount any active mounts, and remove them.`,
	Run:   runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVarP(&flagCleanupForce, "force", "f", false, "Clean up even if mounts appear busy")
}

func runCleanup(cmd *cobra.Command, args []string) {
	cfg := config.GetConfig()

	svc, err := service.NewService(cfg)
	if err != nil {
		fatal("failed to initialize service: %v", err)
	}
	defer svc.Close()

	result, err := svc.Cleanup(service.CleanupOptions{Force: flagCleanupForce})
	if err != nil {
		fatal("cleanup failed: %v", err)
	}

	fmt.Printf("Cleaned up %d worker directories\n", result.WorkersCleaned)
	for _, e := range result.Errors {
		fmt.Printf("  warning: %v\n", e)
	}
}
