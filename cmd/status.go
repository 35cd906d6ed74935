package cmd

import (
	"fmt"

	"portforge/config"
	"portforge/service"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [ports...]",
	Short: "Show build status",
	Long:  `Show build database statistics, or per-port build status when ports are given.`,
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := config.GetConfig()

	svc, err := service.NewService(cfg)
	if err != nil {
		fatal("failed to initialize service: %v", err)
	}
	defer svc.Close()

	result, err := svc.GetStatus(service.StatusOptions{PortList: args})
	if err != nil {
		fatal("failed to get status: %v", err)
	}

	if len(args) == 0 {
		fmt.Printf("Build database: %s\n", cfg.Database.Path)
		fmt.Printf("  Size: %d bytes\n", result.DatabaseSize)
		if result.Stats != nil {
			fmt.Printf("  Total builds recorded: %d\n", result.Stats.TotalBuilds)
		}
		return
	}

	for _, p := range result.Ports {
		if p.LastBuild == nil {
			fmt.Printf("%-40s never built\n", p.PortDir)
			continue
		}
		fmt.Printf("%-40s %-12s last built %s\n", p.PortDir, p.Version, p.LastBuild.EndTime)
	}
}
