package cmd

import (
	"fmt"

	"portforge/config"
	"portforge/service"
	"portforge/util"

	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:     "configure",
	Aliases: []string{"init"},
	Short:   "Initialize directories, template, and database",
	Long:  `Create the build base layout, the chroot template, and the build database, migrating legacy CRC data if present.`,
	Run:   runConfigure,
}

func runConfigure(cmd *cobra.Command, args []string) {
	cfg := config.GetConfig()

	svc, err := service.NewService(cfg)
	if err != nil {
		fatal("failed to initialize service: %v", err)
	}
	defer svc.Close()

	autoMigrate := cfg.Migration.AutoMigrate
	if !autoMigrate && svc.NeedsMigration() {
		autoMigrate = cfg.YesAll || util.AskYN("Legacy CRC data found. Migrate it now?", true)
	}

	result, err := svc.Initialize(service.InitOptions{AutoMigrate: autoMigrate})
	if err != nil {
		fatal("configuration failed: %v", err)
	}

	fmt.Printf("Created %d directories\n", len(result.DirsCreated))
	if result.TemplateCreated {
		fmt.Println("Template directory ready")
	}
	if result.DatabaseInitalized {
		fmt.Println("Build database initialized")
	}
	if result.MigrationPerformed {
		fmt.Println("Legacy CRC data migrated")
	}
	fmt.Printf("Found %d entries under the ports tree\n", result.PortsFound)
	for _, w := range result.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}
