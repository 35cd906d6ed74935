package cmd

import (
	"fmt"

	"portforge/config"
	"portforge/pkg"
	"portforge/service"
	"portforge/util"

	"github.com/spf13/cobra"
)

var rebuildRepositoryCmd = &cobra.Command{
	Use:   "rebuild-repository [ports...]",
	Short: "Regenerate the package repository catalog",
	Long: `Purge stale *.new artifacts, run pkg repo to regenerate the catalog,
recompress the repo meta files if the configured package suffix differs from
.txz, and invalidate CRC entries for any of the given ports whose source has
drifted since their last build.`,
	Run: runRebuildRepository,
}

var purgeDistfilesCmd = &cobra.Command{
	Use:   "purge-distfiles [ports...]",
	Short: "Remove distfiles no longer referenced by any port",
	Long:  `Scan the distfiles directory and remove files not referenced by any port in the given list.`,
	Run:   runPurgeDistfiles,
}

func runRebuildRepository(cmd *cobra.Command, args []string) {
	cfg := config.GetConfig()

	svc, err := service.NewService(cfg)
	if err != nil {
		fatal("failed to initialize service: %v", err)
	}
	defer svc.Close()

	pkgs, err := resolvePackagesOrEmpty(svc, args)
	if err != nil {
		fatal("failed to resolve packages: %v", err)
	}

	result, err := svc.RebuildRepository(service.RebuildRepositoryOptions{Packages: pkgs})
	if err != nil {
		fatal("rebuild-repository failed: %v", err)
	}

	fmt.Printf("Removed %d stale .new files\n", result.StaleNewRemoved)
	if len(result.Recompressed) > 0 {
		fmt.Printf("Recompressed: %v\n", result.Recompressed)
	}
	if len(result.InvalidatedCRCs) > 0 {
		fmt.Printf("Invalidated CRC for: %v\n", result.InvalidatedCRCs)
	}
	if len(result.DeletedArtifacts) > 0 {
		fmt.Printf("Deleted stale artifacts: %v\n", result.DeletedArtifacts)
	}
	if len(result.SkippedDeletions) > 0 {
		fmt.Printf("Stale artifacts left in place (set override_pkg_delete_opt to remove): %v\n", result.SkippedDeletions)
	}
}

func runPurgeDistfiles(cmd *cobra.Command, args []string) {
	cfg := config.GetConfig()

	svc, err := service.NewService(cfg)
	if err != nil {
		fatal("failed to initialize service: %v", err)
	}
	defer svc.Close()

	pkgs, err := resolvePackagesOrEmpty(svc, args)
	if err != nil {
		fatal("failed to resolve packages: %v", err)
	}

	plan, err := svc.PlanDistfilePurge(service.PurgeDistfilesOptions{Packages: pkgs})
	if err != nil {
		fatal("failed to scan distfiles: %v", err)
	}

	fmt.Printf("Scanned %d distfiles, %d unreferenced\n", plan.TotalScanned, len(plan.Obsolete))
	for _, f := range plan.Obsolete {
		fmt.Printf("  %s\n", f)
	}

	if len(plan.Obsolete) == 0 {
		return
	}

	if !cfg.YesAll && !util.AskYN(fmt.Sprintf("Delete %d unreferenced distfiles?", len(plan.Obsolete)), false) {
		fmt.Println("Purge cancelled")
		return
	}

	deleted, err := svc.ExecuteDistfilePurge(plan)
	if err != nil {
		fatal("purge-distfiles failed: %v", err)
	}
	fmt.Printf("Deleted %d distfiles\n", deleted)
}

// resolvePackagesOrEmpty resolves the given port list into a package graph,
// or returns nil when no ports were specified (CRC invalidation and distfile
// reference marking are simply skipped in that case).
func resolvePackagesOrEmpty(svc *service.Service, portList []string) ([]*pkg.Package, error) {
	if len(portList) == 0 {
		return nil, nil
	}
	return svc.ResolvePackages(portList)
}
