package cmd

import (
	"fmt"
	"os"

	"portforge/config"
	"portforge/service"
	"portforge/util"

	"github.com/spf13/cobra"
)

var justBuildCmd = &cobra.Command{
	Use:   "just-build [ports...]",
	Short: "Build packages without installing them into the repository",
	Run:   func(cmd *cobra.Command, args []string) { runBuildVariant(args, service.BuildOptions{JustBuild: true}) },
}

var installCmd = &cobra.Command{
	Use:   "install [ports...]",
	Short: "Build packages and install them on the host",
	Run:   func(cmd *cobra.Command, args []string) { runBuildVariant(args, service.BuildOptions{}) },
}

var forceCmd = &cobra.Command{
	Use:   "force [ports...]",
	Short: "Force a rebuild, ignoring CRC-based up-to-date checks",
	Run:   func(cmd *cobra.Command, args []string) { runBuildVariant(args, service.BuildOptions{Force: true}) },
}

var testCmd = &cobra.Command{
	Use:   "test [ports...]",
	Short: "Build packages with the port's test target enabled",
	Run:   func(cmd *cobra.Command, args []string) { runBuildVariant(args, service.BuildOptions{TestMode: true}) },
}

// runBuildVariant drives the service-layer Build() for the just-build,
// install, force, and test directives. Unlike the legacy `build` command
// (runBuild, in build.go, wired directly against pkg/build for historical
// reasons), these newer directives go through service.Build so they pick up
// migration detection and the optional Prometheus/zerolog wiring for free.
func runBuildVariant(args []string, opts service.BuildOptions) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no ports specified")
		os.Exit(1)
	}

	cfg := config.GetConfig()
	opts.PortList = args

	svc, err := service.NewService(cfg)
	if err != nil {
		fatal("failed to initialize service: %v", err)
	}
	defer svc.Close()

	plan, err := svc.GetBuildPlan(opts.PortList)
	if err != nil {
		fatal("failed to resolve build plan: %v", err)
	}

	if plan.NeedBuild == 0 && !opts.Force {
		fmt.Println("All packages are up to date!")
		return
	}

	if !cfg.YesAll && !util.AskYN(fmt.Sprintf("Build %d packages?", plan.NeedBuild), true) {
		fmt.Println("Build cancelled")
		return
	}

	result, err := svc.Build(opts)
	if err != nil {
		fatal("build failed: %v", err)
	}
	if result.Cleanup != nil {
		svc.SetActiveCleanup(result.Cleanup)
		defer func() {
			result.Cleanup()
			svc.ClearActiveCleanup()
		}()
	}

	fmt.Printf("\nBuild Statistics:\n")
	fmt.Printf("  Total packages: %d\n", result.Stats.Total)
	fmt.Printf("  Success: %d\n", result.Stats.Success)
	fmt.Printf("  Failed: %d\n", result.Stats.Failed)
	fmt.Printf("  Already built (skipped): %d\n", result.Stats.SkippedPre)
	fmt.Printf("  Dependency skipped: %d\n", result.Stats.Skipped)
	fmt.Printf("  Ignored: %d\n", result.Stats.Ignored)
	fmt.Printf("  Duration: %s\n\n", result.Stats.Duration)

	if result.Stats.Failed > 0 {
		os.Exit(1)
	}
}
