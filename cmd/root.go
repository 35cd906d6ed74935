package cmd

import (
	"fmt"
	"os"

	"portforge/config"

	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	flagYesAll    bool
	flagDebug     bool
	flagSlowStart int
	flagProfile   string
	flagConfigDir string
)

// rootCmd is the portforge CLI entry point. Subcommands are defined in their
// own files (build.go, status.go, cleanup.go, ...) and registered on it by
// init() below.
var rootCmd = &cobra.Command{
	Use:     "portforge",
	Short:   "Parallel bulk build orchestrator for a source-based package collection",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(flagConfigDir, flagProfile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg.YesAll = flagYesAll
		cfg.Debug = flagDebug
		if flagSlowStart > 0 {
			cfg.SlowStart = flagSlowStart
		}
		config.SetConfig(cfg)
		return nil
	},
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version and exit")

	rootCmd.PersistentFlags().BoolVarP(&flagYesAll, "yes", "y", false, "Assume yes on all prompts")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "Enable debug output, disable TUI")
	rootCmd.PersistentFlags().IntVarP(&flagSlowStart, "slow-start", "s", 0, "Ramp up to N workers instead of starting at MaxWorkers")
	rootCmd.PersistentFlags().StringVar(&flagProfile, "profile", "default", "Configuration profile to use")
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config", "", "Path to dsynth.ini configuration directory")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(justBuildCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(forceCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(rebuildRepositoryCmd)
	rootCmd.AddCommand(purgeDistfilesCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(workerCmd)
}

// Execute runs the root command, returning any error for main() to report
// and turn into a non-zero exit code.
func Execute() error {
	return rootCmd.Execute()
}

// fatal prints an error to stderr and exits non-zero. Used by command Run
// bodies that have no cleanup of their own to run first.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
