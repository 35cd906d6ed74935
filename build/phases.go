package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"portforge/config"
	"portforge/environment"
	"portforge/log"
	"portforge/pkg"
	"portforge/stats"
)

// phaseWatchdogMinutes gives the nominal (unscaled) timeout budget for each
// watched phase, matching dsynth's WDOG1..WDOG9 constants.
var phaseWatchdogMinutes = map[string]int{
	"check-sanity": 5,   // WDOG1
	"fetch":        10,  // WDOG2
	"checksum":     15,  // WDOG3
	"extract":      30,  // WDOG4
	"patch":        60,  // WDOG5
	"configure":    90,  // WDOG6
	"build":        120, // WDOG7
	"stage":        150, // WDOG8
	"package":      180, // WDOG9
}

// phaseTimeout computes the effective watchdog timeout for phase: the
// nominal WDOG budget scaled by how far 2-minute load average exceeds
// ncpus, capped at 4x nominal. Phases with no nominal budget (the
// dependency placeholders, install-pkgs and check-plist) are not watched.
func phaseTimeout(phase string) time.Duration {
	nominalMinutes, ok := phaseWatchdogMinutes[phase]
	if !ok {
		return 0
	}
	nominal := time.Duration(nominalMinutes) * time.Minute

	load, err := stats.GetLoadAverage()
	if err != nil || load <= 0 {
		return nominal
	}

	ncpus := float64(runtime.NumCPU())
	if ncpus < 1 {
		ncpus = 1
	}

	scale := load / ncpus
	if scale < 1 {
		scale = 1
	}
	if scale > 4 {
		scale = 4
	}

	return time.Duration(float64(nominal) * scale)
}

// loggerWriter adapts log.PackageLogger to io.Writer interface
type loggerWriter struct {
	logger *log.PackageLogger
}

func (lw *loggerWriter) Write(p []byte) (n int, err error) {
	lw.logger.Write(p)
	return len(p), nil
}

// executePhase executes a single build phase
func executePhase(ctx context.Context, worker *Worker, p *pkg.Package, phase string, cfg *config.Config, registry *pkg.BuildStateRegistry, logger *log.PackageLogger, sink *log.ErrorLogSink) error {
	// Build the make command
	portPath := filepath.Join("/xports", p.Category, p.Name)

	args := []string{
		"-C", portPath,
	}

	// Add flavor if specified
	if p.Flavor != "" {
		args = append(args, "FLAVOR="+p.Flavor)
	}

	// Add common overrides - CRITICAL: Set PORTSDIR to where we mounted ports
	args = append(args,
		"PORTSDIR=/xports",
		"WRKDIRPREFIX=/construction",
		"DISTDIR=/distfiles",
		"PACKAGES=/packages",
		"PKG_DBDIR=/var/db/pkg",
	)

	// Phase-specific handling
	switch phase {
	case "install-pkgs":
		// Install dependency packages before building
		return installDependencyPackages(ctx, worker, p, cfg, registry, logger)

	case "fetch":
		args = append(args, "BATCH=yes", "fetch")

	case "checksum":
		args = append(args, "BATCH=yes", "checksum")

	case "extract":
		args = append(args, "BATCH=yes", "extract")

	case "patch":
		args = append(args, "BATCH=yes", "patch")

	case "configure":
		args = append(args, "BATCH=yes", "configure")

	case "build":
		args = append(args, "BATCH=yes", "build")

	case "stage":
		args = append(args, "BATCH=yes", "stage")

	case "package":
		args = append(args, "BATCH=yes", "package")

	case "check-plist":
		if cfg.CheckPlist {
			args = append(args, "check-plist")
		} else {
			// Skip check-plist if not enabled
			return nil
		}

	case "check-sanity":
		args = append(args, "check-sanity")

	case "fetch-depends", "extract-depends", "patch-depends", "build-depends", "lib-depends", "run-depends":
		// These are handled implicitly by the main phases
		return nil

	default:
		return fmt.Errorf("unknown phase: %s", phase)
	}

	// Build environment command
	// stdout still goes through the in-process logger writer; stderr is
	// routed through the shared ErrorLogSink so lines are attributed by the
	// child's real kernel PID rather than by this goroutine's worker binding
	// (mirrors dexec_open()'s split stdout/stderr handling).
	logWriter := &loggerWriter{logger: logger}

	execCmd := &environment.ExecCommand{
		Command: "/usr/bin/make",
		Args:    args,
		Env: map[string]string{
			"PATH": "/sbin:/bin:/usr/sbin:/usr/bin:/usr/local/sbin:/usr/local/bin",
		},
		Stdout:  logWriter,
		Timeout: phaseTimeout(phase),
	}

	var childPID int
	if sink != nil {
		// The error sink needs stdout/stderr split by fd so it can attribute
		// lines to the child's kernel PID; a pty would merge both into one
		// stream, so fall back to plain pipes here.
		execCmd.Stderr = sink.WriterFile()
		execCmd.OnStart = func(pid int) {
			childPID = pid
			sink.Register(pid, logger)
		}
	} else {
		// No sink watching this phase: stdout and stderr already share
		// logWriter, so a pty (which always merges them) changes nothing
		// observable while giving the child the pty-aware output cadence
		// dsynth's dexec_open() relies on for watchdog line counting.
		execCmd.UsePty = true
		execCmd.Stderr = logWriter
	}

	// Log command for debugging
	cmdStr := fmt.Sprintf("/usr/bin/make %s", strings.Join(args, " "))
	logger.WriteCommand(cmdStr)

	// Execute in isolated environment
	result, err := worker.Env.Execute(ctx, execCmd)
	if sink != nil && childPID != 0 {
		sink.Unregister(childPID)
	}
	if err != nil {
		// Execution failure (not non-zero exit code)
		return fmt.Errorf("phase execution failed: %w", err)
	}

	if result.ExitCode != 0 {
		return fmt.Errorf("phase failed with exit code %d", result.ExitCode)
	}

	return nil
}

// installDependencyPackages installs required dependency packages
func installDependencyPackages(ctx context.Context, worker *Worker, p *pkg.Package, cfg *config.Config, registry *pkg.BuildStateRegistry, logger *log.PackageLogger) error {
	// Collect all dependency packages (just the filenames)
	depPkgs := make(map[string]bool)

	for _, link := range p.IDependOn {
		dep := link.Pkg

		// Only install packages that have been built
		if !registry.HasFlags(dep, pkg.PkgFSuccess) {
			continue
		}

		// Skip meta packages
		if registry.HasFlags(dep, pkg.PkgFMeta) {
			continue
		}

		// PkgFile should already be just the filename
		depPkgs[dep.PkgFile] = true
	}

	if len(depPkgs) == 0 {
		return nil
	}

	logger.WritePhase("Installing dependency packages")

	// Install each package from /packages/All/ (C dsynth convention)
	for pkgFile := range depPkgs {
		// Package path inside chroot - use /packages/All/ like C dsynth
		pkgPath := filepath.Join("/packages/All", pkgFile)

		logWriter := &loggerWriter{logger: logger}
		execCmd := &environment.ExecCommand{
			Command: "/usr/sbin/pkg",
			Args:    []string{"add", pkgPath},
			Stdout:  logWriter,
			Stderr:  logWriter,
		}

		result, err := worker.Env.Execute(ctx, execCmd)
		if err != nil {
			return fmt.Errorf("failed to install dependency %s: %w", pkgFile, err)
		}

		if result.ExitCode != 0 {
			return fmt.Errorf("failed to install dependency %s: exit code %d", pkgFile, result.ExitCode)
		}
	}

	return nil
}

// extractPackage checks that a successfully built package file is present in
// PackagesPath/All; it copies or extracts nothing
func extractPackage(worker *Worker, p *pkg.Package, cfg *config.Config) error {
	// The package was built by make and should be in /packages/All already
	// (since we set PACKAGES=/packages which is mounted from the host)

	// Just verify the package exists
	pkgPath := filepath.Join(cfg.PackagesPath, "All", p.PkgFile)

	if _, err := os.Stat(pkgPath); err != nil {
		return fmt.Errorf("package file not found: %s (%w)", pkgPath, err)
	}

	return nil
}

// copyFile copies a file
func copyFile(src, dst string) error {
	cmd := exec.Command("cp", "-p", src, dst)
	return cmd.Run()
}

// cleanupWorkDir cleans up the work directory after build
func cleanupWorkDir(worker *Worker, p *pkg.Package) error {
	constructionPath := filepath.Join(worker.Env.GetBasePath(), "construction")
	workDir := filepath.Join(constructionPath, p.Category, p.Name)

	// Remove work directory
	cmd := exec.Command("rm", "-rf", workDir)
	return cmd.Run()
}

// installMissingPackages installs packages that are missing but required
func installMissingPackages(ctx context.Context, worker *Worker, requiredPkgs []string, cfg *config.Config, logger *log.PackageLogger) error {
	for _, pkgFile := range requiredPkgs {
		// Use /packages/All/ like C dsynth
		pkgPath := filepath.Join("/packages/All", pkgFile)

		// Check if already installed
		checkCmd := &environment.ExecCommand{
			Command: "/usr/sbin/pkg",
			Args:    []string{"info", "-e", pkgFile},
		}

		checkResult, err := worker.Env.Execute(ctx, checkCmd)
		if err == nil && checkResult.ExitCode == 0 {
			// Already installed
			continue
		}

		// Install package
		logWriter := &loggerWriter{logger: logger}
		installCmd := &environment.ExecCommand{
			Command: "/usr/sbin/pkg",
			Args:    []string{"add", pkgPath},
			Stdout:  logWriter,
			Stderr:  logWriter,
		}

		result, err := worker.Env.Execute(ctx, installCmd)
		if err != nil {
			logger.WriteWarning(fmt.Sprintf("Failed to install %s: execution error: %v", pkgFile, err))
			return fmt.Errorf("failed to install required package %s: %w", pkgFile, err)
		}

		if result.ExitCode != 0 {
			logger.WriteWarning(fmt.Sprintf("Failed to install %s: exit code %d", pkgFile, result.ExitCode))
			return fmt.Errorf("failed to install required package %s: exit code %d", pkgFile, result.ExitCode)
		}
	}

	return nil
}
