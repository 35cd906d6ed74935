package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"portforge/config"
)

// PackageLogger writes a single package's build transcript to its own file
// under cfg.LogsPath/logs, named from portDir with "/" replaced by "___" so
// it stays a flat filename regardless of category depth.
type PackageLogger struct {
	cfg     *config.Config
	portDir string
	file    *os.File
	mu      sync.Mutex
}

// NewPackageLogger opens (creating if necessary) the per-package log file
// for portDir. If the file cannot be opened, the returned PackageLogger has
// a nil file and silently discards writes rather than erroring out of a
// build for a logging failure.
func NewPackageLogger(cfg *config.Config, portDir string) *PackageLogger {
	logsDir := filepath.Join(cfg.LogsPath, "logs")
	os.MkdirAll(logsDir, 0755)

	fileName := strings.ReplaceAll(portDir, "/", "___") + ".log"
	file, _ := os.Create(filepath.Join(logsDir, fileName))

	return &PackageLogger{
		cfg:     cfg,
		portDir: portDir,
		file:    file,
	}
}

// Write implements io.Writer so PackageLogger can be handed directly to
// exec.Cmd.Stdout/Stderr or wrapped by a loggerWriter.
func (pl *PackageLogger) Write(p []byte) (int, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	n, err := pl.file.Write(p)
	pl.file.Sync()
	return n, err
}

// WriteString appends a raw string with no added formatting.
func (pl *PackageLogger) WriteString(s string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	fmt.Fprint(pl.file, s)
	pl.file.Sync()
}

// WriteCommand logs a command about to be executed, prefixed like dsynth's
// command echo so it stands out from the command's own output.
func (pl *PackageLogger) WriteCommand(cmd string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	fmt.Fprintf(pl.file, ">>> %s\n", cmd)
	pl.file.Sync()
}

// WriteWarning logs a non-fatal warning.
func (pl *PackageLogger) WriteWarning(msg string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	fmt.Fprintf(pl.file, "WARNING: %s\n", msg)
	pl.file.Sync()
}

// WriteError logs a fatal error.
func (pl *PackageLogger) WriteError(msg string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	fmt.Fprintf(pl.file, "ERROR: %s\n", msg)
	pl.file.Sync()
}

// Close closes the underlying log file. Safe to call more than once.
func (pl *PackageLogger) Close() {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.file != nil {
		pl.file.Close()
		pl.file = nil
	}
}

// Update the repeat function reference
func (pl *PackageLogger) WriteHeader() {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(pl.file, "Build Log: %s\n", pl.portDir)
	fmt.Fprintf(pl.file, "Started: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(pl.file, "%s\n\n", strings.Repeat("=", 70))
	pl.file.Sync()
}

func (pl *PackageLogger) WritePhase(phase string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	fmt.Fprintf(pl.file, "\n")
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(pl.file, "Phase: %s\n", phase)
	fmt.Fprintf(pl.file, "Time: %s\n", time.Now().Format("15:04:05"))
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	pl.file.Sync()
}

func (pl *PackageLogger) WriteSuccess(duration time.Duration) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	fmt.Fprintf(pl.file, "\n")
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(pl.file, "BUILD SUCCESS\n")
	fmt.Fprintf(pl.file, "Completed: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(pl.file, "Duration: %s\n", duration)
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	pl.file.Sync()
}

func (pl *PackageLogger) WriteFailure(duration time.Duration, reason string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	fmt.Fprintf(pl.file, "\n")
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(pl.file, "BUILD FAILED\n")
	fmt.Fprintf(pl.file, "Reason: %s\n", reason)
	fmt.Fprintf(pl.file, "Completed: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(pl.file, "Duration: %s\n", duration)
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	pl.file.Sync()
}