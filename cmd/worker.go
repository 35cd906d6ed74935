package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// workerCmd is a placeholder for dsynth's hidden `WORKER slot# fd portdir
// pkgfile flags` self-exec directive, by which the original process
// re-executed itself per build slot with an inherited pipe fd.
//
// This implementation runs build slots as in-process goroutines
// (build.DoBuild's worker pool) rather than re-executing the binary, so
// there is no self-exec counterpart to wire this directive to. It is kept,
// hidden, so an operator invoking it by habit gets an explanation instead of
// "unknown command".
var workerCmd = &cobra.Command{
	Use:    "WORKER",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(os.Stderr, "WORKER is not used by this build: workers run in-process, not as re-executed subprocesses.")
		os.Exit(1)
	},
}
