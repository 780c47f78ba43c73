// Package commands wires the membank CLI: generate, preview, rollback,
// list and backups.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/zacfermanis/memory-banks/internal/logging"
	"github.com/zacfermanis/memory-banks/internal/output"
)

const version = "0.1.0"

// RootCmd creates and returns the root command for the membank CLI.
func RootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "membank",
		Short: "Scaffold and maintain project memory banks",
		Long: `Membank generates structured memory bank documents for a project:
the context files an agent (or a teammate) reads to pick up where the
last session left off.

Runs are safe by default: paths are validated, existing files are never
clobbered silently, and every overwrite can be backed up and rolled
back.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			output.SetVerbose(verbose)
			verbosity := 0
			if verbose {
				verbosity = 1
			}
			logging.Setup(verbosity)
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output for debugging")

	return cmd
}
