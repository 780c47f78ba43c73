package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zacfermanis/memory-banks/internal/backup"
	"github.com/zacfermanis/memory-banks/internal/input"
	"github.com/zacfermanis/memory-banks/internal/output"
	"github.com/zacfermanis/memory-banks/internal/pipeline"
)

// RollbackCmd creates and returns the 'rollback' command.
func RollbackCmd() *cobra.Command {
	var outputDir string
	var yes bool

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Undo the last generation run",
		Long: `Rollback reads the run manifest written by generate and undoes it:
files the run created are removed, files it overwrote are restored from
their backups. Backup files themselves are kept.

Examples:
  membank rollback
  membank rollback -o docs --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputDir == "" {
				outputDir = "."
			}

			manifest, err := readManifest(outputDir)
			if err != nil {
				return err
			}

			if !yes {
				q := fmt.Sprintf("Roll back the %q run from %s?",
					manifest.Template, manifest.GeneratedAt.Format("2006-01-02 15:04"))
				if !input.Confirm(q, false) {
					output.Info("Rollback cancelled")
					return nil
				}
			}

			mgr := backup.NewManager(backup.Options{Passphrase: os.Getenv("MEMBANK_PASSPHRASE")})
			mgr.Adopt(manifest.Backups)

			p := pipeline.New(pipeline.WithBackupManager(mgr))
			result, err := p.RollbackGeneration(cmd.Context(), manifest.Files,
				pipeline.Options{OutputDir: outputDir})
			if err != nil {
				return err
			}

			for _, path := range result.RemovedFiles {
				output.Step("removed  " + path)
			}
			for _, path := range result.RestoredFiles {
				output.Step("restored " + path)
			}
			for _, err := range result.Errors {
				output.Error(err.Error())
			}

			if !result.Success {
				return fmt.Errorf("rollback incomplete: %d error(s)", len(result.Errors))
			}

			if err := os.Remove(filepath.Join(outputDir, manifestName)); err != nil && !os.IsNotExist(err) {
				output.Warning("run manifest not removed: " + err.Error())
			}
			output.Success(fmt.Sprintf("Rolled back: %d removed, %d restored",
				len(result.RemovedFiles), len(result.RestoredFiles)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory of the run to undo (default current directory)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
