package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zacfermanis/memory-banks/internal/backup"
	"github.com/zacfermanis/memory-banks/internal/output"
)

// BackupsCmd creates and returns the 'backups' command.
func BackupsCmd() *cobra.Command {
	var outputDir string
	var verify bool

	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List the backups taken by the last generation run",
		Long: `Backups reads the run manifest and lists every backup it recorded.
With --verify, each backup file is re-read and checked against its
recorded checksum; encrypted backups need MEMBANK_PASSPHRASE set.

Examples:
  membank backups
  membank backups --verify`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputDir == "" {
				outputDir = "."
			}

			manifest, err := readManifest(outputDir)
			if err != nil {
				return err
			}
			if len(manifest.Backups) == 0 {
				output.Info("No backups were taken in the last run")
				return nil
			}

			mgr := backup.NewManager(backup.Options{Passphrase: os.Getenv("MEMBANK_PASSPHRASE")})
			mgr.Adopt(manifest.Backups)

			failed := 0
			for i := range manifest.Backups {
				rec := &manifest.Backups[i]

				line := fmt.Sprintf("%s  %s  %s -> %s",
					rec.CreatedAt.Format("2006-01-02 15:04:05"),
					rec.Strategy, rec.Target, rec.BackupPath)
				if rec.Compressed {
					line += " [compressed]"
				}
				if rec.Encrypted {
					line += " [encrypted]"
				}

				if verify {
					if err := mgr.Verify(rec); err != nil {
						failed++
						output.Error(line + "  INTEGRITY FAILURE: " + err.Error())
						continue
					}
					line += "  ok"
				}
				output.Step(line)
			}

			if failed > 0 {
				return fmt.Errorf("%d backup(s) failed verification", failed)
			}
			if verify {
				output.Success(fmt.Sprintf("All %d backup(s) verified", len(manifest.Backups)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory holding the run manifest (default current directory)")
	cmd.Flags().BoolVar(&verify, "verify", false, "Check each backup against its recorded checksum")

	return cmd
}
