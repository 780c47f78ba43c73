package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zacfermanis/memory-banks/internal/output"
	"github.com/zacfermanis/memory-banks/internal/registry"
)

// ListCmd creates and returns the 'list' command.
func ListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available memory bank templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load()
			if err != nil {
				return err
			}

			output.Info("Available templates:")
			for _, tmpl := range reg.List() {
				output.Step(fmt.Sprintf("%-10s %s (%d files)", tmpl.ID, tmpl.Description, len(tmpl.Files)))
			}
			return nil
		},
	}
}
