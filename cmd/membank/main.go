package main

import (
	"os"

	"github.com/zacfermanis/memory-banks/internal/commands"
)

func main() {
	rootCmd := commands.RootCmd()

	rootCmd.AddCommand(commands.GenerateCmd())
	rootCmd.AddCommand(commands.PreviewCmd())
	rootCmd.AddCommand(commands.RollbackCmd())
	rootCmd.AddCommand(commands.ListCmd())
	rootCmd.AddCommand(commands.BackupsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
