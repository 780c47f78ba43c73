package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zacfermanis/memory-banks/internal/config"
	"github.com/zacfermanis/memory-banks/internal/output"
	"github.com/zacfermanis/memory-banks/internal/pipeline"
	"github.com/zacfermanis/memory-banks/internal/registry"
)

// PreviewCmd creates and returns the 'preview' command.
func PreviewCmd() *cobra.Command {
	var outputDir string
	var vars []string

	cmd := &cobra.Command{
		Use:   "preview [template]",
		Short: "Show what generate would do, without writing anything",
		Long: `Preview walks the full generation pipeline, including conflict
detection, but never touches the filesystem.

Examples:
  membank preview
  membank preview minimal -o docs`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			templateID := cfg.Template
			if len(args) > 0 {
				templateID = args[0]
			}

			reg, err := registry.Load()
			if err != nil {
				return err
			}
			tmpl, err := reg.Get(templateID)
			if err != nil {
				return err
			}

			if outputDir == "" {
				outputDir = cfg.OutputDir
			}

			bag := tmpl.Variables(cfg.Bag())
			if err := applyVarFlags(bag, vars); err != nil {
				return err
			}
			ensureProjectName(bag, outputDir, false)

			p := pipeline.New()
			preview, err := p.PreviewGeneration(cmd.Context(), tmpl.Files, bag,
				pipeline.Options{OutputDir: outputDir})
			if err != nil {
				return err
			}

			output.Info(fmt.Sprintf("Template %q into %s:", tmpl.ID, outputDir))
			for _, e := range preview.Entries {
				switch {
				case e.WouldCreate:
					output.Step("create    " + e.RelPath)
				case e.WouldOverwrite:
					output.Step("overwrite " + e.RelPath)
				case e.WouldSkip:
					output.Step("skip      " + e.RelPath)
				}
			}
			for _, w := range preview.Warnings {
				output.Warning(w)
			}
			for _, err := range preview.Errors {
				output.Error(err.Error())
			}
			if len(preview.Conflicts) > 0 {
				output.Warning(fmt.Sprintf("%d conflict(s) detected", len(preview.Conflicts)))
				for _, c := range preview.Conflicts {
					output.Step(c.Describe())
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default from .membank.yml, else current directory)")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Template variable as key=value (repeatable, dotted keys allowed)")

	return cmd
}
