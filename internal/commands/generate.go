package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zacfermanis/memory-banks/internal/backup"
	"github.com/zacfermanis/memory-banks/internal/conflict"
	"github.com/zacfermanis/memory-banks/internal/config"
	"github.com/zacfermanis/memory-banks/internal/input"
	"github.com/zacfermanis/memory-banks/internal/output"
	"github.com/zacfermanis/memory-banks/internal/pipeline"
	"github.com/zacfermanis/memory-banks/internal/registry"
	"github.com/zacfermanis/memory-banks/internal/template"
)

// GenerateCmd creates and returns the 'generate' command.
func GenerateCmd() *cobra.Command {
	var outputDir, strategy string
	var dryRun, force, overwrite, noBackups, compress, interactive bool
	var workers int
	var vars []string

	cmd := &cobra.Command{
		Use:   "generate [template]",
		Short: "Generate a memory bank into the output directory",
		Long: `Generate a memory bank from a built-in template.

Existing files are detected as conflicts and resolved by severity:
empty files are replaced, modest files are backed up first, large files
are left alone. Use --strategy to force one resolution for every
conflict, or --interactive to decide per file.

Examples:
  membank generate
  membank generate standard --var project.name=myapp
  membank generate minimal -o docs --strategy backup
  membank generate --dry-run
  membank generate --interactive`,
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
			ensureProjectName(bag, outputDir, !dryRun && !force)

			runStrategy, err := resolveStrategy(strategy, cfg.Strategy, interactive)
			if err != nil {
				return err
			}

			resolverOpts := []conflict.Option{conflict.WithIntelligent()}
			if runStrategy == conflict.StrategyAsk {
				resolverOpts = append(resolverOpts, conflict.WithPrompter(input.NewMenuPrompter()))
			}

			if workers == 0 {
				workers = cfg.Workers
			}

			p := pipeline.New(
				pipeline.WithConflictResolver(conflict.NewResolver(resolverOpts...)),
				pipeline.WithBackupManager(backup.NewManager(backup.Options{
					Compress:   compress || cfg.Compress,
					Passphrase: os.Getenv("MEMBANK_PASSPHRASE"),
				})),
				pipeline.WithWorkers(workers),
			)

			opts := pipeline.Options{
				OutputDir:     outputDir,
				DryRun:        dryRun,
				Force:         force,
				Overwrite:     overwrite,
				Strategy:      runStrategy,
				CreateBackups: cfg.CreateBackups && !noBackups,
				Workers:       workers,
			}

			ctx := cmd.Context()

			output.Verbose(fmt.Sprintf("generating template %q into %s", tmpl.ID, outputDir))

			dirResults, err := p.GenerateDirectories(ctx, tmpl.Directories, bag, opts)
			if err != nil {
				return err
			}
			for _, d := range dirResults {
				if d.Err != nil {
					return fmt.Errorf("creating directory %s: %w", d.Path, d.Err)
				}
				if d.Created {
					output.Verbose("created directory " + d.Path)
				}
			}

			result, err := p.GenerateFiles(ctx, tmpl.Files, bag, opts)
			if err != nil {
				return err
			}

			reportResult(result, dryRun)

			if !dryRun {
				manifest := &runManifest{
					Template:    tmpl.ID,
					OutputDir:   outputDir,
					GeneratedAt: time.Now(),
					Files:       result.Files,
					Backups:     p.Backups().Records(),
				}
				if err := writeManifest(outputDir, manifest); err != nil {
					output.Warning("run manifest not written: " + err.Error())
				}
			}

			if !result.Success {
				return fmt.Errorf("%d of %d files failed", result.Summary.FailedFiles, len(result.Files))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default from .membank.yml, else current directory)")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "Conflict strategy: overwrite, skip, backup, merge, ask")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be written without touching the filesystem")
	cmd.Flags().BoolVar(&force, "force", false, "Write every file, ignoring conflicts")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Resolve every conflict by overwriting")
	cmd.Flags().BoolVar(&noBackups, "no-backups", false, "Do not back up files before overwriting")
	cmd.Flags().BoolVar(&compress, "compress", false, "Compress backups")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Decide each conflict through an interactive menu")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel workers (default: CPU count, capped at 8)")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Template variable as key=value (repeatable, dotted keys allowed)")

	return cmd
}

// applyVarFlags merges --var key=value pairs into the bag.
func applyVarFlags(bag template.Bag, pairs []string) error {
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --var %q: expected key=value", pair)
		}
		bag.Set(key, template.String(value))
	}
	return nil
}

// ensureProjectName fills in project.name, prompting when the run is
// interactive enough to allow it and falling back to the output
// directory's base name.
func ensureProjectName(bag template.Bag, outputDir string, prompt bool) {
	if _, ok := bag.Lookup("project.name"); ok {
		return
	}

	fallback := filepath.Base(outputDir)
	if abs, err := filepath.Abs(outputDir); err == nil {
		fallback = filepath.Base(abs)
	}

	name := fallback
	if prompt {
		name = input.Prompt("Project name", fallback)
	}
	bag.Set("project.name", template.String(name))
}

func resolveStrategy(flag, configured string, interactive bool) (conflict.Strategy, error) {
	if interactive {
		return conflict.StrategyAsk, nil
	}
	if flag == "" {
		flag = configured
	}
	return conflict.ParseStrategy(flag)
}

// reportResult prints the per-file lines and the run summary.
func reportResult(result *pipeline.Result, dryRun bool) {
	for _, f := range result.Files {
		switch f.Status {
		case pipeline.StatusWritten:
			verb := "created"
			if f.Overwritten {
				verb = "updated"
			}
			if dryRun {
				verb = "would be " + verb
			}
			line := fmt.Sprintf("%s %s", verb, f.RelPath)
			if f.BackupPath != "" {
				line += " (backed up)"
			}
			output.Step(line)
		case pipeline.StatusSkipped:
			output.Step("skipped " + f.RelPath)
		case pipeline.StatusFailed:
			output.Step("failed  " + f.RelPath + ": " + f.Err.Error())
		}
	}

	for _, w := range result.Warnings {
		output.Warning(w)
	}

	if result.Success {
		output.Success(result.Summary.String())
	} else {
		output.Error(result.Summary.String())
	}
}
