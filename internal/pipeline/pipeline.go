// Package pipeline orchestrates file generation: condition evaluation,
// rendering, path resolution, conflict handling, backups and atomic
// writes, aggregated into a single per-run result.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/zacfermanis/memory-banks/internal/backup"
	"github.com/zacfermanis/memory-banks/internal/conflict"
	"github.com/zacfermanis/memory-banks/internal/filelock"
	"github.com/zacfermanis/memory-banks/internal/logging"
	"github.com/zacfermanis/memory-banks/internal/paths"
	"github.com/zacfermanis/memory-banks/internal/template"
)

// maxWorkers caps the derived worker pool size.
const maxWorkers = 8

// Pipeline wires the engine's components together. Construct one per
// invocation scope; the template cache and backup log it carries are
// explicit state, not process-wide singletons.
type Pipeline struct {
	renderer  *template.Renderer
	resolver  *paths.Resolver
	conflicts *conflict.Resolver
	backups   *backup.Manager
	workers   int
	noLock    bool
	log       zerolog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRenderer replaces the default cached renderer.
func WithRenderer(r *template.Renderer) Option {
	return func(p *Pipeline) { p.renderer = r }
}

// WithConflictResolver replaces the conflict resolver, e.g. to install
// a prompter or the intelligent automatic variant.
func WithConflictResolver(r *conflict.Resolver) Option {
	return func(p *Pipeline) { p.conflicts = r }
}

// WithBackupManager replaces the backup manager, e.g. to enable
// compression or encryption.
func WithBackupManager(m *backup.Manager) Option {
	return func(p *Pipeline) { p.backups = m }
}

// WithWorkers fixes the worker pool size.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithoutRunLock disables the flock run lock, for callers that manage
// locking themselves.
func WithoutRunLock() Option {
	return func(p *Pipeline) { p.noLock = true }
}

// New creates a pipeline with defaults: a cached renderer, automatic
// conflict resolution and a plain backup manager.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		workers: defaultWorkers(),
		log:     logging.Get("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.renderer == nil {
		p.renderer = template.NewRendererWithCache(template.NewCache(0))
	}
	if p.resolver == nil {
		p.resolver = paths.NewResolver(p.renderer)
	}
	if p.conflicts == nil {
		p.conflicts = conflict.NewResolver()
	}
	if p.backups == nil {
		p.backups = backup.NewManager(backup.Options{})
	}
	return p
}

// Backups exposes the run's backup manager, whose record log is the
// undo trail for rollback.
func (p *Pipeline) Backups() *backup.Manager { return p.backups }

func defaultWorkers() int {
	n := runtime.GOMAXPROCS(0)
	if n > maxWorkers {
		n = maxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// task carries one definition through the run.
type task struct {
	index   int
	def     FileDefinition
	relPath string
	absPath string

	condSkipped bool
	err         error // validation-phase failure
}

// GenerateFiles materializes files into opts.OutputDir. Per-file
// failures are caught and aggregated; only structurally bad input and
// failed pre-flight checks abort the run before any mutation.
func (p *Pipeline) GenerateFiles(ctx context.Context, files []FileDefinition, vars template.Bag, opts Options) (*Result, error) {
	if opts.OutputDir == "" {
		return nil, &ValidationError{Msg: "output directory is required"}
	}

	tasks, err := p.plan(files, vars, opts)
	if err != nil {
		return nil, err
	}

	if !opts.DryRun {
		var estimated int64
		for _, t := range tasks {
			estimated += int64(len(t.def.Content))
		}
		if err := paths.Preflight(opts.OutputDir, estimated); err != nil {
			return nil, err
		}

		if !p.noLock {
			lock := filelock.NewRunLock(opts.OutputDir)
			if err := lock.Acquire(); err != nil {
				return nil, err
			}
			defer func() {
				if err := lock.Release(); err != nil {
					p.log.Warn().Err(err).Msg("failed to release run lock")
				}
			}()
		}
	}

	outcomes := p.runPool(ctx, tasks, vars, opts)
	return p.assemble(tasks, outcomes), nil
}

// PreviewGeneration executes every step except the final write,
// reporting the same conflicts and per-file decisions GenerateFiles
// would, with zero filesystem mutation.
func (p *Pipeline) PreviewGeneration(ctx context.Context, files []FileDefinition, vars template.Bag, opts Options) (*PreviewResult, error) {
	opts.DryRun = true
	result, err := p.GenerateFiles(ctx, files, vars, opts)
	if err != nil {
		return nil, err
	}

	preview := &PreviewResult{
		Errors:    result.Errors,
		Warnings:  result.Warnings,
		Conflicts: result.Conflicts,
	}
	for _, f := range result.Files {
		entry := PreviewEntry{RelPath: f.RelPath, AbsPath: f.AbsPath}
		switch f.Status {
		case StatusWritten:
			if f.Overwritten {
				entry.WouldOverwrite = true
			} else {
				entry.WouldCreate = true
			}
		case StatusSkipped:
			entry.WouldSkip = true
		}
		preview.Entries = append(preview.Entries, entry)
	}
	return preview, nil
}

// RollbackGeneration undoes a previous run: files written fresh are
// removed, overwritten files are restored from their backups. Explicit
// operation, separate from per-file error handling.
func (p *Pipeline) RollbackGeneration(ctx context.Context, generated []FileResult, opts Options) (*RollbackResult, error) {
	result := &RollbackResult{Success: true}

	for _, f := range generated {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if f.Status != StatusWritten {
			continue
		}

		if f.BackupPath != "" {
			if err := p.backups.RollbackFile(f.AbsPath, f.BackupPath); err != nil {
				result.Errors = append(result.Errors, err)
				result.Success = false
				continue
			}
			result.RestoredFiles = append(result.RestoredFiles, f.AbsPath)
			continue
		}

		if f.Overwritten {
			// Overwritten without a backup (explicit overwrite, no
			// createBackups): nothing to restore from.
			result.Errors = append(result.Errors,
				fmt.Errorf("cannot restore %s: no backup was taken", f.AbsPath))
			result.Success = false
			continue
		}

		if err := os.Remove(f.AbsPath); err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, fmt.Errorf("removing %s: %w", f.AbsPath, err))
			result.Success = false
			continue
		}
		result.RemovedFiles = append(result.RemovedFiles, f.AbsPath)
	}

	return result, nil
}

// GenerateDirectories creates the given directories under the output
// directory, rendering and validating each path the same way file paths
// are.
func (p *Pipeline) GenerateDirectories(ctx context.Context, dirs []string, vars template.Bag, opts Options) ([]DirectoryResult, error) {
	if opts.OutputDir == "" {
		return nil, &ValidationError{Msg: "output directory is required"}
	}

	if !opts.DryRun {
		if err := paths.Preflight(opts.OutputDir, 0); err != nil {
			return nil, err
		}
	}

	results := make([]DirectoryResult, 0, len(dirs))
	for _, rel := range dirs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		abs, err := p.resolver.Resolve(opts.OutputDir, rel, vars)
		if err != nil {
			results = append(results, DirectoryResult{Path: rel, Err: err})
			continue
		}

		_, statErr := os.Stat(abs)
		existed := statErr == nil

		if !opts.DryRun {
			if err := os.MkdirAll(abs, 0o755); err != nil {
				results = append(results, DirectoryResult{Path: abs, Err: err})
				continue
			}
		}
		results = append(results, DirectoryResult{Path: abs, Created: !existed})
	}
	return results, nil
}

// plan runs the validation phase: condition gates, path rendering and
// resolution, and duplicate-destination rejection. Per-file problems
// are recorded on the task; duplicates reject the whole run since they
// are the only way two tasks could race on one destination.
func (p *Pipeline) plan(files []FileDefinition, vars template.Bag, opts Options) ([]task, error) {
	tasks := make([]task, len(files))
	seen := make(map[string]int, len(files))

	for i, def := range files {
		t := task{index: i, def: def, relPath: def.Path}

		if def.Condition != "" {
			val, _ := vars.Lookup(def.Condition)
			if !val.Truthy() {
				t.condSkipped = true
				tasks[i] = t
				continue
			}
		}

		rendered, err := p.renderer.Render(def.Path, vars)
		if err != nil {
			t.err = err
			tasks[i] = t
			continue
		}
		t.relPath = rendered.Content

		abs, err := p.resolver.ResolveRendered(opts.OutputDir, rendered.Content)
		if err != nil {
			t.err = err
			tasks[i] = t
			continue
		}
		t.absPath = abs

		if prev, dup := seen[abs]; dup {
			return nil, &ValidationError{
				Msg: fmt.Sprintf("definitions %d and %d both resolve to %s", prev, i, abs),
			}
		}
		seen[abs] = i

		tasks[i] = t
	}

	return tasks, nil
}

// assemble folds per-task outcomes into the run result, in input
// definition order.
func (p *Pipeline) assemble(tasks []task, outcomes []outcome) *Result {
	result := &Result{Success: true}

	for i, t := range tasks {
		if t.condSkipped {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("skipping %s: condition %q not met", t.def.Path, t.def.Condition))
			continue
		}

		o := outcomes[i]
		if t.err != nil {
			o = outcome{file: FileResult{
				RelPath: t.relPath,
				AbsPath: t.absPath,
				Status:  StatusFailed,
				Err:     t.err,
			}}
		}

		result.Files = append(result.Files, o.file)
		if o.conflict != nil {
			result.Conflicts = append(result.Conflicts, *o.conflict)
		}
		if o.warning != "" {
			result.Warnings = append(result.Warnings, o.warning)
		}

		switch o.file.Status {
		case StatusWritten:
			if o.file.Overwritten {
				result.Summary.UpdatedFiles++
			} else {
				result.Summary.CreatedFiles++
			}
		case StatusSkipped:
			result.Summary.SkippedFiles++
		case StatusFailed:
			result.Summary.FailedFiles++
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", t.def.Path, o.file.Err))
			result.Success = false
		}
	}

	p.log.Info().
		Int("created", result.Summary.CreatedFiles).
		Int("updated", result.Summary.UpdatedFiles).
		Int("skipped", result.Summary.SkippedFiles).
		Int("failed", result.Summary.FailedFiles).
		Msg("generation finished")
	return result
}
