package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/zacfermanis/memory-banks/internal/conflict"
	"github.com/zacfermanis/memory-banks/internal/filelock"
	"github.com/zacfermanis/memory-banks/internal/template"
)

// outcome is one task's contribution to the run result.
type outcome struct {
	file     FileResult
	conflict *conflict.Conflict
	warning  string
}

// runPool fans the pending tasks across a bounded worker pool. Tasks
// never read another task's output, so they are safe to parallelize;
// outcomes are indexed by input position, keeping the result order
// deterministic regardless of completion order. Cancellation is
// honored between files, never mid-write.
func (p *Pipeline) runPool(ctx context.Context, tasks []task, vars template.Bag, opts Options) []outcome {
	outcomes := make([]outcome, len(tasks))

	workers := opts.Workers
	if workers <= 0 {
		workers = p.workers
	}

	semaphore := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := range tasks {
		t := &tasks[i]
		if t.condSkipped || t.err != nil {
			continue
		}

		// Cancellation boundary: in-flight writes always complete, but
		// no new file starts once the context is done. The error check
		// must come before the semaphore acquire; a select racing the
		// two can pick a free slot even on a cancelled context.
		if err := ctx.Err(); err != nil {
			outcomes[i] = cancelled(t, err)
			continue
		}
		select {
		case <-ctx.Done():
			outcomes[i] = cancelled(t, ctx.Err())
			continue
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(t *task) {
			defer wg.Done()
			defer func() { <-semaphore }()
			outcomes[t.index] = p.executeTask(ctx, t, vars, opts)
		}(t)
	}

	wg.Wait()
	return outcomes
}

func cancelled(t *task, err error) outcome {
	return outcome{file: FileResult{
		RelPath: t.relPath,
		AbsPath: t.absPath,
		Status:  StatusFailed,
		Err:     err,
	}}
}

// executeTask walks one file through render → detect → resolve → write.
// Every failure is caught here and recorded; nothing propagates past
// the pipeline boundary.
func (p *Pipeline) executeTask(ctx context.Context, t *task, vars template.Bag, opts Options) outcome {
	fail := func(err error) outcome {
		return outcome{file: FileResult{
			RelPath: t.relPath,
			AbsPath: t.absPath,
			Status:  StatusFailed,
			Err:     err,
		}}
	}

	rendered, err := p.renderer.Render(t.def.Content, vars)
	if err != nil {
		return fail(err)
	}
	content := []byte(rendered.Content)

	c, err := conflict.Detect(content, t.absPath)
	if err != nil {
		return fail(err)
	}

	file := FileResult{
		RelPath: t.relPath,
		AbsPath: t.absPath,
		Size:    int64(len(content)),
	}

	if c == nil {
		if !opts.DryRun {
			if err := filelock.AtomicWrite(t.absPath, content, fileMode(t.def)); err != nil {
				return fail(err)
			}
		}
		file.Status = StatusWritten
		return outcome{file: file}
	}

	c.SourcePath = t.relPath
	action, err := p.decide(ctx, t, c, opts)
	if err != nil {
		return outcome{file: fail(err).file, conflict: c}
	}

	switch action {
	case conflict.ActionSkip:
		file.Status = StatusSkipped
		return outcome{
			file:     file,
			conflict: c,
			warning:  fmt.Sprintf("skipping %s: %s", t.relPath, c.Describe()),
		}

	case conflict.ActionOverwrite, conflict.ActionBackupRename, conflict.ActionMerge:
		if c.DestIsDir {
			return outcome{
				file:     fail(fmt.Errorf("cannot replace directory %s with a file", t.absPath)).file,
				conflict: c,
			}
		}

		// Backup-before-modify invariant: backup_rename always backs
		// up; any other overwrite does too when createBackups is set.
		needBackup := action == conflict.ActionBackupRename || opts.CreateBackups
		if needBackup && !opts.DryRun {
			rec, err := p.backups.Create(t.absPath)
			if err != nil {
				// Includes backup.IntegrityError: fatal for this file,
				// the original stays untouched.
				return outcome{file: fail(err).file, conflict: c}
			}
			file.BackupPath = rec.BackupPath
		}

		if action == conflict.ActionMerge {
			existing, err := readExisting(t.absPath)
			if err != nil {
				return outcome{file: fail(err).file, conflict: c}
			}
			content = conflict.Merge(existing, content)
			file.Size = int64(len(content))
		}

		if !opts.DryRun {
			if err := filelock.AtomicWrite(t.absPath, content, fileMode(t.def)); err != nil {
				return outcome{file: fail(err).file, conflict: c}
			}
		}
		file.Status = StatusWritten
		file.Overwritten = true
		return outcome{file: file, conflict: c}
	}

	return outcome{file: fail(fmt.Errorf("unknown conflict action %q", action)).file, conflict: c}
}

// decide picks the terminal action for a conflict, honoring the
// per-file override, then force/overwrite options, then the run
// strategy.
func (p *Pipeline) decide(ctx context.Context, t *task, c *conflict.Conflict, opts Options) (conflict.Action, error) {
	if t.def.Overwrite != nil {
		if *t.def.Overwrite {
			return conflict.ActionOverwrite, nil
		}
		return conflict.ActionSkip, nil
	}
	if opts.Force || opts.Overwrite {
		return conflict.ActionOverwrite, nil
	}

	decision, err := p.conflicts.Resolve(ctx, c, opts.Strategy)
	if err != nil {
		return "", err
	}
	return decision.Action, nil
}

func fileMode(def FileDefinition) fs.FileMode {
	if def.Mode != 0 {
		return def.Mode
	}
	return 0o644
}

func readExisting(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading existing content of %s: %w", path, err)
	}
	return content, nil
}
