package pipeline

import (
	"fmt"
	"io/fs"

	"github.com/zacfermanis/memory-banks/internal/conflict"
)

// FileDefinition describes one file to materialize: a path pattern plus
// a content pattern, optionally gated by a condition expression.
// Definitions are caller-owned and immutable per run.
type FileDefinition struct {
	Path      string      `yaml:"path"`
	Content   string      `yaml:"content"`
	Condition string      `yaml:"condition,omitempty"` // dotted-path truthiness gate
	Overwrite *bool       `yaml:"overwrite,omitempty"` // per-file strategy override
	Mode      fs.FileMode `yaml:"mode,omitempty"`      // defaults to 0644
}

// Options configures one generation run. Immutable per run; documented
// defaults apply through Normalize.
type Options struct {
	OutputDir     string
	Overwrite     bool // resolve every conflict by overwriting
	DryRun        bool
	Force         bool // bypass conflict handling entirely
	Strategy      conflict.Strategy
	CreateBackups bool
	Workers       int // 0 derives from CPU count, capped at 8
}

// ValidationError reports structurally bad input to a pipeline call.
// Always reported, never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Status is the terminal state of one file's journey through the
// pipeline.
type Status string

const (
	StatusWritten Status = "written"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// FileResult records the outcome for one non-skipped definition.
type FileResult struct {
	RelPath     string `yaml:"path"`
	AbsPath     string `yaml:"absPath"`
	Status      Status `yaml:"status"`
	Overwritten bool   `yaml:"overwritten,omitempty"`
	BackupPath  string `yaml:"backupPath,omitempty"`
	Size        int64  `yaml:"size"`
	Err         error  `yaml:"-"`
}

// Summary aggregates per-file outcomes.
type Summary struct {
	CreatedFiles int
	UpdatedFiles int
	SkippedFiles int
	FailedFiles  int
}

// Result is the outcome of one GenerateFiles invocation. It is produced
// once and not persisted by the core.
type Result struct {
	Files     []FileResult
	Errors    []error
	Warnings  []string
	Conflicts []conflict.Conflict
	Summary   Summary
	Success   bool
}

// PreviewEntry mirrors one file's generation metadata without any
// filesystem mutation.
type PreviewEntry struct {
	RelPath        string
	AbsPath        string
	WouldCreate    bool
	WouldOverwrite bool
	WouldSkip      bool
}

// PreviewResult is the outcome of a dry run: the same per-file metadata
// and conflict list a real run would produce, with zero side effects.
type PreviewResult struct {
	Entries   []PreviewEntry
	Errors    []error
	Warnings  []string
	Conflicts []conflict.Conflict
}

// RollbackResult reports a whole-run undo.
type RollbackResult struct {
	RestoredFiles []string
	RemovedFiles  []string
	Errors        []error
	Success       bool
}

// DirectoryResult reports one directory creation.
type DirectoryResult struct {
	Path    string
	Created bool
	Err     error
}

func (s Summary) String() string {
	return fmt.Sprintf("%d created, %d updated, %d skipped, %d failed",
		s.CreatedFiles, s.UpdatedFiles, s.SkippedFiles, s.FailedFiles)
}
