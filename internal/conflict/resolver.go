package conflict

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zacfermanis/memory-banks/internal/logging"
)

// Strategy names a caller-selected resolution policy.
type Strategy string

const (
	// StrategyAuto resolves by severity without user interaction.
	StrategyAuto      Strategy = ""
	StrategyAsk       Strategy = "ask"
	StrategyOverwrite Strategy = "overwrite"
	StrategySkip      Strategy = "skip"
	StrategyBackup    Strategy = "backup"
	StrategyMerge     Strategy = "merge"
)

// ParseStrategy validates a strategy name from flags or config.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyAuto, StrategyAsk, StrategyOverwrite, StrategySkip, StrategyBackup, StrategyMerge:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown conflict strategy %q (valid: ask, overwrite, skip, backup, merge)", s)
}

// Action is the terminal decision for one conflict.
type Action string

const (
	ActionOverwrite    Action = "overwrite"
	ActionBackupRename Action = "backup_rename"
	ActionMerge        Action = "merge"
	ActionSkip         Action = "skip"
)

// Decision is the outcome of resolving one conflict. It is consumed
// immediately by the pipeline.
type Decision struct {
	Action        Action
	UserConfirmed bool
}

// ConflictError is raised under the ask strategy when no decision
// source is available (non-interactive invocation). Recoverable by
// re-invoking with a decision source or an explicit strategy.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict at %s requires a decision and no prompt is available", e.Path)
}

// Prompter supplies interactive decisions for the ask strategy.
type Prompter interface {
	Decide(ctx context.Context, c *Conflict) (Action, error)
}

// Resolver maps a conflict plus a strategy to a terminal action.
type Resolver struct {
	prompter    Prompter
	intelligent bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPrompter installs a decision source for the ask strategy.
func WithPrompter(p Prompter) Option {
	return func(r *Resolver) { r.prompter = p }
}

// WithIntelligent enables the cautious automatic variant: recognizable
// content is never silently overwritten.
func WithIntelligent() Option {
	return func(r *Resolver) { r.intelligent = true }
}

// NewResolver creates a resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps conflict c under the given strategy to a decision.
func (r *Resolver) Resolve(ctx context.Context, c *Conflict, strategy Strategy) (Decision, error) {
	log := logging.Get("conflict")

	switch strategy {
	case StrategyOverwrite:
		return Decision{Action: ActionOverwrite}, nil
	case StrategySkip:
		return Decision{Action: ActionSkip}, nil
	case StrategyBackup:
		return Decision{Action: ActionBackupRename}, nil
	case StrategyMerge:
		return Decision{Action: ActionMerge}, nil
	case StrategyAsk:
		if r.prompter == nil {
			return Decision{}, &ConflictError{Path: c.DestPath}
		}
		action, err := r.prompter.Decide(ctx, c)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Action: action, UserConfirmed: true}, nil
	}

	action := r.automatic(c)
	log.Debug().
		Str("path", c.DestPath).
		Str("severity", string(c.Severity)).
		Str("action", string(action)).
		Msg("automatic conflict resolution")
	return Decision{Action: action}, nil
}

// automatic applies the severity policy: high skips, medium backs up,
// low overwrites. The intelligent variant additionally forces a backup
// when extensions differ or either side is a recognizable document.
func (r *Resolver) automatic(c *Conflict) Action {
	base := ActionForSeverity(c.Severity)
	if !r.intelligent || base == ActionSkip {
		return base
	}
	if extensionsDiffer(c.SourcePath, c.DestPath) || isRecognizedDocument(c.SourcePath) || isRecognizedDocument(c.DestPath) {
		return ActionBackupRename
	}
	return base
}

// ActionForSeverity maps severity to the default automatic action.
func ActionForSeverity(s Severity) Action {
	switch s {
	case SeverityHigh:
		return ActionSkip
	case SeverityMedium:
		return ActionBackupRename
	default:
		return ActionOverwrite
	}
}

func extensionsDiffer(sourcePath, destPath string) bool {
	if sourcePath == "" {
		return false
	}
	return !strings.EqualFold(filepath.Ext(sourcePath), filepath.Ext(destPath))
}

// recognizedExtensions covers text and binary document types that are
// likely user content rather than scaffolding debris.
var recognizedExtensions = map[string]struct{}{
	".md": {}, ".txt": {}, ".rst": {}, ".adoc": {},
	".doc": {}, ".docx": {}, ".pdf": {}, ".odt": {},
	".xls": {}, ".xlsx": {}, ".csv": {},
	".json": {}, ".yaml": {}, ".yml": {}, ".toml": {},
}

func isRecognizedDocument(path string) bool {
	_, ok := recognizedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// mergeMarkerExisting, mergeMarkerSep and mergeMarkerIncoming delimit
// the two sides of a textual merge.
const (
	mergeMarkerExisting = "<<<<<<< existing"
	mergeMarkerSep      = "======="
	mergeMarkerIncoming = ">>>>>>> incoming"
)

// Merge concatenates existing and incoming content with textual
// conflict markers. There is no semantic merging; the user untangles
// the result by hand.
func Merge(existing, incoming []byte) []byte {
	var sb strings.Builder
	sb.Grow(len(existing) + len(incoming) + 64)
	sb.WriteString(mergeMarkerExisting)
	sb.WriteByte('\n')
	sb.Write(existing)
	ensureNewline(&sb, existing)
	sb.WriteString(mergeMarkerSep)
	sb.WriteByte('\n')
	sb.Write(incoming)
	ensureNewline(&sb, incoming)
	sb.WriteString(mergeMarkerIncoming)
	sb.WriteByte('\n')
	return []byte(sb.String())
}

func ensureNewline(sb *strings.Builder, content []byte) {
	if len(content) > 0 && content[len(content)-1] != '\n' {
		sb.WriteByte('\n')
	}
}
