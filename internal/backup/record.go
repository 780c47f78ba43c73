// Package backup creates, verifies and restores sibling-file backups,
// forming the undo log for a generation run.
package backup

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status tracks a backup's lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Kind classifies what a backup covers.
type Kind string

const (
	KindFile          Kind = "file"
	KindDirectory     Kind = "directory"
	KindConfiguration Kind = "configuration"
)

// Strategy selects how much content a backup captures.
type Strategy string

const (
	// StrategyFull captures the entire content.
	StrategyFull Strategy = "full"
	// StrategyIncremental captures the change since the last full
	// backup, keyed by that backup's ID.
	StrategyIncremental Strategy = "incremental"
	// StrategyDifferential captures the change since the full backup,
	// regardless of intervening increments.
	StrategyDifferential Strategy = "differential"
)

// Record describes one backup: metadata plus the sibling copy on disk.
// Records are retained until explicit cleanup or a successful rollback.
type Record struct {
	ID           string        `yaml:"id"`
	CreatedAt    time.Time     `yaml:"createdAt"`
	Type         Kind          `yaml:"type"`
	Strategy     Strategy      `yaml:"strategy"`
	BaseID       string        `yaml:"baseId,omitempty"` // full backup this delta is keyed to
	Target       string        `yaml:"target"`
	BackupPath   string        `yaml:"backupPath"`
	Checksum     string        `yaml:"checksum"` // of the original content, sha256:<hex>
	OriginalSize int64         `yaml:"originalSize"`
	BackupSize   int64         `yaml:"backupSize"`
	OriginalMode fs.FileMode   `yaml:"originalMode"`
	Status       Status        `yaml:"status"`
	Compressed   bool          `yaml:"compressed"`
	Encrypted    bool          `yaml:"encrypted"`
}

// IntegrityError reports a checksum mismatch between a backup and the
// content it claims to hold. Fatal for the affected file; the run
// continues for other files.
type IntegrityError struct {
	Target     string
	BackupPath string
	Reason     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("backup integrity failure for %s (backup %s): %s", e.Target, e.BackupPath, e.Reason)
}

func newRecord(target string, isDir bool, strategy Strategy) Record {
	return Record{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Type:      classifyKind(target, isDir),
		Strategy:  strategy,
		Target:    target,
		Status:    StatusPending,
	}
}

// classifyKind tags configuration formats separately so cleanup and
// reporting can treat them with extra care.
func classifyKind(target string, isDir bool) Kind {
	if isDir {
		return KindDirectory
	}
	switch strings.ToLower(filepath.Ext(target)) {
	case ".yml", ".yaml", ".json", ".toml", ".ini", ".env":
		return KindConfiguration
	default:
		return KindFile
	}
}
