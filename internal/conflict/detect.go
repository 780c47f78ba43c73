// Package conflict detects clashes between intended output and existing
// filesystem entries, and maps each clash plus a strategy to a terminal
// action.
package conflict

import (
	"fmt"
	"os"
	"time"
)

// Type classifies what the destination already holds.
type Type string

const (
	TypeOverwrite       Type = "overwrite"
	TypeDirectoryExists Type = "directory_exists"
)

// Severity is a coarse risk classification of overwriting an existing
// destination.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// largeFileThreshold marks either side as high severity past 1 MiB.
const largeFileThreshold = 1 << 20

// Conflict describes a clash between intended output and an existing
// filesystem entry. It exists only when the destination path exists.
type Conflict struct {
	Type        Type
	SourcePath  string // template-relative path of the intended file
	DestPath    string
	SourceSize  int64
	DestSize    int64
	DestModTime time.Time
	DestIsDir   bool
	Severity    Severity
}

// Detect compares the intended content against destPath. Existence
// alone triggers a conflict, regardless of content equality; content
// sizes only inform severity. Byte-identical destinations still
// conflict; downstream automatic resolution depends on this trigger.
// Returns nil when the destination does not exist.
func Detect(source []byte, destPath string) (*Conflict, error) {
	info, err := os.Lstat(destPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", destPath, err)
	}

	c := &Conflict{
		Type:        TypeOverwrite,
		DestPath:    destPath,
		SourceSize:  int64(len(source)),
		DestSize:    info.Size(),
		DestModTime: info.ModTime(),
	}
	if info.IsDir() {
		c.Type = TypeDirectoryExists
		c.DestIsDir = true
		c.DestSize = 0
	}
	c.Severity = classify(c.SourceSize, c.DestSize, c.DestIsDir)
	return c, nil
}

// classify orders severity so automatic resolution stays conservative
// for small edits and cautious with large files: low when both sides
// are empty, high when either side exceeds 1 MiB, medium otherwise.
// Directories are always high: replacing one with a file is never a
// small edit.
func classify(sourceSize, destSize int64, isDir bool) Severity {
	switch {
	case isDir:
		return SeverityHigh
	case sourceSize == 0 && destSize == 0:
		return SeverityLow
	case sourceSize > largeFileThreshold || destSize > largeFileThreshold:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// Describe renders a one-line human description used by interactive
// resolution and warnings.
func (c *Conflict) Describe() string {
	if c.DestIsDir {
		return fmt.Sprintf("%s: directory already exists (severity %s)", c.DestPath, c.Severity)
	}
	return fmt.Sprintf("%s: exists (%d bytes, modified %s; incoming %d bytes; severity %s)",
		c.DestPath, c.DestSize, c.DestModTime.Format(time.RFC3339), c.SourceSize, c.Severity)
}
