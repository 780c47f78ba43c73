// Package filelock provides the write primitives the pipeline relies
// on: atomic file writes (temp sibling + rename) and a flock-based run
// lock that enforces the single-invocation assumption on a target
// directory.
package filelock

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RunLock guards an output directory against a second concurrent
// invocation. The engine assumes single-process access; the lock turns
// a violated assumption into a clean error instead of interleaved
// writes.
type RunLock struct {
	flock *flock.Flock
	path  string
}

// NewRunLock creates the lock for an output directory. The lock file
// lives inside the directory so it travels with it.
func NewRunLock(outputDir string) *RunLock {
	path := filepath.Join(outputDir, ".membank.lock")
	return &RunLock{flock: flock.New(path), path: path}
}

// Acquire takes the lock without blocking. A held lock means another
// generation run is active on the same directory.
func (l *RunLock) Acquire() error {
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring run lock %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("another run is active on this output directory (lock %s)", l.path)
	}
	return nil
}

// Release drops the lock and removes the lock file.
func (l *RunLock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("releasing run lock %s: %w", l.path, err)
	}
	_ = os.Remove(l.path)
	return nil
}

// AtomicWrite writes data to path via a temporary sibling and rename,
// so a crash never leaves a half-written destination. The temp file is
// created in the target's directory to keep the rename on one
// filesystem.
func AtomicWrite(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".membank-tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}

	tmp = nil
	return nil
}
