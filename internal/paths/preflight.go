package paths

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/zacfermanis/memory-banks/internal/logging"
)

// spaceMargin is added on top of the estimated write size when checking
// available disk space, covering filesystem overhead and backups.
const spaceMargin = 10 << 20 // 10 MiB

// DiskSpaceError reports insufficient space on the target volume. It is
// fatal for the whole run and raised before any mutation.
type DiskSpaceError struct {
	Dir       string
	Required  uint64
	Available uint64
}

func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space in %s: need %d bytes, %d available", e.Dir, e.Required, e.Available)
}

// PermissionError reports a failed read/write probe on the output
// directory. Fatal for the whole run.
type PermissionError struct {
	Dir string
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("output directory %s is not writable: %v", e.Dir, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// Preflight verifies the output directory before any write: the volume
// must hold the estimated write size plus a margin, and the directory
// must be readable and writable. Run once per invocation; failures are
// fatal and never retried.
func Preflight(outputDir string, estimatedBytes int64) error {
	log := logging.Get("preflight")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return &PermissionError{Dir: outputDir, Err: err}
	}

	if err := probeWrite(outputDir, log); err != nil {
		return err
	}

	required := uint64(estimatedBytes) + spaceMargin
	available, err := availableSpace(outputDir)
	if err != nil {
		// Not every filesystem reports free space; log and continue
		// rather than failing a writable target.
		log.Warn().Err(err).Str("dir", outputDir).Msg("could not determine free disk space")
		return nil
	}
	if available < required {
		return &DiskSpaceError{Dir: outputDir, Required: required, Available: available}
	}

	log.Debug().
		Str("dir", outputDir).
		Uint64("required", required).
		Uint64("available", available).
		Msg("preflight checks passed")
	return nil
}

// probeWrite creates and removes a probe file to confirm both read and
// write access.
func probeWrite(dir string, log zerolog.Logger) error {
	probe, err := os.CreateTemp(dir, ".membank-probe-*")
	if err != nil {
		return &PermissionError{Dir: dir, Err: err}
	}
	name := probe.Name()
	defer func() {
		if rmErr := os.Remove(name); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", name).Msg("failed to remove probe file")
		}
	}()

	if _, err := probe.WriteString("probe"); err != nil {
		probe.Close()
		return &PermissionError{Dir: dir, Err: err}
	}
	if err := probe.Close(); err != nil {
		return &PermissionError{Dir: dir, Err: err}
	}
	if _, err := os.ReadFile(name); err != nil {
		return &PermissionError{Dir: dir, Err: err}
	}
	if _, err := os.ReadDir(filepath.Clean(dir)); err != nil {
		return &PermissionError{Dir: dir, Err: err}
	}
	return nil
}
