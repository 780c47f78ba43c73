package backup

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zacfermanis/memory-banks/internal/logging"
)

// Options configures backup storage. Compression and encryption are
// independent and composable.
type Options struct {
	Compress   bool
	Passphrase string // enables AES-256-GCM when non-empty
}

// Manager creates, verifies and restores backups. Its in-memory record
// log is append-only and safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	records []Record
	codec   codec
	log     zerolog.Logger

	// now is swappable so collision tests can pin the timestamp.
	now func() time.Time
}

// NewManager creates a backup manager.
func NewManager(opts Options) *Manager {
	return &Manager{
		codec: newCodec(opts.Compress, opts.Passphrase),
		log:   logging.Get("backup"),
		now:   time.Now,
	}
}

// Create makes a full backup of path as a sibling file
// `{path}.backup.{YYYYMMDD-HHMMSS}`. The original content is
// checksummed before the copy and the stored copy is verified after;
// the record is completed only when both match. A failed backup leaves
// the original untouched and is fatal for that file only.
func (m *Manager) Create(path string) (*Record, error) {
	return m.CreateWithStrategy(path, StrategyFull)
}

// CreateWithStrategy makes a backup using the given strategy.
// Incremental and differential backups require a prior completed full
// backup of the same target, whose ID keys the delta chain.
func (m *Manager) CreateWithStrategy(path string, strategy Strategy) (*Record, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("reading backup target %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cannot back up %s: directory backups are taken per file", path)
	}

	rec := newRecord(path, false, strategy)
	rec.OriginalMode = info.Mode().Perm()

	if strategy != StrategyFull {
		base := m.lastFull(path)
		if base == nil {
			return nil, fmt.Errorf("%s backup of %s requires a prior full backup", strategy, path)
		}
		rec.BaseID = base.ID
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading backup target %s: %w", path, err)
	}
	rec.Checksum = checksum(content)
	rec.OriginalSize = int64(len(content))

	data, compressed, encrypted, err := m.codec.encode(content)
	if err != nil {
		return nil, err
	}
	rec.Compressed = compressed
	rec.Encrypted = encrypted

	backupPath, err := m.writeBackup(path, data)
	if err != nil {
		return nil, err
	}
	rec.BackupPath = backupPath
	rec.BackupSize = int64(len(data))

	// Verify the stored copy before the original is ever touched.
	if err := m.verifyStored(&rec); err != nil {
		rec.Status = StatusFailed
		m.append(rec)
		return nil, err
	}
	rec.Status = StatusCompleted
	m.append(rec)

	m.log.Debug().
		Str("target", path).
		Str("backup", rec.BackupPath).
		Str("strategy", string(strategy)).
		Int64("size", rec.OriginalSize).
		Msg("backup created")
	return &rec, nil
}

// Verify re-reads the stored backup and checks it still decodes to the
// recorded checksum. Wrong keys and tampered ciphertext fail here.
func (m *Manager) Verify(rec *Record) error {
	return m.verifyStored(rec)
}

// RollbackFile restores path from backupPath: bytes and permissions.
// Idempotent; the backup file itself is never deleted.
func (m *Manager) RollbackFile(path, backupPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("reading backup %s: %w", backupPath, err)
	}

	mode := os.FileMode(0o644)
	compressed, encrypted := false, false
	if rec := m.findByBackupPath(backupPath); rec != nil {
		compressed, encrypted = rec.Compressed, rec.Encrypted
		if rec.OriginalMode != 0 {
			mode = rec.OriginalMode
		}
	}

	content, err := m.codec.decode(data, compressed, encrypted)
	if err != nil {
		return &IntegrityError{Target: path, BackupPath: backupPath, Reason: err.Error()}
	}

	if err := os.WriteFile(path, content, mode); err != nil {
		return fmt.Errorf("restoring %s: %w", path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("restoring permissions on %s: %w", path, err)
	}

	m.log.Debug().Str("target", path).Str("backup", backupPath).Msg("file rolled back")
	return nil
}

// RollbackToStep reconstructs the state of path as of records[index].
// The chain must start with a full backup; deltas are replayed in
// creation order up to and including the chosen step.
func (m *Manager) RollbackToStep(path string, records []Record, index int) error {
	if index < 0 || index >= len(records) {
		return fmt.Errorf("rollback step %d out of range (have %d backups)", index, len(records))
	}
	if records[0].Strategy != StrategyFull {
		return fmt.Errorf("backup chain for %s must start with a full backup", path)
	}

	// Each stored step carries the complete content as of its creation,
	// so replaying in order reduces to the latest step at or before
	// index whose chain is intact.
	for i := 1; i <= index; i++ {
		if records[i].Strategy == StrategyFull {
			return fmt.Errorf("unexpected full backup mid-chain at step %d", i)
		}
		base := records[i].BaseID
		if records[i].Strategy == StrategyIncremental || records[i].Strategy == StrategyDifferential {
			if base != records[0].ID {
				return fmt.Errorf("step %d is keyed to backup %s, not the chain's full backup", i, base)
			}
		}
	}

	return m.RollbackFile(path, records[index].BackupPath)
}

// Records returns a snapshot of the append-only record log.
func (m *Manager) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Cleanup deletes a backup file and is the only way a backup is ever
// removed.
func (m *Manager) Cleanup(rec *Record) error {
	if err := os.Remove(rec.BackupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing backup %s: %w", rec.BackupPath, err)
	}
	return nil
}

// writeBackup stores data beside the target, disambiguating timestamp
// collisions with an incrementing numeric suffix. Rapid successive
// backups of one file within the same second must not clobber each
// other, so the name is claimed with O_EXCL.
func (m *Manager) writeBackup(target string, data []byte) (string, error) {
	stamp := m.now().Format("20060102-150405")
	base := fmt.Sprintf("%s.backup.%s", target, stamp)

	candidate := base
	for n := 1; ; n++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if os.IsExist(err) {
			candidate = fmt.Sprintf("%s.%d", base, n)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("creating backup file %s: %w", candidate, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("writing backup file %s: %w", candidate, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("writing backup file %s: %w", candidate, err)
		}
		return candidate, nil
	}
}

func (m *Manager) verifyStored(rec *Record) error {
	data, err := os.ReadFile(rec.BackupPath)
	if err != nil {
		return &IntegrityError{Target: rec.Target, BackupPath: rec.BackupPath, Reason: err.Error()}
	}
	content, err := m.codec.decode(data, rec.Compressed, rec.Encrypted)
	if err != nil {
		return &IntegrityError{Target: rec.Target, BackupPath: rec.BackupPath, Reason: err.Error()}
	}
	if sum := checksum(content); sum != rec.Checksum {
		return &IntegrityError{
			Target:     rec.Target,
			BackupPath: rec.BackupPath,
			Reason:     fmt.Sprintf("checksum mismatch: recorded %s, stored %s", rec.Checksum, sum),
		}
	}
	return nil
}

// Adopt loads previously persisted records into the manager, so a new
// process can verify and restore backups taken by an earlier run.
// Encrypted backups additionally need the original passphrase.
func (m *Manager) Adopt(records []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
}

func (m *Manager) append(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

func (m *Manager) findByBackupPath(backupPath string) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].BackupPath == backupPath {
			rec := m.records[i]
			return &rec
		}
	}
	return nil
}

func (m *Manager) lastFull(target string) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if r.Target == target && r.Strategy == StrategyFull && r.Status == StatusCompleted {
			rec := r
			return &rec
		}
	}
	return nil
}
