package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zacfermanis/memory-banks/internal/backup"
	"github.com/zacfermanis/memory-banks/internal/filelock"
	"github.com/zacfermanis/memory-banks/internal/pipeline"
)

// manifestName is the run manifest written next to generated files.
// Rollback and backup inspection read it back.
const manifestName = ".membank-run.yml"

// runManifest records what one generation run did.
type runManifest struct {
	Template    string                `yaml:"template"`
	OutputDir   string                `yaml:"outputDir"`
	GeneratedAt time.Time             `yaml:"generatedAt"`
	Files       []pipeline.FileResult `yaml:"files"`
	Backups     []backup.Record       `yaml:"backups,omitempty"`
}

func writeManifest(outputDir string, m *runManifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding run manifest: %w", err)
	}
	return filelock.AtomicWrite(filepath.Join(outputDir, manifestName), data, 0o644)
}

func readManifest(outputDir string) (*runManifest, error) {
	path := filepath.Join(outputDir, manifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no run manifest at %s: nothing to roll back", path)
		}
		return nil, err
	}

	var m runManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing run manifest %s: %w", path, err)
	}
	return &m, nil
}
