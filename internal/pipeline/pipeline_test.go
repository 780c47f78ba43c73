package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zacfermanis/memory-banks/internal/backup"
	"github.com/zacfermanis/memory-banks/internal/conflict"
	"github.com/zacfermanis/memory-banks/internal/paths"
	"github.com/zacfermanis/memory-banks/internal/template"
)

func testVars() template.Bag {
	return template.Bag{
		"project": template.Map(map[string]template.Value{
			"name": template.String("demo"),
		}),
		"withDocs": template.Bool(true),
	}
}

func TestGenerateFiles(t *testing.T) {
	dir := t.TempDir()
	p := New()

	files := []FileDefinition{
		{Path: "README.md", Content: "# {{project.name}}\n"},
		{Path: "{{project.name}}/notes.md", Content: "notes for {{project.name}}\n"},
	}

	result, err := p.GenerateFiles(context.Background(), files, testVars(), Options{OutputDir: dir})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 2, result.Summary.CreatedFiles)
	require.Len(t, result.Files, 2)

	content, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# demo\n", string(content))

	content, err = os.ReadFile(filepath.Join(dir, "demo", "notes.md"))
	require.NoError(t, err)
	assert.Equal(t, "notes for demo\n", string(content))
}

func TestGenerateFilesConditionSkip(t *testing.T) {
	dir := t.TempDir()
	p := New()

	files := []FileDefinition{
		{Path: "always.md", Content: "x"},
		{Path: "docs.md", Content: "d", Condition: "withDocs"},
		{Path: "never.md", Content: "n", Condition: "missingFlag"},
	}

	result, err := p.GenerateFiles(context.Background(), files, testVars(), Options{OutputDir: dir})
	require.NoError(t, err)

	assert.True(t, result.Success)
	// Result entries map only to non-skipped definitions.
	require.Len(t, result.Files, 2)
	assert.Equal(t, 2, result.Summary.CreatedFiles)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "missingFlag")

	_, err = os.Stat(filepath.Join(dir, "never.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestGenerateFilesPerFileErrorIsolation(t *testing.T) {
	dir := t.TempDir()
	p := New()

	files := []FileDefinition{
		{Path: "one.md", Content: "1"},
		{Path: "../escape.md", Content: "2"},
		{Path: "three.md", Content: "3"},
	}

	result, err := p.GenerateFiles(context.Background(), files, testVars(), Options{OutputDir: dir})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Summary.CreatedFiles)
	assert.Equal(t, 1, result.Summary.FailedFiles)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), "escape.md")

	for _, name := range []string{"one.md", "three.md"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestGenerateFilesRenderErrorIsolation(t *testing.T) {
	dir := t.TempDir()
	p := New()

	files := []FileDefinition{
		{Path: "good.md", Content: "fine"},
		{Path: "bad.md", Content: "{{broken"},
	}

	result, err := p.GenerateFiles(context.Background(), files, testVars(), Options{OutputDir: dir})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Summary.CreatedFiles)
	assert.Equal(t, 1, result.Summary.FailedFiles)

	var rerr *template.RenderError
	require.Len(t, result.Errors, 1)
	assert.ErrorAs(t, result.Errors[0], &rerr)
}

func TestGenerateFilesDuplicateDestinationsRejected(t *testing.T) {
	dir := t.TempDir()
	p := New()

	files := []FileDefinition{
		{Path: "{{project.name}}.md", Content: "a"},
		{Path: "demo.md", Content: "b"},
	}

	_, err := p.GenerateFiles(context.Background(), files, testVars(), Options{OutputDir: dir})
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	// Rejected before any mutation.
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestGenerateFilesAutomaticConflictPolicy(t *testing.T) {
	tests := []struct {
		name        string
		existing    []byte
		incoming    string
		wantStatus  Status
		wantBackup  bool
		wantContent string // final destination content, "" to skip check
	}{
		{
			name:        "empty destination overwritten",
			existing:    []byte{},
			incoming:    "",
			wantStatus:  StatusWritten,
			wantContent: "",
		},
		{
			name:       "10 KiB destination backed up",
			existing:   bytes.Repeat([]byte("x"), 10<<10),
			incoming:   "fresh",
			wantStatus: StatusWritten,
			wantBackup: true,
		},
		{
			name:       "2 MiB destination skipped",
			existing:   bytes.Repeat([]byte("x"), 2<<20),
			incoming:   "fresh",
			wantStatus: StatusSkipped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			p := New()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), tt.existing, 0o644))

			files := []FileDefinition{{Path: "a.md", Content: tt.incoming}}
			result, err := p.GenerateFiles(context.Background(), files, testVars(), Options{OutputDir: dir})
			require.NoError(t, err)

			require.Len(t, result.Files, 1)
			f := result.Files[0]
			assert.Equal(t, tt.wantStatus, f.Status)
			assert.Equal(t, tt.wantBackup, f.BackupPath != "")
			require.Len(t, result.Conflicts, 1)

			if tt.wantStatus == StatusSkipped {
				content, err := os.ReadFile(filepath.Join(dir, "a.md"))
				require.NoError(t, err)
				assert.Equal(t, tt.existing, content, "skipped destination must be untouched")
			}
			if tt.wantBackup {
				backedUp, err := os.ReadFile(f.BackupPath)
				require.NoError(t, err)
				assert.Equal(t, tt.existing, backedUp)
			}
		})
	}
}

func TestGenerateFilesExplicitStrategies(t *testing.T) {
	newDirWithFile := func(t *testing.T, content string) string {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte(content), 0o644))
		return dir
	}

	t.Run("skip leaves destination untouched and is not an error", func(t *testing.T) {
		dir := newDirWithFile(t, "keep me")
		p := New()
		result, err := p.GenerateFiles(context.Background(),
			[]FileDefinition{{Path: "a.md", Content: "new"}}, testVars(),
			Options{OutputDir: dir, Strategy: conflict.StrategySkip})
		require.NoError(t, err)

		assert.True(t, result.Success)
		assert.Equal(t, 1, result.Summary.SkippedFiles)
		content, _ := os.ReadFile(filepath.Join(dir, "a.md"))
		assert.Equal(t, "keep me", string(content))
	})

	t.Run("overwrite replaces without backup", func(t *testing.T) {
		dir := newDirWithFile(t, "old")
		p := New()
		result, err := p.GenerateFiles(context.Background(),
			[]FileDefinition{{Path: "a.md", Content: "new"}}, testVars(),
			Options{OutputDir: dir, Strategy: conflict.StrategyOverwrite})
		require.NoError(t, err)

		require.Len(t, result.Files, 1)
		assert.True(t, result.Files[0].Overwritten)
		assert.Empty(t, result.Files[0].BackupPath)
		content, _ := os.ReadFile(filepath.Join(dir, "a.md"))
		assert.Equal(t, "new", string(content))
	})

	t.Run("backup strategy is always reversible", func(t *testing.T) {
		dir := newDirWithFile(t, "old")
		p := New()
		result, err := p.GenerateFiles(context.Background(),
			[]FileDefinition{{Path: "a.md", Content: "new"}}, testVars(),
			Options{OutputDir: dir, Strategy: conflict.StrategyBackup})
		require.NoError(t, err)

		require.Len(t, result.Files, 1)
		f := result.Files[0]
		require.NotEmpty(t, f.BackupPath)

		content, _ := os.ReadFile(f.BackupPath)
		assert.Equal(t, "old", string(content))

		require.NoError(t, p.Backups().RollbackFile(f.AbsPath, f.BackupPath))
		content, _ = os.ReadFile(f.AbsPath)
		assert.Equal(t, "old", string(content))
	})

	t.Run("merge concatenates with conflict markers", func(t *testing.T) {
		dir := newDirWithFile(t, "old line\n")
		p := New()
		result, err := p.GenerateFiles(context.Background(),
			[]FileDefinition{{Path: "a.md", Content: "new line\n"}}, testVars(),
			Options{OutputDir: dir, Strategy: conflict.StrategyMerge})
		require.NoError(t, err)
		assert.True(t, result.Success)

		content, _ := os.ReadFile(filepath.Join(dir, "a.md"))
		merged := string(content)
		assert.Contains(t, merged, "<<<<<<< existing")
		assert.Contains(t, merged, "old line")
		assert.Contains(t, merged, "=======")
		assert.Contains(t, merged, "new line")
		assert.Contains(t, merged, ">>>>>>> incoming")
	})

	t.Run("ask without prompter yields ConflictError", func(t *testing.T) {
		dir := newDirWithFile(t, "old")
		p := New()
		result, err := p.GenerateFiles(context.Background(),
			[]FileDefinition{{Path: "a.md", Content: "new"}}, testVars(),
			Options{OutputDir: dir, Strategy: conflict.StrategyAsk})
		require.NoError(t, err)

		assert.False(t, result.Success)
		var cerr *conflict.ConflictError
		require.Len(t, result.Errors, 1)
		assert.ErrorAs(t, result.Errors[0], &cerr)
	})
}

func TestGenerateFilesCreateBackupsInvariant(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("precious"), 0o644))

	p := New()
	result, err := p.GenerateFiles(context.Background(),
		[]FileDefinition{{Path: "a.md", Content: "new"}}, testVars(),
		Options{OutputDir: dir, Strategy: conflict.StrategyOverwrite, CreateBackups: true})
	require.NoError(t, err)

	require.Len(t, result.Files, 1)
	f := result.Files[0]
	require.NotEmpty(t, f.BackupPath, "createBackups must back up every overwritten file")

	records := p.Backups().Records()
	require.Len(t, records, 1)
	assert.Equal(t, backup.StatusCompleted, records[0].Status)
	assert.True(t, strings.HasPrefix(records[0].Checksum, "sha256:"))
}

func TestGenerateFilesPerFileOverwriteFlag(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("old a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("old b"), 0o644))

	yes, no := true, false
	p := New()
	result, err := p.GenerateFiles(context.Background(),
		[]FileDefinition{
			{Path: "a.md", Content: "new a", Overwrite: &yes},
			{Path: "b.md", Content: "new b", Overwrite: &no},
		}, testVars(),
		Options{OutputDir: dir})
	require.NoError(t, err)

	assert.True(t, result.Success)
	content, _ := os.ReadFile(filepath.Join(dir, "a.md"))
	assert.Equal(t, "new a", string(content))
	content, _ = os.ReadFile(filepath.Join(dir, "b.md"))
	assert.Equal(t, "old b", string(content))
}

func TestPreviewGeneration(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.md"), []byte("old"), 0o644))

	files := []FileDefinition{
		{Path: "fresh.md", Content: "f"},
		{Path: "existing.md", Content: "e"},
	}

	p := New()
	preview, err := p.PreviewGeneration(context.Background(), files, testVars(), Options{OutputDir: dir})
	require.NoError(t, err)

	require.Len(t, preview.Entries, 2)
	assert.True(t, preview.Entries[0].WouldCreate)
	assert.False(t, preview.Entries[0].WouldOverwrite)
	assert.True(t, preview.Entries[1].WouldOverwrite)

	// Zero side effects: only the pre-existing file remains.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "existing.md", entries[0].Name())
	content, _ := os.ReadFile(filepath.Join(dir, "existing.md"))
	assert.Equal(t, "old", string(content))

	// Same conflict list a real run would report.
	generated, err := New().GenerateFiles(context.Background(), files, testVars(),
		Options{OutputDir: dir, Strategy: conflict.StrategySkip})
	require.NoError(t, err)
	require.Len(t, preview.Conflicts, len(generated.Conflicts))
	assert.Equal(t, generated.Conflicts[0].DestPath, preview.Conflicts[0].DestPath)
	assert.Equal(t, generated.Conflicts[0].Severity, preview.Conflicts[0].Severity)
}

func TestResultOrderMatchesInputOrder(t *testing.T) {
	dir := t.TempDir()
	p := New(WithWorkers(4))

	var files []FileDefinition
	for _, name := range []string{"e.md", "a.md", "z.md", "m.md", "b.md", "q.md"} {
		files = append(files, FileDefinition{Path: name, Content: "content of " + name})
	}

	result, err := p.GenerateFiles(context.Background(), files, testVars(), Options{OutputDir: dir})
	require.NoError(t, err)

	require.Len(t, result.Files, len(files))
	for i, f := range result.Files {
		assert.Equal(t, files[i].Path, f.RelPath)
	}
}

func TestGenerateFilesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context must never start a file, regardless of how
	// the scheduler orders the pool; repeat to shake out ordering luck.
	for i := 0; i < 50; i++ {
		dir := t.TempDir()
		p := New(WithWorkers(4))

		result, err := p.GenerateFiles(ctx,
			[]FileDefinition{{Path: "a.md", Content: "x"}, {Path: "b.md", Content: "y"}},
			testVars(), Options{OutputDir: dir})
		require.NoError(t, err)

		assert.False(t, result.Success)
		for _, f := range result.Files {
			require.Equal(t, StatusFailed, f.Status)
			require.ErrorIs(t, f.Err, context.Canceled)
			_, statErr := os.Stat(f.AbsPath)
			require.True(t, os.IsNotExist(statErr), "no file may be written after cancellation")
		}
	}
}

func TestRollbackGeneration(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.md"), []byte("original"), 0o644))

	p := New()
	result, err := p.GenerateFiles(context.Background(),
		[]FileDefinition{
			{Path: "fresh.md", Content: "new file"},
			{Path: "existing.md", Content: "replaced"},
		}, testVars(),
		Options{OutputDir: dir, Strategy: conflict.StrategyBackup})
	require.NoError(t, err)
	require.True(t, result.Success)

	rollback, err := p.RollbackGeneration(context.Background(), result.Files, Options{OutputDir: dir})
	require.NoError(t, err)
	assert.True(t, rollback.Success)
	assert.Len(t, rollback.RemovedFiles, 1)
	assert.Len(t, rollback.RestoredFiles, 1)

	_, err = os.Stat(filepath.Join(dir, "fresh.md"))
	assert.True(t, os.IsNotExist(err), "fresh file must be removed")

	content, err := os.ReadFile(filepath.Join(dir, "existing.md"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(content))

	// Rolling back twice is idempotent.
	again, err := p.RollbackGeneration(context.Background(), result.Files, Options{OutputDir: dir})
	require.NoError(t, err)
	assert.True(t, again.Success)
	content, err = os.ReadFile(filepath.Join(dir, "existing.md"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(content))
}

func TestGenerateDirectories(t *testing.T) {
	dir := t.TempDir()
	p := New()

	results, err := p.GenerateDirectories(context.Background(),
		[]string{"{{project.name}}-docs", "{{project.name}}-docs/api", "../escape"},
		testVars(), Options{OutputDir: dir})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Created)
	assert.True(t, results[1].Created)
	assert.Error(t, results[2].Err)

	info, err := os.Stat(filepath.Join(dir, "demo-docs", "api"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Existing directories are reported, not recreated.
	again, err := p.GenerateDirectories(context.Background(), []string{"demo-docs"}, testVars(), Options{OutputDir: dir})
	require.NoError(t, err)
	assert.False(t, again[0].Created)
}

func TestGenerateDirectoriesPreflight(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores permission bits")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	p := New()
	_, err := p.GenerateDirectories(context.Background(), []string{"docs"}, testVars(),
		Options{OutputDir: dir})

	var perr *paths.PermissionError
	require.Error(t, err)
	assert.ErrorAs(t, err, &perr)

	require.NoError(t, os.Chmod(dir, 0o755))
	_, statErr := os.Stat(filepath.Join(dir, "docs"))
	assert.True(t, os.IsNotExist(statErr), "nothing may be created when pre-flight fails")
}
