package input

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zacfermanis/memory-banks/internal/conflict"
)

var (
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("yellow")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("cyan")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("white")).Bold(true)
)

// MenuPrompter resolves conflicts through an interactive terminal menu.
// It implements conflict.Prompter; install it on the conflict resolver
// when the run strategy is "ask".
type MenuPrompter struct{}

// NewMenuPrompter creates an interactive conflict prompter.
func NewMenuPrompter() *MenuPrompter {
	return &MenuPrompter{}
}

// Decide shows the conflict menu and returns the chosen action.
// Selecting "Show existing content" opens a scrollable viewer and then
// returns to the menu, so the user can review the file more than once
// before deciding. Cancelling aborts with an error.
func (mp *MenuPrompter) Decide(ctx context.Context, c *conflict.Conflict) (conflict.Action, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		model := newConflictMenuModel(c)
		final, err := tea.NewProgram(model).Run()
		if err != nil {
			return "", fmt.Errorf("showing conflict menu: %w", err)
		}

		result := final.(conflictMenuModel)
		if result.selected == nil || *result.selected == choiceCancel {
			return "", fmt.Errorf("cancelled at %s", c.DestPath)
		}

		switch *result.selected {
		case choiceView:
			if err := showExisting(c.DestPath); err != nil {
				return "", err
			}
			continue
		case choiceOverwrite:
			return conflict.ActionOverwrite, nil
		case choiceBackup:
			return conflict.ActionBackupRename, nil
		case choiceMerge:
			return conflict.ActionMerge, nil
		case choiceSkip:
			return conflict.ActionSkip, nil
		}
	}
}

type menuChoice int

const (
	choiceView menuChoice = iota
	choiceSkip
	choiceBackup
	choiceOverwrite
	choiceMerge
	choiceCancel
)

type conflictMenuModel struct {
	conflict *conflict.Conflict
	choices  []string
	cursor   int
	selected *menuChoice
}

func newConflictMenuModel(c *conflict.Conflict) conflictMenuModel {
	return conflictMenuModel{
		conflict: c,
		choices: []string{
			"Show existing content",
			"Skip (keep existing file)",
			"Back up, then overwrite",
			"Overwrite (replace existing file)",
			"Merge (keep both, with markers)",
			"Cancel",
		},
	}
}

func (m conflictMenuModel) Init() tea.Cmd {
	return nil
}

func (m conflictMenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(m.choices)-1 {
				m.cursor++
			}

		case "enter":
			choice := menuChoice(m.cursor)
			m.selected = &choice
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m conflictMenuModel) View() string {
	var b strings.Builder

	b.WriteString(warningStyle.Render("Conflict: ") + titleStyle.Render(m.conflict.DestPath) + "\n")
	b.WriteString(mutedStyle.Render("    "+m.conflict.Describe()) + "\n")
	if !m.conflict.DestModTime.IsZero() {
		b.WriteString(mutedStyle.Render("    Last modified: ") + formatRelativeTime(m.conflict.DestModTime) + "\n")
	}
	b.WriteString(mutedStyle.Render("    Size: ") + formatFileSize(m.conflict.DestSize) + "\n\n")

	b.WriteString(mutedStyle.Render("    [↑/↓] Navigate    [Enter] Select    [q] Cancel") + "\n\n")

	for i, choice := range m.choices {
		if m.cursor == i {
			b.WriteString("    " + selectedStyle.Render("> "+choice) + "\n")
		} else {
			b.WriteString("      " + choice + "\n")
		}
	}

	return b.String()
}

// showExisting opens the destination file in a full-screen scrollable
// viewport.
func showExisting(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	model := newFileViewerModel(path, string(content))
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("showing file: %w", err)
	}
	return nil
}

type fileViewerModel struct {
	path     string
	content  string
	viewport viewport.Model
	ready    bool
}

func newFileViewerModel(path, content string) fileViewerModel {
	return fileViewerModel{path: path, content: content}
}

func (m fileViewerModel) Init() tea.Cmd {
	return nil
}

func (m fileViewerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc", "enter":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		headerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight)
			m.viewport.SetContent(m.content)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m fileViewerModel) View() string {
	if !m.ready {
		return "loading..."
	}
	header := titleStyle.Render(m.path) + mutedStyle.Render("  [↑/↓] Scroll    [q] Back") + "\n\n"
	return header + m.viewport.View()
}

func formatRelativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	}
}

func formatFileSize(size int64) string {
	switch {
	case size < 1<<10:
		return fmt.Sprintf("%d B", size)
	case size < 1<<20:
		return fmt.Sprintf("%.1f KB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%.1f MB", float64(size)/(1<<20))
	}
}
