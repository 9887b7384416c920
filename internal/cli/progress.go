package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/diligence/internal/models"
	"github.com/raphaelgruber/diligence/internal/service"
)

// errInterrupted is returned when the user stops watching before the job ends.
var errInterrupted = errors.New("analysis interrupted")

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// snapshotSource is satisfied by *service.StatusRecord.
type snapshotSource interface {
	Snapshot() models.Snapshot
}

// tickMsg triggers reading the status record.
type tickMsg time.Time

// snapshotMsg carries the latest status snapshot.
type snapshotMsg models.Snapshot

// progressModel is the bubbletea model for a running analysis. It only
// reads the status record, one snapshot per tick.
type progressModel struct {
	source   snapshotSource
	interval time.Duration
	snap     models.Snapshot
	loaded   bool
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
}

func newProgressModel(source snapshotSource, interval time.Duration) progressModel {
	if interval <= 0 {
		interval = service.DefaultPollInterval
	}
	return progressModel{
		source:   source,
		interval: interval,
		progress: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(40),
		),
		theme: defaultTheme,
	}
}

// Init reads the record right away, then once per interval.
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.readSnapshot(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.readSnapshot()

	case snapshotMsg:
		m.snap = models.Snapshot(msg)
		m.loaded = true
		if m.snap.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, m.tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.quitting {
		return m.theme.hintStyle().Render("\nStopped watching; the analysis was interrupted.\n")
	}
	if m.done {
		return m.finalView()
	}
	if !m.loaded {
		return "Loading job status...\n"
	}

	status := m.theme.statusStyle().Render(m.snap.StatusText)
	bar := m.progress.ViewAs(m.snap.Progress)
	pct := fmt.Sprintf("%3.0f%%", m.snap.Progress*100)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n%s\n", bar, pct, status)
	if n := len(m.snap.Stages); n > 0 {
		sb.WriteString(m.theme.hintStyle().Render(fmt.Sprintf("%d agents ran", n)))
		sb.WriteString("\n")
	}
	sb.WriteString(m.theme.hintStyle().Render("Press q to stop watching"))
	sb.WriteString("\n")
	return sb.String()
}

func (m progressModel) finalView() string {
	if m.snap.Failed() {
		return m.theme.errorStyle().Render(fmt.Sprintf("✗ An error occurred: %s", *m.snap.Error)) + "\n"
	}
	return m.progress.ViewAs(1) + "\n" + m.theme.completedStyle().Render("✓ Analysis complete!") + "\n"
}

func (m progressModel) readSnapshot() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(m.source.Snapshot())
	}
}

func (m progressModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runProgressUI shows the interactive progress bar until the job is
// terminal. It returns errInterrupted if the user quits first or ctx is
// canceled.
func runProgressUI(ctx context.Context, source snapshotSource, interval time.Duration, opts ...tea.ProgramOption) (models.Snapshot, error) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(newProgressModel(source, interval), opts...)

	finalModel, err := p.Run()
	if ctx.Err() != nil {
		snap := source.Snapshot()
		if m, ok := finalModel.(progressModel); ok && m.loaded {
			snap = m.snap
		}
		return snap, errInterrupted
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("progress UI error: %w", err)
	}

	m, ok := finalModel.(progressModel)
	if !ok {
		return models.Snapshot{}, errors.New("progress UI returned unexpected model")
	}
	if m.quitting {
		return m.snap, errInterrupted
	}
	return m.snap, nil
}
