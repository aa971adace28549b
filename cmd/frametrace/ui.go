package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// snapshotMsg carries a freshly published snapshot into the model.
type snapshotMsg Snapshot

// snapshotsClosedMsg is sent once the sampling loop has stopped publishing.
type snapshotsClosedMsg struct{}

// uiModel renders the live hold view: the fps line, past holds (oldest at the
// top, newest right above the separator) and the current key row.
//
// Only ctrl+c quits. The tracked keys are usually typed into this terminal,
// so no printable key may act as a command.
type uiModel struct {
	snapshots <-chan Snapshot
	snap      Snapshot
	hasSnap   bool
	maxRows   int

	width  int
	height int
}

func newUIModel(snapshots <-chan Snapshot, initial Snapshot, maxRows int) uiModel {
	if maxRows <= 0 {
		maxRows = defaultUIMaxRows
	}
	return uiModel{
		snapshots: snapshots,
		snap:      initial,
		hasSnap:   initial.RunID != "",
		maxRows:   maxRows,
	}
}

// waitForSnapshot blocks on the publisher channel in a tea.Cmd goroutine.
func waitForSnapshot(ch <-chan Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return snapshotsClosedMsg{}
		}
		return snapshotMsg(s)
	}
}

func (m uiModel) Init() tea.Cmd {
	return waitForSnapshot(m.snapshots)
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case snapshotMsg:
		m.snap = Snapshot(msg)
		m.hasSnap = true
		return m, waitForSnapshot(m.snapshots)

	case snapshotsClosedMsg:
		return m, tea.Quit
	}
	return m, nil
}

// --- View rendering ---

var (
	activeKeyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#79BCB0"))
	inactiveKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#282828"))
	separatorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#79BCB0"))
	dimStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func (m uiModel) View() string {
	if !m.hasSnap {
		return dimStyle.Render("Waiting for input...")
	}

	var b strings.Builder

	b.WriteString(activeKeyStyle.Render(fpsLine(m.snap)))
	b.WriteString("\n\n")

	for _, row := range m.holdRows() {
		b.WriteString(activeKeyStyle.Render(row))
		b.WriteRune('\n')
	}

	b.WriteString(separatorStyle.Render(strings.Repeat("─", m.separatorWidth())))
	b.WriteRune('\n')
	b.WriteString(m.currentRow())

	return b.String()
}

// fpsLine formats the sampling rate and the interval uncertainty in frames.
func fpsLine(s Snapshot) string {
	return fmt.Sprintf("%4d fps +/- %.2ff", s.Metrics.LastFPS, s.FrameUncertainty())
}

// glyphColumns renders the active keys of an Edge, one column per channel.
func glyphColumns(channels []ChannelInfo, e Edge) string {
	var b strings.Builder
	for _, ch := range channels {
		if e.Active(ch.Ordinal) {
			b.WriteString(ch.Glyph)
		} else {
			b.WriteRune(' ')
		}
		b.WriteRune(' ')
	}
	return b.String()
}

// holdRow is one completed hold: its keys and the held frames.
func holdRow(channels []ChannelInfo, h HeldSpan) string {
	return glyphColumns(channels, h.Edge) + fmt.Sprintf("%8.2f f ±%.2f", h.Estimate.Frames, h.Estimate.Uncertainty)
}

// holdRows returns at most maxRows rows, oldest first, so the newest hold
// sits right above the separator.
func (m uiModel) holdRows() []string {
	holds := m.snap.Holds
	if len(holds) > m.maxRows {
		holds = holds[:m.maxRows]
	}
	rows := make([]string, len(holds))
	for i, h := range holds {
		rows[len(holds)-1-i] = holdRow(m.snap.Channels, h)
	}
	return rows
}

// currentRow draws every channel glyph, lit when the key is held now.
func (m uiModel) currentRow() string {
	cur, _ := m.snap.Current()
	parts := make([]string, 0, len(m.snap.Channels))
	for _, ch := range m.snap.Channels {
		style := inactiveKeyStyle
		if cur.Active(ch.Ordinal) {
			style = activeKeyStyle
		}
		parts = append(parts, style.Render(ch.Glyph))
	}
	return strings.Join(parts, " ")
}

func (m uiModel) separatorWidth() int {
	w := 2*len(m.snap.Channels) + 16
	if m.width > 0 && w > m.width {
		w = m.width
	}
	return w
}

// runUI runs the terminal view until ctrl+c or ctx is canceled. Quitting the
// view calls cancel so the rest of the program shuts down with it.
func runUI(ctx context.Context, cancel context.CancelFunc, snapshots <-chan Snapshot, initial Snapshot, maxRows int) error {
	defer cancel()

	// WithContext ends the program with ErrProgramKilled once ctx is done.
	p := tea.NewProgram(newUIModel(snapshots, initial, maxRows), tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
