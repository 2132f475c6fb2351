package main

import (
	"fmt"
	"time"

	"researchvault/pkg/protocol"
	"researchvault/pkg/vault"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// tickMsg triggers the periodic refresh fallback.
type tickMsg time.Time

// snapshotMsg carries a fetched snapshot.
type snapshotMsg Snapshot

// tickCmd schedules the next polling refresh.
func tickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model is the Bubble Tea model for vault-dash.
type Model struct {
	store   *vault.Store
	dbPath  string
	project string
	branch  string

	snapshot Snapshot
	missions table.Model
	theme    Theme

	width  int
	height int
}

// newModel creates a dashboard model for (project, branch).
func newModel(store *vault.Store, dbPath, project, branch string) Model {
	theme := DefaultTheme()

	columns := []table.Column{
		{Title: "MISSION", Width: 16},
		{Title: "STATUS", Width: 12},
		{Title: "PRI", Width: 4},
		{Title: "QUERY", Width: 48},
	}
	missions := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(theme.Accent)
	styles.Selected = styles.Selected.Bold(true).Foreground(theme.Title)
	missions.SetStyles(styles)

	return Model{
		store:    store,
		dbPath:   dbPath,
		project:  project,
		branch:   branch,
		missions: missions,
		theme:    theme,
	}
}

// fetchCmd refreshes the snapshot off the Update loop.
func (m Model) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(fetchSnapshot(m.store, m.project, m.branch))
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), tickCmd(), watchDBFile(m.dbPath))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetchCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), tickCmd())

	case fsChangeMsg:
		// The db file changed under us; refresh and re-arm the watcher.
		return m, tea.Batch(m.fetchCmd(), watchDBFile(m.dbPath))

	case snapshotMsg:
		m.snapshot = Snapshot(msg)
		m.missions.SetRows(missionRows(m.snapshot))
		return m, nil
	}

	var cmd tea.Cmd
	m.missions, cmd = m.missions.Update(msg)
	return m, cmd
}

func missionRows(s Snapshot) []table.Row {
	rows := make([]table.Row, 0, len(s.Missions))
	for _, mission := range s.Missions {
		rows = append(rows, table.Row{
			mission.ID,
			mission.Status,
			fmt.Sprintf("%d", mission.Priority),
			mission.Query,
		})
	}
	return rows
}

// View implements tea.Model.
func (m Model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(m.theme.Title)
	muted := lipgloss.NewStyle().Foreground(m.theme.Muted)
	fail := lipgloss.NewStyle().Foreground(m.theme.Error)

	if m.snapshot.Err != nil {
		return fail.Render(fmt.Sprintf("error: %v", m.snapshot.Err)) + "\n" + muted.Render("q to quit")
	}
	if m.snapshot.State == nil {
		return muted.Render("loading…")
	}

	state := m.snapshot.State
	rec := m.snapshot.Recommendation

	header := title.Render(fmt.Sprintf("vault-dash  %s/%s", m.project, m.branch))
	metrics := fmt.Sprintf(
		"findings %d (avg conf %.2f, %d weak)   artifacts %d   links %d   coverage %.2f   progress %.2f",
		state.FindingsCount, state.AvgConfidence, state.LowConfidenceCount,
		state.ArtifactsCount, state.SynthesisLinks, state.Coverage, state.Progress,
	)
	queue := m.queueSummary(state.MissionsByStatus)

	next := title.Render("next: "+rec.Action) + "  " + rec.Title
	rationale := ""
	for _, r := range rec.Rationale {
		rationale += muted.Render("  - "+r) + "\n"
	}

	return header + "\n" +
		metrics + "\n" +
		queue + "\n\n" +
		m.missions.View() + "\n\n" +
		next + "\n" +
		rationale +
		muted.Render("r refresh · q quit")
}

// queueSummary renders per-status mission counts in their status hues.
func (m Model) queueSummary(byStatus map[string]int) string {
	out := "missions"
	for _, status := range []string{
		protocol.MissionOpen, protocol.MissionInProgress, protocol.MissionDone, protocol.MissionBlocked,
	} {
		n := byStatus[status]
		line := fmt.Sprintf("  %d %s", n, status)
		if n > 0 {
			line = lipgloss.NewStyle().Foreground(m.theme.StatusColor(status)).Render(line)
		} else {
			line = lipgloss.NewStyle().Foreground(m.theme.Muted).Render(line)
		}
		out += line
	}
	return out
}
