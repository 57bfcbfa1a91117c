// internal/tui/app.go
//
// The live dashboard for layers. It uses bubbletea, which follows The Elm
// Architecture:
//
// 1. Model: the last snapshot of worker state
// 2. Update: folds refresh results and key presses into the model
// 3. View: renders the model to a string
//
// The flow is: Tick -> Snapshot -> Update -> New Model -> View -> Screen

package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/layers/internal/agents"
	"github.com/kingrea/layers/internal/logbook"
	"github.com/kingrea/layers/internal/monitor"
	"github.com/kingrea/layers/internal/roster"
	"github.com/kingrea/layers/internal/tmux"
)

const (
	// DefaultInterval is the refresh period when none is configured.
	DefaultInterval = 3 * time.Second

	activityLines = 3
	detailLines   = 15
	historySize   = 5
)

// StatusSource samples the roster's session state.
type StatusSource interface {
	Status(ctx context.Context) ([]agents.WorkerStatus, error)
}

// PaneSource reads a worker's pane.
type PaneSource interface {
	CapturePane(ctx context.Context, target string, opts tmux.CaptureOptions) (string, error)
}

// HistorySource returns recent delivered messages.
type HistorySource interface {
	History(n int) ([]logbook.Record, int)
}

// Sources are the collaborators the dashboard reads from. History may be nil.
type Sources struct {
	Status  StatusSource
	Panes   PaneSource
	History HistorySource
}

// workerRow is one line of the dashboard.
type workerRow struct {
	Name     string
	Role     roster.Role
	Running  bool
	Activity string
}

type snapshotMsg struct {
	rows    []workerRow
	history []logbook.Record
	at      time.Time
	err     error
	// tick marks snapshots taken by the refresh timer.
	tick bool
}

type detailMsg struct {
	name string
	pane string
	err  error
}

// App is the dashboard model.
type App struct {
	ctx      context.Context
	sources  Sources
	interval time.Duration
	now      func() time.Time

	table   table.Model
	rows    []workerRow
	history []logbook.Record
	updated time.Time
	err     error

	detailName string
	detail     string

	// ticking is set once the refresh timer chain is armed.
	ticking bool

	width  int
	height int
}

// NewApp builds the dashboard. A non-positive interval uses DefaultInterval.
func NewApp(ctx context.Context, sources Sources, interval time.Duration) *App {
	if interval <= 0 {
		interval = DefaultInterval
	}
	columns := []table.Column{
		{Title: "Session", Width: 16},
		{Title: "Role", Width: 15},
		{Title: "State", Width: 10},
		{Title: "Latest activity", Width: 30},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(14),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#5B8DEF"))
	t.SetStyles(styles)
	return &App{
		ctx:      ctx,
		sources:  sources,
		interval: interval,
		now:      time.Now,
		table:    t,
	}
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return a.fetchSnapshot()
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.table.SetHeight(max(5, min(len(a.rows)+1, msg.Height-14)))
		return a, nil

	case snapshotMsg:
		a.err = msg.err
		if msg.err == nil {
			a.rows = msg.rows
			a.history = msg.history
			a.updated = msg.at
			a.table.SetRows(tableRows(msg.rows))
		}
		// Only the timer re-arms itself; manual refreshes ride along.
		if msg.tick || !a.ticking {
			a.ticking = true
			return a, a.scheduleRefresh()
		}
		return a, nil

	case detailMsg:
		if msg.name == a.detailName {
			if msg.err != nil {
				a.detail = monitor.ActivityUnavailable
			} else {
				a.detail = msg.pane
			}
		}
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "r":
			return a, a.fetchSnapshot()
		case "esc":
			a.detailName = ""
			a.detail = ""
			return a, nil
		case "enter":
			row := a.table.SelectedRow()
			if len(row) == 0 {
				return a, nil
			}
			a.detailName = row[0]
			a.detail = "Capturing..."
			return a, a.fetchDetail(row[0])
		}
	}

	var cmd tea.Cmd
	a.table, cmd = a.table.Update(msg)
	return a, cmd
}

// View renders the dashboard.
func (a *App) View() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		Render("⬡ LAYERS · live status")
	stamp := "never"
	if !a.updated.IsZero() {
		stamp = a.updated.Format("2006-01-02 15:04:05")
	}
	sub := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Render(fmt.Sprintf("refresh every %s | last update %s", a.interval, stamp))

	board := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(a.table.View())

	sections := []string{header, sub, board, a.renderCounts()}
	if a.err != nil {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Render("refresh failed: "+a.err.Error()))
	}
	if panel := a.renderDetail(); panel != "" {
		sections = append(sections, panel)
	}
	if panel := a.renderHistory(); panel != "" {
		sections = append(sections, panel)
	}
	sections = append(sections, lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render("↑/↓ select · enter pane · esc close · r refresh · q quit"))
	return strings.Join(sections, "\n")
}

func (a *App) renderCounts() string {
	running := 0
	for _, r := range a.rows {
		if r.Running {
			running++
		}
	}
	total := len(a.rows)
	up := lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD787")).
		Render(fmt.Sprintf("Running: %d/%d", running, total))
	down := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).
		Render(fmt.Sprintf("Stopped: %d/%d", total-running, total))
	return up + " | " + down
}

func (a *App) renderDetail() string {
	if a.detailName == "" {
		return ""
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render("PANE · " + a.detailName)
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.TrimRight(a.detail, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(head + "\n" + body)
}

func (a *App) renderHistory() string {
	if len(a.history) == 0 {
		return ""
	}
	lines := make([]string, len(a.history))
	for i, rec := range a.history {
		line := fmt.Sprintf("%s %s → %s [%s]", shortTime(rec.Timestamp), rec.From, rec.To, rec.Type)
		if rec.Subject != "" {
			line += " " + rec.Subject
		}
		lines[i] = line
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render("MESSAGES · " + logbook.MessagesFile)
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(head + "\n" + body)
}

func (a *App) fetchSnapshot() tea.Cmd {
	return func() tea.Msg {
		return a.buildSnapshot()
	}
}

func (a *App) scheduleRefresh() tea.Cmd {
	return tea.Tick(a.interval, func(time.Time) tea.Msg {
		msg := a.buildSnapshot()
		msg.tick = true
		return msg
	})
}

func (a *App) fetchDetail(name string) tea.Cmd {
	return func() tea.Msg {
		start := -detailLines
		pane, err := a.sources.Panes.CapturePane(a.ctx, name, tmux.CaptureOptions{StartLine: &start})
		return detailMsg{name: name, pane: pane, err: err}
	}
}

// buildSnapshot samples every worker, capturing activity for the running
// ones concurrently.
func (a *App) buildSnapshot() snapshotMsg {
	statuses, err := a.sources.Status.Status(a.ctx)
	if err != nil {
		return snapshotMsg{err: err}
	}
	rows := make([]workerRow, len(statuses))
	var wg sync.WaitGroup
	for i, s := range statuses {
		rows[i] = workerRow{Name: s.Name, Role: s.Role, Running: s.Running, Activity: monitor.ActivityIdle}
		if !s.Running {
			continue
		}
		wg.Add(1)
		go func(row *workerRow) {
			defer wg.Done()
			row.Activity = a.activity(row.Name)
		}(&rows[i])
	}
	wg.Wait()

	msg := snapshotMsg{rows: rows, at: a.now()}
	if a.sources.History != nil {
		msg.history, _ = a.sources.History.History(historySize)
	}
	return msg
}

func (a *App) activity(name string) string {
	pane, err := a.sources.Panes.CapturePane(a.ctx, name, tmux.LastLines(activityLines))
	if err != nil {
		return monitor.ActivityUnavailable
	}
	return monitor.Activity(pane)
}

func tableRows(rows []workerRow) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		state := "○ stopped"
		if r.Running {
			state = "● running"
		}
		out[i] = table.Row{r.Name, roleName(r.Role), state, r.Activity}
	}
	return out
}

var roleNames = map[roster.Role]string{
	roster.RoleProducer:   "Producer",
	roster.RoleDirector:   "Director",
	roster.RoleLeadDesign: "Lead Designer",
	roster.RoleLeadProg:   "Lead Prog",
	roster.RoleLeadQA:     "QA Lead",
	roster.RoleDesigner:   "Designer",
	roster.RoleProgrammer: "Programmer",
	roster.RoleTester:     "Tester",
}

func roleName(role roster.Role) string {
	if name, ok := roleNames[role]; ok {
		return name
	}
	if role == "" {
		return "-"
	}
	return string(role)
}

func shortTime(ts string) string {
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return parsed.Local().Format("15:04:05")
}
