package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
)

// Model is the BubbleTea dashboard model.
type Model struct {
	daemonURL string
	interval  time.Duration

	lastUpdate time.Time
	hasPrev    bool
	prev       Snapshot
	rates      Rates
	err        error
	quitting   bool

	workerProgress   progress.Model
	approvalProgress progress.Model

	requestRateHistory []float64
	workerRateHistory  []float64
}

// Rates holds per-tick derived values computed by diffing consecutive
// Snapshots, since every statmcpd_* counter is cumulative.
type Rates struct {
	RequestRate      float64
	RequestErrorRate float64
	AvgLatency       float64
	WorkerActive     float64
	WorkerRate       float64
	ApprovalApproved float64
	ApprovalDenied   float64
}

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard model polling daemonURL every interval.
func NewModel(daemonURL string, interval time.Duration) Model {
	return Model{
		daemonURL: daemonURL,
		interval:  interval,
		workerProgress: progress.New(
			progress.WithGradient("#00ff00", "#ffff00"),
			progress.WithWidth(40),
		),
		approvalProgress: progress.New(
			progress.WithGradient("#00ffff", "#ff0000"),
			progress.WithWidth(40),
		),
		requestRateHistory: make([]float64, 0, historySize),
		workerRateHistory:  make([]float64, 0, historySize),
	}
}

func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}
	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	return sparklineStyle.Render(spark.View())
}

type tickMsg time.Time
type snapshotMsg Snapshot
type errMsg error

// Init starts the auto-refresh loop and kicks off the first fetch.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), fetchSnapshot(m.daemonURL))
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func fetchSnapshot(daemonURL string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		snap, err := NewMetricsClient(daemonURL).Fetch(ctx)
		if err != nil {
			return errMsg(err)
		}
		return snapshotMsg(snap)
	}
}

// Update handles BubbleTea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchSnapshot(m.daemonURL)
		}

	case tickMsg:
		return m, tea.Batch(tick(m.interval), fetchSnapshot(m.daemonURL))

	case snapshotMsg:
		snap := Snapshot(msg)
		intervalSec := m.interval.Seconds()
		if intervalSec <= 0 {
			intervalSec = 1
		}
		if m.hasPrev {
			m.rates.RequestRate = (snap.RequestsOK - m.prev.RequestsOK) / intervalSec
			m.rates.RequestErrorRate = (snap.RequestsError - m.prev.RequestsError) / intervalSec
			m.rates.WorkerRate = (snap.WorkerCompleted - m.prev.WorkerCompleted) / intervalSec
		}
		m.rates.WorkerActive = snap.WorkerActive
		m.rates.ApprovalApproved = snap.ApprovalApproved
		m.rates.ApprovalDenied = snap.ApprovalDenied
		if snap.RequestCount > 0 {
			m.rates.AvgLatency = snap.RequestDuration / snap.RequestCount
		}

		m.requestRateHistory = appendToHistory(m.requestRateHistory, m.rates.RequestRate)
		m.workerRateHistory = appendToHistory(m.workerRateHistory, m.rates.WorkerRate)

		m.prev = snap
		m.hasPrev = true
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	header := headerStyle.Render("statmcp Monitor")

	content := "\n" +
		errorStyle.Render("⚠ Cannot reach statmcp daemon") + "\n\n" +
		dimStyle.Render("URL: ") + valueStyle.Render(m.daemonURL) + "\n" +
		dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n\n" +
		dimStyle.Render("Please ensure the daemon is running, e.g.:") + "\n" +
		dimStyle.Render("  statmcp serve-http --port 8787") + "\n\n" +
		footerStyle.Render("[q] quit  [r] retry") + "\n"

	return containerStyle.Render(header + "\n" + content)
}

func (m Model) renderDashboard() string {
	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}

	statusBadge := healthyStyle.Render("✓ HEALTHY")
	if m.rates.RequestErrorRate > 0 {
		statusBadge = errorStyle.Render("⚠ ERRORS")
	}

	header := headerStyle.Render(" statmcp Monitor ")
	headerLine := fmt.Sprintf("%s   %s   %s",
		statusBadge,
		dimStyle.Render("Polling:"),
		valueStyle.Render(m.daemonURL))

	content := header + "\n" + headerLine + "\n"

	content += "\n" + sectionStyle.Render("┃ Requests") + "\n"
	content += labelStyle.Render("  Rate: ") +
		valueStyle.Render(FormatRate(m.rates.RequestRate)) +
		"   " + createSparkline(m.requestRateHistory) + "\n"
	content += labelStyle.Render("  Errors: ") +
		valueStyle.Render(FormatRate(m.rates.RequestErrorRate)) +
		"  " + labelStyle.Render("Avg latency: ") +
		valueStyle.Render(FormatLatency(m.rates.AvgLatency)) + "\n"
	content += labelStyle.Render("  Updated: ") + dimStyle.Render(lastUpdateStr) + "\n"

	content += "\n" + sectionStyle.Render("┃ Worker pool") + "\n"
	content += labelStyle.Render("  Completions: ") +
		valueStyle.Render(FormatRate(m.rates.WorkerRate)) +
		"   " + createSparkline(m.workerRateHistory) + "\n"
	content += labelStyle.Render("  Active: ") +
		m.workerProgress.ViewAs(m.rates.WorkerActive/workerActiveScale) +
		" " + valueStyle.Render(FormatCount(m.rates.WorkerActive)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Approvals") + "\n"
	total := m.rates.ApprovalApproved + m.rates.ApprovalDenied
	ratio := 0.0
	if total > 0 {
		ratio = m.rates.ApprovalDenied / total
	}
	content += labelStyle.Render("  Denied / total: ") +
		m.approvalProgress.ViewAs(ratio) +
		" " + dimStyle.Render(fmt.Sprintf("%.0f/%.0f", m.rates.ApprovalDenied, total)) + "\n"

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
	content += "\n" + footer

	return containerStyle.Render(content)
}

// workerActiveScale bounds the worker-active progress bar; statmcp's
// default worker.max_concurrent is 4, so anything above a handful of
// concurrent subprocesses already reads as "full" on the bar.
const workerActiveScale = 8.0
