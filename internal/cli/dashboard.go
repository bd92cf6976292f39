package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pmbridge/pmbridge/pkg/models"
)

// Dashboard panel indices.
const (
	panelTasks = iota
	panelActivity
	panelCount
)

const dashboardRefreshInterval = 2 * time.Second

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	// Data.
	tasks  []models.Task
	events []models.ActivityEvent
	alerts int

	loading bool
	err     error
}

// dashboardDataMsg carries loaded data back to the model.
type dashboardDataMsg struct {
	tasks  []models.Task
	events []models.ActivityEvent
	alerts int
	err    error
}

type dashboardTickMsg struct{}

// Style definitions.
var (
	dashTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	dashPanelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	dashActivePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	dashHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	dashAlertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dashHelpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel() dashboardModel {
	return dashboardModel{activePanel: panelTasks, loading: true}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(loadDashboardData, dashboardTick())
}

func dashboardTick() tea.Cmd {
	return tea.Tick(dashboardRefreshInterval, func(time.Time) tea.Msg {
		return dashboardTickMsg{}
	})
}

func loadDashboardData() tea.Msg {
	var msg dashboardDataMsg
	if Engine == nil {
		msg.err = fmt.Errorf("workflow engine not initialized")
		return msg
	}

	tasks, err := Engine.ListTasks()
	if err != nil {
		msg.err = err
		return msg
	}
	msg.tasks = tasks

	if Broker != nil {
		msg.events = Broker.RecentEvents(30)
	} else if Recorder != nil {
		msg.events, _ = Recorder.ReadRecent(30)
	}
	if AlertEngine != nil {
		if alerts, err := AlertEngine.Evaluate(); err == nil {
			msg.alerts = len(alerts)
		}
	}
	return msg
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, loadDashboardData
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case dashboardTickMsg:
		return m, tea.Batch(loadDashboardData, dashboardTick())
	case dashboardDataMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.tasks = msg.tasks
			m.events = msg.events
			m.alerts = msg.alerts
		}
		return m, nil
	}
	return m, nil
}

func (m dashboardModel) View() string {
	var b strings.Builder

	title := "pmbridge dashboard"
	if m.alerts > 0 {
		title += dashAlertStyle.Render(fmt.Sprintf("  %d alert(s)", m.alerts))
	}
	b.WriteString(dashTitleStyle.Render(title) + "\n\n")

	if m.err != nil {
		b.WriteString(fmt.Sprintf("error: %v\n", m.err))
		return b.String()
	}
	if m.loading && len(m.tasks) == 0 {
		b.WriteString("loading...\n")
		return b.String()
	}

	panelWidth := 44
	if m.width > 100 {
		panelWidth = (m.width - 12) / 2
	}

	left := m.renderTasksPanel(panelWidth)
	right := m.renderActivityPanel(panelWidth)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right))

	b.WriteString("\n" + dashHelpStyle.Render("tab: switch panel  r: refresh  q: quit") + "\n")
	return b.String()
}

func (m dashboardModel) renderTasksPanel(width int) string {
	var b strings.Builder
	b.WriteString(dashHeaderStyle.Render("Tasks") + "\n")

	counts := make(map[models.TaskStatus]int)
	for _, task := range m.tasks {
		counts[task.Status]++
	}
	b.WriteString(fmt.Sprintf("pending %d  in_progress %d  review %d  done %d\n\n",
		counts[models.StatusPending], counts[models.StatusInProgress],
		counts[models.StatusReview], counts[models.StatusDone]))

	shown := 0
	for _, task := range m.tasks {
		if task.Status == models.StatusDone {
			continue
		}
		line := fmt.Sprintf("%-9s %-8s %s", task.ID, task.Status, task.Title)
		b.WriteString(truncate(line, width-6) + "\n")
		shown++
		if shown >= 12 {
			b.WriteString(fmt.Sprintf("... and %d more\n", len(m.tasks)-shown))
			break
		}
	}
	if shown == 0 {
		b.WriteString("nothing open\n")
	}

	return m.panelStyleFor(panelTasks).Width(width).Render(b.String())
}

func (m dashboardModel) renderActivityPanel(width int) string {
	var b strings.Builder
	b.WriteString(dashHeaderStyle.Render("Recent activity") + "\n")

	if len(m.events) == 0 {
		b.WriteString("no activity yet\n")
	}
	start := 0
	if len(m.events) > 14 {
		start = len(m.events) - 14
	}
	for _, ev := range m.events[start:] {
		var line string
		switch ev.Kind {
		case models.EventSessionStart:
			line = fmt.Sprintf("session %s started", shortID(ev.SessionID))
		case models.EventSessionEnd:
			line = fmt.Sprintf("session %s ended (%s)", shortID(ev.SessionID), ev.ExitReason)
		case models.EventAgentMessage:
			line = "reviewer: " + ev.Text
		case models.EventToolUse:
			line = "-> " + ev.Tool
		case models.EventToolResult:
			line = "   <- " + ev.Result
		case models.EventError:
			line = "error: " + ev.Message
		}
		b.WriteString(truncate(line, width-6) + "\n")
	}

	return m.panelStyleFor(panelActivity).Width(width).Render(b.String())
}

func (m dashboardModel) panelStyleFor(panel int) lipgloss.Style {
	if m.activePanel == panel {
		return dashActivePanelStyle
	}
	return dashPanelStyle
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if max > 3 && len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive terminal dashboard",
	Long: `Open a live terminal dashboard showing the task board and the recent
activity stream, refreshed every few seconds.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("workflow engine not initialized")
		}
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
