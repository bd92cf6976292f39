package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pmbridge/pmbridge/pkg/models"
)

var statusFilter string

var (
	statusHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))

	statusColors = map[models.TaskStatus]lipgloss.Style{
		models.StatusPending:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		models.StatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		models.StatusReview:     lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		models.StatusDone:       lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
	}

	blockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display tasks grouped by status",
	Long: `Display all tasks organized by their lifecycle status, with blockers and
unmet dependencies highlighted.

Optionally filter to a single status using --filter (e.g. --filter in_progress).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("workflow engine not initialized")
		}

		tasks, err := Engine.ListTasks()
		if err != nil {
			return fmt.Errorf("fetching tasks: %w", err)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks found. Use the reviewer's update_tasks tool or propose a plan to create some.")
			return nil
		}

		statusOrder := []models.TaskStatus{
			models.StatusInProgress,
			models.StatusReview,
			models.StatusPending,
			models.StatusDone,
		}

		grouped := make(map[models.TaskStatus][]models.Task)
		for _, task := range tasks {
			grouped[task.Status] = append(grouped[task.Status], task)
		}

		for _, status := range statusOrder {
			if statusFilter != "" && string(status) != statusFilter {
				continue
			}
			group := grouped[status]
			if len(group) == 0 {
				continue
			}
			printStatusGroup(status, group)
			fmt.Println()
		}
		return nil
	},
}

// printStatusGroup prints a table of tasks under a status heading.
func printStatusGroup(status models.TaskStatus, tasks []models.Task) {
	style, ok := statusColors[status]
	if !ok {
		style = lipgloss.NewStyle()
	}
	heading := fmt.Sprintf("== %s (%d) ==", strings.ToUpper(string(status)), len(tasks))
	fmt.Println(statusHeaderStyle.Render(heading))
	fmt.Printf("  %-10s %-9s %-40s %s\n", "ID", "PRI", "TITLE", "NOTES")
	for _, task := range tasks {
		notes := taskNotes(task)
		title := task.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		line := fmt.Sprintf("  %-10s %-9s %-40s ", task.ID, task.Priority, title)
		fmt.Println(style.Render(line) + notes)
	}
}

func taskNotes(task models.Task) string {
	var notes []string
	if task.BlockedBy != "" {
		notes = append(notes, blockedStyle.Render("blocked by "+task.BlockedBy))
	}
	if len(task.Dependencies) > 0 {
		notes = append(notes, "deps: "+strings.Join(task.Dependencies, ", "))
	}
	if task.RequiresPlan && !task.PlanApproved {
		notes = append(notes, "plan required")
	}
	return strings.Join(notes, "; ")
}

func init() {
	statusCmd.Flags().StringVar(&statusFilter, "filter", "", "Filter by status (pending, in_progress, review, done)")
	rootCmd.AddCommand(statusCmd)
}
