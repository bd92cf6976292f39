package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pmbridge/pmbridge/internal/observability"
)

var metricsSince time.Duration

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show task and activity metrics",
	Long: `Aggregate task counts by status and priority, plus review-session and
tool-call counts from the activity log, over the given time window.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized")
		}

		m, err := MetricsCalc.Calculate(time.Now().Add(-metricsSince))
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		fmt.Print(renderMetrics(m, metricsSince))
		return nil
	},
}

// renderMetrics formats a metrics snapshot for terminal output.
func renderMetrics(m *observability.Metrics, window time.Duration) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Metrics for the last %s\n\n", window)
	fmt.Fprintf(&b, "Tasks created:   %d\n", m.TasksCreated)
	fmt.Fprintf(&b, "Tasks completed: %d\n", m.TasksCompleted)

	b.WriteString("\nBy status:\n")
	for _, k := range sortedKeys(m.TasksByStatus) {
		fmt.Fprintf(&b, "  %-12s %d\n", k, m.TasksByStatus[k])
	}
	b.WriteString("By priority:\n")
	for _, k := range sortedKeys(m.TasksByPriority) {
		fmt.Fprintf(&b, "  %-12s %d\n", k, m.TasksByPriority[k])
	}

	fmt.Fprintf(&b, "\nReview sessions: %d\n", m.ReviewSessions)
	fmt.Fprintf(&b, "Tool calls:      %d\n", m.ToolCalls)
	fmt.Fprintf(&b, "Events recorded: %d\n", m.EventCount)
	if m.OldestEvent != nil && m.NewestEvent != nil {
		fmt.Fprintf(&b, "Event span:      %s to %s\n",
			m.OldestEvent.Format("2006-01-02 15:04"), m.NewestEvent.Format("2006-01-02 15:04"))
	}
	return b.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	metricsCmd.Flags().DurationVar(&metricsSince, "since", 24*time.Hour, "Window to aggregate over")
	rootCmd.AddCommand(metricsCmd)
}
