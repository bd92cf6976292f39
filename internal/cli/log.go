package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pmbridge/pmbridge/pkg/models"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent activity events",
	Long: `Print the most recent events from the persisted activity log: reviewer
session lifecycles, messages, tool calls, and results.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Recorder == nil {
			return fmt.Errorf("activity recorder not initialized")
		}

		events, err := Recorder.ReadRecent(logLimit)
		if err != nil {
			return fmt.Errorf("reading activity log: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No recorded activity yet.")
			return nil
		}

		for _, ev := range events {
			printEvent(ev)
		}
		return nil
	},
}

func printEvent(ev models.ActivityEvent) {
	ts := ev.Timestamp.Format("2006-01-02 15:04:05")
	switch ev.Kind {
	case models.EventSessionStart:
		fmt.Printf("%s  session %s started", ts, ev.SessionID)
		if ev.TaskID != "" {
			fmt.Printf(" (task %s)", ev.TaskID)
		}
		fmt.Println()
	case models.EventSessionEnd:
		fmt.Printf("%s  session %s ended (%s)\n", ts, ev.SessionID, ev.ExitReason)
	case models.EventAgentMessage:
		fmt.Printf("%s  reviewer: %s\n", ts, ev.Text)
	case models.EventToolUse:
		fmt.Printf("%s  -> %s\n", ts, ev.Tool)
	case models.EventToolResult:
		fmt.Printf("%s     <- %.80s\n", ts, ev.Result)
	case models.EventError:
		fmt.Printf("%s  error: %s\n", ts, ev.Message)
	}
}

func init() {
	logCmd.Flags().IntVar(&logLimit, "limit", 50, "Maximum number of events to show")
	rootCmd.AddCommand(logCmd)
}
