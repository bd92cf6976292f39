package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pmbridge/pmbridge/internal/core"
)

var consultTaskID string

var consultCmd = &cobra.Command{
	Use:   "consult <question...>",
	Short: "Ask the reviewer a question and wait for the answer",
	Long: `Start a reviewer session with the given question and block until it
answers or the consultation timeout elapses. On timeout the session keeps
running; its output remains visible via the log command.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Gate == nil {
			return fmt.Errorf("review gate not initialized")
		}

		question := strings.Join(args, " ")
		consultation, err := Gate.Consult(context.Background(), question, consultTaskID)
		if err != nil {
			return fmt.Errorf("consulting reviewer: %w", err)
		}

		if consultation.Decision.Outcome == core.OutcomeStillRunning {
			fmt.Println(consultation.Response)
			return nil
		}

		fmt.Printf("session %s:\n\n%s\n", consultation.SessionID, consultation.Response)
		return nil
	},
}

func init() {
	consultCmd.Flags().StringVar(&consultTaskID, "task", "", "Task ID to associate with the consultation")
	rootCmd.AddCommand(consultCmd)
}
