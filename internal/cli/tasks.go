package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var nextCount int

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the next eligible task(s)",
	Long: `Show pending tasks that are ready to claim: unblocked, with every
dependency done, ordered by priority and by how many other tasks they
unblock.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("workflow engine not initialized")
		}

		tasks, err := Engine.NextEligible(nextCount)
		if err != nil {
			return fmt.Errorf("finding eligible tasks: %w", err)
		}
		if len(tasks) == 0 {
			fmt.Println("No eligible tasks. Everything is claimed, blocked, or waiting on dependencies.")
			return nil
		}

		for _, task := range tasks {
			fmt.Printf("%-10s %-9s %s\n", task.ID, task.Priority, task.Title)
			if task.Description != "" {
				fmt.Printf("           %s\n", task.Description)
			}
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <task-id>",
	Short: "Show a task's history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("workflow engine not initialized")
		}

		tasks, err := Engine.ListTasks()
		if err != nil {
			return fmt.Errorf("fetching tasks: %w", err)
		}
		for _, task := range tasks {
			if task.ID != args[0] {
				continue
			}
			fmt.Printf("%s  %s [%s]\n", task.ID, task.Title, task.Status)
			for _, entry := range task.History {
				fmt.Printf("  %s  %s\n", entry.Time.Format("2006-01-02 15:04"), entry.Note)
			}
			return nil
		}
		return fmt.Errorf("task %s not found", args[0])
	},
}

func init() {
	nextCmd.Flags().IntVar(&nextCount, "count", 1, "Maximum number of tasks to show")
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(historyCmd)
}
