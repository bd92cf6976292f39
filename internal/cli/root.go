package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "pmbridge",
	Short: "pmbridge - reviewer-gated task workflow for AI engineering agents",
	Long: `pmbridge coordinates an AI engineering agent and a reviewer process around
a shared task list. The engineer claims tasks, submits work for review, and
proposes changes to the plan; the reviewer approves, requests changes, or
reshapes the task list directly.

Every reviewer session is recorded to a structured activity log alongside a
human-readable narrative.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pmbridge %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
