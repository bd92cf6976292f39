package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pmbridge/pmbridge/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdio",
	Long: `Expose the task workflow as MCP tools over stdio. Point an AI coding
assistant's MCP configuration at this command to give it get_next_task,
claim_task, submit_for_review, propose_modification, and the other tools.

The configured role decides which tools are permitted; update_tasks is
reviewer-only.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil || Gate == nil || Config == nil {
			return fmt.Errorf("services not initialized")
		}

		var srv *mcp.Server
		if Recorder != nil {
			srv = mcp.NewServer(Engine, Gate, Recorder, Config.Role, appVersion)
		} else {
			srv = mcp.NewServer(Engine, Gate, nil, Config.Role, appVersion)
		}
		return srv.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
