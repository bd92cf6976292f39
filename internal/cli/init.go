package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pmbridge/pmbridge/internal/core"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default .pmbridge.yaml in the current directory",
	Long: `Write a starter configuration file with the default reviewer command,
activity rotation settings, and timeouts. Refuses to overwrite an existing
configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(".", ".pmbridge.yaml")
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists; edit it instead", path)
		}

		cfg := core.DefaultConfig()
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encoding default config: %w", err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}

		fmt.Printf("Wrote %s\n", path)
		fmt.Println("Review the reviewer.command setting before starting a session.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
