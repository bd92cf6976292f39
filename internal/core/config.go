package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pmbridge/pmbridge/pkg/models"
)

// validPrefixPattern matches uppercase alphanumeric ID prefixes.
var validPrefixPattern = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)

// ConfigurationManager loads and validates the workspace configuration.
type ConfigurationManager interface {
	Load() (*models.Config, error)
	Validate(cfg *models.Config) error
}

// viperConfigManager implements ConfigurationManager using Viper to read
// the .pmbridge.yaml file in the workspace root.
type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager reading
// configuration relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns a Config populated with working defaults: the
// published reviewer package in production mode, a 10 MiB rotation
// threshold retaining the last five sessions, and a TASK ID prefix.
func DefaultConfig() *models.Config {
	return &models.Config{
		Engineer:     "engineer",
		Role:         models.RoleEngineer,
		TaskIDPrefix: "TASK",
		Reviewer: models.ReviewerConfig{
			Mode:       models.ModeProduction,
			Command:    "claude",
			Args:       []string{},
			DevCommand: "node",
			DevArgs:    []string{"./reviewer/dist/index.js"},
		},
		Activity: models.ActivityConfig{
			RotateBytes:  10 * 1024 * 1024,
			KeepSessions: 5,
			RecentBuffer: 256,
		},
		Timeouts: models.TimeoutConfig{
			SessionIDWait: 10 * time.Second,
			Consultation:  10 * time.Minute,
		},
	}
}

// Load reads .pmbridge.yaml from the base path. A missing file yields the
// defaults.
func (cm *viperConfigManager) Load() (*models.Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName(".pmbridge")
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)

	v.SetDefault("engineer", cfg.Engineer)
	v.SetDefault("role", string(cfg.Role))
	v.SetDefault("task_id_prefix", cfg.TaskIDPrefix)
	v.SetDefault("reviewer.mode", string(cfg.Reviewer.Mode))
	v.SetDefault("reviewer.command", cfg.Reviewer.Command)
	v.SetDefault("reviewer.args", cfg.Reviewer.Args)
	v.SetDefault("reviewer.dev_command", cfg.Reviewer.DevCommand)
	v.SetDefault("reviewer.dev_args", cfg.Reviewer.DevArgs)
	v.SetDefault("reviewer.system_prompt_file", cfg.Reviewer.SystemPromptFile)
	v.SetDefault("activity.rotate_bytes", cfg.Activity.RotateBytes)
	v.SetDefault("activity.keep_sessions", cfg.Activity.KeepSessions)
	v.SetDefault("activity.recent_buffer", cfg.Activity.RecentBuffer)
	v.SetDefault("timeouts.session_id_wait", cfg.Timeouts.SessionIDWait.String())
	v.SetDefault("timeouts.consultation", cfg.Timeouts.Consultation.String())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading .pmbridge.yaml: %w", err)
	}

	cfg.Engineer = v.GetString("engineer")
	cfg.Role = models.Role(v.GetString("role"))
	cfg.TaskIDPrefix = v.GetString("task_id_prefix")
	cfg.Reviewer.Mode = models.ReviewerMode(v.GetString("reviewer.mode"))
	cfg.Reviewer.Command = v.GetString("reviewer.command")
	cfg.Reviewer.Args = v.GetStringSlice("reviewer.args")
	cfg.Reviewer.DevCommand = v.GetString("reviewer.dev_command")
	cfg.Reviewer.DevArgs = v.GetStringSlice("reviewer.dev_args")
	cfg.Reviewer.SystemPromptFile = v.GetString("reviewer.system_prompt_file")
	cfg.Activity.RotateBytes = v.GetInt64("activity.rotate_bytes")
	cfg.Activity.KeepSessions = v.GetInt("activity.keep_sessions")
	cfg.Activity.RecentBuffer = v.GetInt("activity.recent_buffer")
	cfg.Timeouts.SessionIDWait = v.GetDuration("timeouts.session_id_wait")
	cfg.Timeouts.Consultation = v.GetDuration("timeouts.consultation")

	return cfg, nil
}

// Validate checks the configuration for invalid values and returns a clear
// message identifying every problem.
func (cm *viperConfigManager) Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.Role != models.RoleEngineer && cfg.Role != models.RoleReviewer {
		errs = append(errs, fmt.Sprintf("role %q is invalid, must be engineer or reviewer", cfg.Role))
	}
	if cfg.TaskIDPrefix == "" || !validPrefixPattern.MatchString(cfg.TaskIDPrefix) {
		errs = append(errs, fmt.Sprintf("task_id_prefix %q is invalid, must match [A-Z0-9]{1,10}", cfg.TaskIDPrefix))
	}
	if cfg.Reviewer.Mode != models.ModeDevelopment && cfg.Reviewer.Mode != models.ModeProduction {
		errs = append(errs, fmt.Sprintf("reviewer.mode %q is invalid, must be development or production", cfg.Reviewer.Mode))
	}
	if cfg.Reviewer.Mode == models.ModeProduction && cfg.Reviewer.Command == "" {
		errs = append(errs, "reviewer.command must not be empty in production mode")
	}
	if cfg.Reviewer.Mode == models.ModeDevelopment && cfg.Reviewer.DevCommand == "" {
		errs = append(errs, "reviewer.dev_command must not be empty in development mode")
	}
	if cfg.Activity.RotateBytes <= 0 {
		errs = append(errs, fmt.Sprintf("activity.rotate_bytes must be positive, got %d", cfg.Activity.RotateBytes))
	}
	if cfg.Activity.KeepSessions <= 0 {
		errs = append(errs, fmt.Sprintf("activity.keep_sessions must be positive, got %d", cfg.Activity.KeepSessions))
	}
	if cfg.Activity.RecentBuffer <= 0 {
		errs = append(errs, fmt.Sprintf("activity.recent_buffer must be positive, got %d", cfg.Activity.RecentBuffer))
	}
	if cfg.Timeouts.SessionIDWait <= 0 {
		errs = append(errs, "timeouts.session_id_wait must be positive")
	}
	if cfg.Timeouts.Consultation <= 0 {
		errs = append(errs, "timeouts.consultation must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ReviewerCommand resolves the reviewer subprocess command line for the
// configured mode. The dev/production switch lives here, not at call sites.
func ReviewerCommand(cfg *models.Config) (command string, args []string) {
	if cfg.Reviewer.Mode == models.ModeDevelopment {
		return cfg.Reviewer.DevCommand, append([]string(nil), cfg.Reviewer.DevArgs...)
	}
	return cfg.Reviewer.Command, append([]string(nil), cfg.Reviewer.Args...)
}
