package models

import "time"

// Role identifies which side of the collaboration this process acts as.
// The capability table at the tool boundary is keyed by Role.
type Role string

const (
	RoleEngineer Role = "engineer"
	RoleReviewer Role = "reviewer"
)

// ReviewerMode selects how the reviewer subprocess is located.
type ReviewerMode string

const (
	// ModeDevelopment runs a local build of the reviewer.
	ModeDevelopment ReviewerMode = "development"
	// ModeProduction runs the published reviewer package.
	ModeProduction ReviewerMode = "production"
)

// ReviewerConfig describes how to spawn the external reviewer process.
type ReviewerConfig struct {
	Mode             ReviewerMode `yaml:"mode"`
	Command          string       `yaml:"command"`
	Args             []string     `yaml:"args"`
	DevCommand       string       `yaml:"dev_command"`
	DevArgs          []string     `yaml:"dev_args"`
	SystemPromptFile string       `yaml:"system_prompt_file"`
}

// ActivityConfig tunes the durable activity log.
type ActivityConfig struct {
	RotateBytes  int64 `yaml:"rotate_bytes"`
	KeepSessions int   `yaml:"keep_sessions"`
	RecentBuffer int   `yaml:"recent_buffer"`
}

// TimeoutConfig holds the bounded waits used by the session layer.
type TimeoutConfig struct {
	SessionIDWait time.Duration `yaml:"session_id_wait"`
	Consultation  time.Duration `yaml:"consultation"`
}

// MarshalYAML renders the durations in their string form so a generated
// config file reads "10m" instead of nanoseconds.
func (t TimeoutConfig) MarshalYAML() (any, error) {
	return struct {
		SessionIDWait string `yaml:"session_id_wait"`
		Consultation  string `yaml:"consultation"`
	}{t.SessionIDWait.String(), t.Consultation.String()}, nil
}

// Config is the merged workspace configuration loaded from .pmbridge.yaml.
type Config struct {
	Engineer     string         `yaml:"engineer"`
	Role         Role           `yaml:"role"`
	TaskIDPrefix string         `yaml:"task_id_prefix"`
	Reviewer     ReviewerConfig `yaml:"reviewer"`
	Activity     ActivityConfig `yaml:"activity"`
	Timeouts     TimeoutConfig  `yaml:"timeouts"`
}
