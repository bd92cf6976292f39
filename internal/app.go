// Package internal provides the App struct that wires all components of
// pmbridge together and initializes the CLI layer.
package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmbridge/pmbridge/internal/activity"
	"github.com/pmbridge/pmbridge/internal/agent"
	"github.com/pmbridge/pmbridge/internal/broker"
	"github.com/pmbridge/pmbridge/internal/cli"
	"github.com/pmbridge/pmbridge/internal/core"
	"github.com/pmbridge/pmbridge/internal/observability"
	"github.com/pmbridge/pmbridge/internal/review"
	"github.com/pmbridge/pmbridge/internal/storage"
	"github.com/pmbridge/pmbridge/pkg/models"
)

// App holds all service dependencies for pmbridge.
type App struct {
	BasePath string

	Config    *models.Config
	ConfigMgr core.ConfigurationManager

	TaskStore storage.TaskStore
	Engine    *core.WorkflowEngine

	Launcher agent.Launcher
	Broker   *broker.Broker
	Recorder *activity.Recorder
	Gate     *review.Gate

	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator

	Logger *slog.Logger
}

// NewApp creates and wires all components. basePath is the workspace root
// holding .pmbridge.yaml, tasks.json, and the activity files.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("PMBRIDGE_DEBUG"), "1") {
		level = slog.LevelDebug
	}
	app.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("initializing pmbridge: %w", err)
	}
	if err := app.ConfigMgr.Validate(cfg); err != nil {
		return nil, fmt.Errorf("initializing pmbridge: %w", err)
	}
	app.Config = cfg

	// --- Storage and workflow ---
	app.TaskStore = storage.NewTaskStore(basePath, cfg.TaskIDPrefix)
	app.Engine = core.NewWorkflowEngine(app.TaskStore)

	// --- Reviewer sessions ---
	command, args := core.ReviewerCommand(cfg)
	app.Launcher = agent.NewProcessLauncher(command, args, cfg.Timeouts.SessionIDWait, app.Logger)

	app.Broker, err = broker.New(app.Launcher, cfg.Activity.RecentBuffer, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("initializing pmbridge: %w", err)
	}

	// --- Activity persistence ---
	app.Recorder, err = activity.NewRecorder(basePath, cfg.Activity.RotateBytes, cfg.Activity.KeepSessions, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("initializing pmbridge: %w", err)
	}
	app.Broker.Subscribe(app.Recorder.Record)

	// --- Review gate ---
	systemPrompt, err := loadSystemPrompt(basePath, cfg.Reviewer.SystemPromptFile)
	if err != nil {
		return nil, fmt.Errorf("initializing pmbridge: %w", err)
	}
	app.Gate = review.NewGate(app.Broker, app.Engine, cfg.Timeouts.Consultation, systemPrompt, cfg.Engineer, app.Logger)

	// --- Observability ---
	app.AlertEngine = observability.NewAlertEngine(app.Engine, observability.DefaultAlertThresholds())
	app.MetricsCalc = observability.NewMetricsCalculator(app.Engine, app.Recorder)

	// --- CLI layer ---
	cli.Config = app.Config
	cli.Engine = app.Engine
	cli.Broker = app.Broker
	cli.Gate = app.Gate
	cli.Recorder = app.Recorder
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc

	return app, nil
}

// Close flushes the activity queue and waits for running session pumps.
func (app *App) Close() error {
	if app.Broker != nil {
		app.Broker.Wait()
	}
	if app.Recorder != nil {
		return app.Recorder.Close()
	}
	return nil
}

// loadSystemPrompt reads the reviewer system prompt file if configured.
// Relative paths resolve against the workspace root.
func loadSystemPrompt(basePath, file string) (string, error) {
	if file == "" {
		return "", nil
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(basePath, file)
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("reading reviewer system prompt %s: %w", file, err)
	}
	return string(raw), nil
}

// ResolveBasePath locates the workspace root: $PMBRIDGE_HOME if set,
// otherwise the nearest ancestor directory containing .pmbridge.yaml,
// falling back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv("PMBRIDGE_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".pmbridge.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}
