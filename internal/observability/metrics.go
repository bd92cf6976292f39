package observability

import (
	"fmt"
	"time"

	"github.com/pmbridge/pmbridge/pkg/models"
)

// Metrics aggregates task and activity counts over a time window.
type Metrics struct {
	TasksCreated    int            `json:"tasks_created"`
	TasksCompleted  int            `json:"tasks_completed"`
	TasksByStatus   map[string]int `json:"tasks_by_status"`
	TasksByPriority map[string]int `json:"tasks_by_priority"`
	ReviewSessions  int            `json:"review_sessions"`
	ToolCalls       int            `json:"tool_calls"`
	EventCount      int            `json:"event_count"`
	OldestEvent     *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent     *time.Time     `json:"newest_event,omitempty"`
}

// ActivitySource reads back persisted activity events.
type ActivitySource interface {
	ReadRecent(limit int) ([]models.ActivityEvent, error)
}

// MetricsCalculator computes aggregated metrics.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	tasks    TaskSource
	activity ActivitySource
}

// NewMetricsCalculator creates a MetricsCalculator over the task list and
// activity log. activity may be nil; session and tool counts are then zero.
func NewMetricsCalculator(tasks TaskSource, activity ActivitySource) MetricsCalculator {
	return &metricsCalculator{tasks: tasks, activity: activity}
}

// Calculate aggregates tasks and activity events newer than since.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	tasks, err := mc.tasks.ListTasks()
	if err != nil {
		return nil, fmt.Errorf("calculating metrics: %w", err)
	}

	m := &Metrics{
		TasksByStatus:   make(map[string]int),
		TasksByPriority: make(map[string]int),
	}
	for _, task := range tasks {
		m.TasksByStatus[string(task.Status)]++
		m.TasksByPriority[string(task.Priority)]++
		if task.Created.After(since) {
			m.TasksCreated++
		}
		if task.Status == models.StatusDone && task.Updated.After(since) {
			m.TasksCompleted++
		}
	}

	if mc.activity == nil {
		return m, nil
	}
	events, err := mc.activity.ReadRecent(0)
	if err != nil {
		return nil, fmt.Errorf("calculating metrics: %w", err)
	}
	for _, ev := range events {
		if ev.Timestamp.Before(since) {
			continue
		}
		m.EventCount++
		switch ev.Kind {
		case models.EventSessionStart:
			m.ReviewSessions++
		case models.EventToolUse:
			m.ToolCalls++
		}
		ts := ev.Timestamp
		if m.OldestEvent == nil || ts.Before(*m.OldestEvent) {
			m.OldestEvent = &ts
		}
		if m.NewestEvent == nil || ts.After(*m.NewestEvent) {
			m.NewestEvent = &ts
		}
	}
	return m, nil
}
