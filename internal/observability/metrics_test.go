package observability

import (
	"testing"
	"time"

	"github.com/pmbridge/pmbridge/pkg/models"
)

type staticActivity struct {
	events []models.ActivityEvent
}

func (s *staticActivity) ReadRecent(int) ([]models.ActivityEvent, error) { return s.events, nil }

func TestCalculate(t *testing.T) {
	now := time.Now().UTC()
	old := now.Add(-30 * 24 * time.Hour)
	tasks := &staticTasks{tasks: []models.Task{
		{ID: "TASK-1", Status: models.StatusDone, Priority: models.PriorityHigh, Created: old, Updated: now.Add(-time.Hour)},
		{ID: "TASK-2", Status: models.StatusInProgress, Priority: models.PriorityHigh, Created: now.Add(-time.Hour), Updated: now},
		{ID: "TASK-3", Status: models.StatusPending, Priority: models.PriorityLow, Created: old, Updated: old},
	}}
	events := &staticActivity{events: []models.ActivityEvent{
		{Kind: models.EventSessionStart, Timestamp: now.Add(-2 * time.Hour)},
		{Kind: models.EventToolUse, Timestamp: now.Add(-90 * time.Minute)},
		{Kind: models.EventToolUse, Timestamp: now.Add(-80 * time.Minute)},
		{Kind: models.EventSessionEnd, Timestamp: now.Add(-time.Hour)},
		{Kind: models.EventSessionStart, Timestamp: old.Add(-time.Hour)},
	}}

	m, err := NewMetricsCalculator(tasks, events).Calculate(now.Add(-7 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.TasksCreated != 1 {
		t.Errorf("tasks created = %d, want 1", m.TasksCreated)
	}
	if m.TasksCompleted != 1 {
		t.Errorf("tasks completed = %d, want 1", m.TasksCompleted)
	}
	if m.TasksByStatus["in_progress"] != 1 || m.TasksByStatus["pending"] != 1 || m.TasksByStatus["done"] != 1 {
		t.Errorf("tasks by status = %v", m.TasksByStatus)
	}
	if m.TasksByPriority["high"] != 2 {
		t.Errorf("tasks by priority = %v", m.TasksByPriority)
	}
	if m.ReviewSessions != 1 {
		t.Errorf("review sessions = %d, want 1 (old session excluded)", m.ReviewSessions)
	}
	if m.ToolCalls != 2 {
		t.Errorf("tool calls = %d, want 2", m.ToolCalls)
	}
	if m.EventCount != 4 {
		t.Errorf("event count = %d, want 4", m.EventCount)
	}
	if m.OldestEvent == nil || m.NewestEvent == nil {
		t.Fatal("event window not reported")
	}
}

func TestCalculate_NoActivitySource(t *testing.T) {
	tasks := &staticTasks{tasks: []models.Task{{ID: "TASK-1", Status: models.StatusPending}}}
	m, err := NewMetricsCalculator(tasks, nil).Calculate(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.EventCount != 0 || m.ReviewSessions != 0 {
		t.Errorf("expected zero activity metrics, got %+v", m)
	}
}
