package observability

import (
	"testing"
	"time"

	"github.com/pmbridge/pmbridge/pkg/models"
)

type staticTasks struct {
	tasks []models.Task
}

func (s *staticTasks) ListTasks() ([]models.Task, error) { return s.tasks, nil }

func newTestEngine(tasks []models.Task, now time.Time) *alertEngine {
	return &alertEngine{
		tasks:      &staticTasks{tasks: tasks},
		thresholds: DefaultAlertThresholds(),
		now:        func() time.Time { return now },
	}
}

func findAlert(alerts []Alert, condition string) *Alert {
	for i := range alerts {
		if alerts[i].Condition == condition {
			return &alerts[i]
		}
	}
	return nil
}

func TestEvaluate_NoTasksNoAlerts(t *testing.T) {
	engine := newTestEngine(nil, time.Now().UTC())
	alerts, err := engine.Evaluate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected no alerts, got %v", alerts)
	}
}

func TestEvaluate_BlockedTooLong(t *testing.T) {
	now := time.Now().UTC()
	tasks := []models.Task{
		{ID: "TASK-1", Status: models.StatusPending, BlockedBy: "TASK-2", Updated: now.Add(-30 * time.Hour)},
		{ID: "TASK-3", Status: models.StatusPending, BlockedBy: "TASK-2", Updated: now.Add(-1 * time.Hour)},
	}
	alerts, err := newTestEngine(tasks, now).Evaluate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alert := findAlert(alerts, "task_blocked_too_long")
	if alert == nil {
		t.Fatal("expected a blocked-too-long alert")
	}
	if alert.Severity != SeverityHigh {
		t.Errorf("severity = %s, want high", alert.Severity)
	}
	if alert.ID != "blocked-TASK-1" {
		t.Errorf("alert ID = %s", alert.ID)
	}
	if len(alerts) != 1 {
		t.Errorf("recently blocked task must not alert, got %v", alerts)
	}
}

func TestEvaluate_StaleInProgress(t *testing.T) {
	now := time.Now().UTC()
	tasks := []models.Task{
		{ID: "TASK-1", Status: models.StatusInProgress, Updated: now.Add(-4 * 24 * time.Hour)},
		{ID: "TASK-2", Status: models.StatusInProgress, Updated: now.Add(-2 * time.Hour)},
		{ID: "TASK-3", Status: models.StatusPending, Updated: now.Add(-10 * 24 * time.Hour)},
	}
	alerts, err := newTestEngine(tasks, now).Evaluate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if alert := findAlert(alerts, "task_stale"); alert == nil || alert.ID != "stale-TASK-1" {
		t.Errorf("expected exactly the stale alert for TASK-1, got %v", alerts)
	}
	if len(alerts) != 1 {
		t.Errorf("pending tasks must not count as stale, got %v", alerts)
	}
}

func TestEvaluate_LongReview(t *testing.T) {
	now := time.Now().UTC()
	tasks := []models.Task{
		{ID: "TASK-1", Status: models.StatusReview, Updated: now.Add(-13 * time.Hour)},
	}
	alerts, err := newTestEngine(tasks, now).Evaluate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert := findAlert(alerts, "review_too_long"); alert == nil {
		t.Fatalf("expected a long-review alert, got %v", alerts)
	}
}

func TestEvaluate_PendingBacklogSize(t *testing.T) {
	now := time.Now().UTC()
	var tasks []models.Task
	for i := 0; i < 26; i++ {
		tasks = append(tasks, models.Task{
			ID: "TASK-" + string(rune('A'+i%26)), Status: models.StatusPending, Updated: now,
		})
	}
	alerts, err := newTestEngine(tasks, now).Evaluate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	alert := findAlert(alerts, "pending_backlog_too_large")
	if alert == nil {
		t.Fatalf("expected a backlog-size alert, got %v", alerts)
	}
	if alert.Severity != SeverityLow {
		t.Errorf("severity = %s, want low", alert.Severity)
	}
}
