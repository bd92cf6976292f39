// Package observability evaluates health conditions over the task list and
// the recorded activity stream.
package observability

import (
	"fmt"
	"time"

	"github.com/pmbridge/pmbridge/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts should fire.
type AlertThresholds struct {
	BlockedHours   int `yaml:"blocked_threshold_hours" json:"blocked_threshold_hours"`
	StaleDays      int `yaml:"stale_threshold_days" json:"stale_threshold_days"`
	ReviewHours    int `yaml:"review_threshold_hours" json:"review_threshold_hours"`
	MaxPendingSize int `yaml:"max_pending_size" json:"max_pending_size"`
}

// DefaultAlertThresholds returns sensible defaults for alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		BlockedHours:   24,
		StaleDays:      3,
		ReviewHours:    12,
		MaxPendingSize: 25,
	}
}

// TaskSource yields the current task list.
type TaskSource interface {
	ListTasks() ([]models.Task, error)
}

// AlertEngine evaluates alert conditions against the task list.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

// alertEngine implements AlertEngine by reading tasks and checking thresholds.
type alertEngine struct {
	tasks      TaskSource
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates a new AlertEngine over the given TaskSource.
func NewAlertEngine(tasks TaskSource, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		tasks:      tasks,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate reads the task list and checks all alert conditions, returning
// any triggered alerts.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	tasks, err := ae.tasks.ListTasks()
	if err != nil {
		return nil, fmt.Errorf("evaluating alerts: %w", err)
	}
	now := ae.now()

	var alerts []Alert
	alerts = append(alerts, ae.checkBlockedTasks(tasks, now)...)
	alerts = append(alerts, ae.checkStaleTasks(tasks, now)...)
	alerts = append(alerts, ae.checkLongReviews(tasks, now)...)
	alerts = append(alerts, ae.checkPendingSize(tasks, now)...)
	return alerts, nil
}

// checkBlockedTasks looks for tasks that have carried a blocker longer than
// the threshold, judged by the last update time.
func (ae *alertEngine) checkBlockedTasks(tasks []models.Task, now time.Time) []Alert {
	threshold := time.Duration(ae.thresholds.BlockedHours) * time.Hour
	var alerts []Alert
	for _, task := range tasks {
		if task.BlockedBy == "" || task.Status == models.StatusDone {
			continue
		}
		if now.Sub(task.Updated) > threshold {
			alerts = append(alerts, Alert{
				ID:        fmt.Sprintf("blocked-%s", task.ID),
				Condition: "task_blocked_too_long",
				Severity:  SeverityHigh,
				Message: fmt.Sprintf("task %s has been blocked by %s for more than %d hours",
					task.ID, task.BlockedBy, ae.thresholds.BlockedHours),
				TriggeredAt: now,
			})
		}
	}
	return alerts
}

// checkStaleTasks looks for in-progress tasks with no recent updates.
func (ae *alertEngine) checkStaleTasks(tasks []models.Task, now time.Time) []Alert {
	threshold := time.Duration(ae.thresholds.StaleDays) * 24 * time.Hour
	var alerts []Alert
	for _, task := range tasks {
		if task.Status != models.StatusInProgress {
			continue
		}
		if now.Sub(task.Updated) > threshold {
			alerts = append(alerts, Alert{
				ID:        fmt.Sprintf("stale-%s", task.ID),
				Condition: "task_stale",
				Severity:  SeverityMedium,
				Message: fmt.Sprintf("task %s has been in progress with no updates for more than %d days",
					task.ID, ae.thresholds.StaleDays),
				TriggeredAt: now,
			})
		}
	}
	return alerts
}

// checkLongReviews looks for tasks stuck in review.
func (ae *alertEngine) checkLongReviews(tasks []models.Task, now time.Time) []Alert {
	threshold := time.Duration(ae.thresholds.ReviewHours) * time.Hour
	var alerts []Alert
	for _, task := range tasks {
		if task.Status != models.StatusReview {
			continue
		}
		if now.Sub(task.Updated) > threshold {
			alerts = append(alerts, Alert{
				ID:        fmt.Sprintf("review-%s", task.ID),
				Condition: "review_too_long",
				Severity:  SeverityMedium,
				Message: fmt.Sprintf("task %s has been awaiting a review decision for more than %d hours",
					task.ID, ae.thresholds.ReviewHours),
				TriggeredAt: now,
			})
		}
	}
	return alerts
}

// checkPendingSize warns when the pending backlog outgrows the threshold.
func (ae *alertEngine) checkPendingSize(tasks []models.Task, now time.Time) []Alert {
	pending := 0
	for _, task := range tasks {
		if task.Status == models.StatusPending {
			pending++
		}
	}
	if pending <= ae.thresholds.MaxPendingSize {
		return nil
	}
	return []Alert{{
		ID:        "pending-size",
		Condition: "pending_backlog_too_large",
		Severity:  SeverityLow,
		Message: fmt.Sprintf("%d pending tasks exceed the configured maximum of %d; consider pruning or splitting the plan",
			pending, ae.thresholds.MaxPendingSize),
		TriggeredAt: now,
	}}
}
