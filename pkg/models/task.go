package models

import "time"

// TaskStatus represents the current lifecycle state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusReview     TaskStatus = "review"
	StatusDone       TaskStatus = "done"
)

// Priority represents the urgency level of a task.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// PriorityRank returns the sort rank of a priority: critical sorts first.
// Unknown priorities sort last.
func PriorityRank(p Priority) int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// HistoryEntry records one modification applied to a task, including
// synthetic entries written during dependency cascades.
type HistoryEntry struct {
	Time time.Time `json:"time"`
	Note string    `json:"note"`
}

// Task is a unit of work tracked by the workflow engine. IDs are issued
// from a persisted counter (PREFIX-N) so they stay stable across deletions.
type Task struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Status       TaskStatus     `json:"status"`
	Priority     Priority       `json:"priority"`
	Dependencies []string       `json:"dependencies,omitempty"`
	BlockedBy    string         `json:"blocked_by,omitempty"`
	RequiresPlan bool           `json:"requires_plan,omitempty"`
	PlanApproved bool           `json:"plan_approved,omitempty"`
	History      []HistoryEntry `json:"history,omitempty"`
	Created      time.Time      `json:"created"`
	Updated      time.Time      `json:"updated"`
}

// DependsOn reports whether the task lists the given ID as a dependency.
func (t *Task) DependsOn(id string) bool {
	for _, dep := range t.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}
