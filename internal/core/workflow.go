// Package core contains the business logic for pmbridge: the task workflow
// engine, the reviewer decision parser, configuration, and the role
// capability table.
package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pmbridge/pmbridge/internal/storage"
	"github.com/pmbridge/pmbridge/pkg/models"
)

// Sentinel errors returned by workflow operations. Wrapped messages add the
// task and precondition context.
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrWrongStatus       = errors.New("task is not in the required status")
	ErrDependencyNotDone = errors.New("dependency is not done")
	ErrTaskBlocked       = errors.New("task is blocked")
	ErrPlanNotApproved   = errors.New("task requires an approved plan")
	ErrMergeUnsupported  = errors.New("merge modifications are not supported")
)

// WorkflowEngine applies ordered modification batches to the task store and
// computes eligibility and ordering. All mutations go through the store's
// whole-file persistence; callers must not interleave concurrent batches.
type WorkflowEngine struct {
	store storage.TaskStore
	now   func() time.Time
}

// NewWorkflowEngine creates a WorkflowEngine over the given store.
func NewWorkflowEngine(store storage.TaskStore) *WorkflowEngine {
	return &WorkflowEngine{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// ListTasks returns the persisted tasks in insertion order.
func (e *WorkflowEngine) ListTasks() ([]models.Task, error) {
	if err := e.store.Load(); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return e.store.Tasks(), nil
}

// ApplyModifications executes each item in order against an in-memory copy
// of the task list, then persists once. Items whose target task is missing
// are no-ops; a batch containing a merge item is rejected before anything
// is applied.
func (e *WorkflowEngine) ApplyModifications(batch []models.TaskModification) error {
	for _, mod := range batch {
		if mod.Kind == models.ModMerge {
			return fmt.Errorf("applying modifications: %w", ErrMergeUnsupported)
		}
	}

	if err := e.store.Load(); err != nil {
		return fmt.Errorf("applying modifications: %w", err)
	}
	tasks := e.store.Tasks()

	for _, mod := range batch {
		var err error
		switch mod.Kind {
		case models.ModAdd:
			tasks, err = e.applyAdd(tasks, mod)
		case models.ModDelete:
			tasks = e.applyDelete(tasks, mod)
		case models.ModModify:
			tasks = e.applyModify(tasks, mod)
		case models.ModBlock:
			tasks = e.applyBlock(tasks, mod)
		case models.ModSplit:
			tasks = e.applySplit(tasks, mod)
		default:
			err = fmt.Errorf("unknown modification kind %q", mod.Kind)
		}
		if err != nil {
			return fmt.Errorf("applying modifications: %w", err)
		}
	}

	e.store.Replace(tasks)
	if err := e.store.Save(); err != nil {
		return fmt.Errorf("applying modifications: %w", err)
	}
	return nil
}

func (e *WorkflowEngine) applyAdd(tasks []models.Task, mod models.TaskModification) ([]models.Task, error) {
	id, err := e.store.NextID()
	if err != nil {
		return tasks, err
	}

	priority := mod.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	now := e.now()
	task := models.Task{
		ID:           id,
		Title:        mod.Title,
		Status:       models.StatusPending,
		Priority:     priority,
		Dependencies: append([]string(nil), mod.Dependencies...),
		RequiresPlan: mod.RequiresPlan,
		Created:      now,
		Updated:      now,
		History:      []models.HistoryEntry{{Time: now, Note: "created"}},
	}
	return append(tasks, task), nil
}

// applyDelete removes the task and strips its ID from every remaining
// task's dependency list, appending one synthetic history entry per
// affected task.
func (e *WorkflowEngine) applyDelete(tasks []models.Task, mod models.TaskModification) []models.Task {
	idx := indexOf(tasks, mod.TaskID)
	if idx < 0 {
		return tasks
	}
	tasks = append(tasks[:idx], tasks[idx+1:]...)

	now := e.now()
	for i := range tasks {
		if !tasks[i].DependsOn(mod.TaskID) {
			continue
		}
		tasks[i].Dependencies = removeString(tasks[i].Dependencies, mod.TaskID)
		tasks[i].Updated = now
		note := fmt.Sprintf("dependency %s removed: task deleted", mod.TaskID)
		if mod.Reason != "" {
			note = fmt.Sprintf("dependency %s removed: task deleted (%s)", mod.TaskID, mod.Reason)
		}
		tasks[i].History = append(tasks[i].History, models.HistoryEntry{Time: now, Note: note})
	}
	return tasks
}

func (e *WorkflowEngine) applyModify(tasks []models.Task, mod models.TaskModification) []models.Task {
	idx := indexOf(tasks, mod.TaskID)
	if idx < 0 {
		return tasks
	}

	task := &tasks[idx]
	var changed []string
	if mod.NewTitle != nil {
		task.Title = *mod.NewTitle
		changed = append(changed, "title")
	}
	if mod.NewDescription != nil {
		task.Description = *mod.NewDescription
		changed = append(changed, "description")
	}
	if mod.NewPriority != nil {
		task.Priority = *mod.NewPriority
		changed = append(changed, "priority")
	}
	if mod.NewDeps != nil {
		task.Dependencies = append([]string(nil), (*mod.NewDeps)...)
		changed = append(changed, "dependencies")
	}
	if len(changed) == 0 {
		return tasks
	}

	now := e.now()
	task.Updated = now
	task.History = append(task.History, models.HistoryEntry{
		Time: now,
		Note: "modified: " + strings.Join(changed, ", "),
	})
	return tasks
}

func (e *WorkflowEngine) applyBlock(tasks []models.Task, mod models.TaskModification) []models.Task {
	idx := indexOf(tasks, mod.TaskID)
	if idx < 0 {
		return tasks
	}

	now := e.now()
	tasks[idx].BlockedBy = mod.BlockedBy
	tasks[idx].Updated = now
	tasks[idx].History = append(tasks[idx].History, models.HistoryEntry{
		Time: now,
		Note: fmt.Sprintf("blocked by %s", mod.BlockedBy),
	})
	return tasks
}

// applySplit removes the original task and inserts N ordered subtasks in
// its place. Subtask IDs are originalID.1..N; the first inherits the
// original's dependencies and each later one depends on its predecessor.
func (e *WorkflowEngine) applySplit(tasks []models.Task, mod models.TaskModification) []models.Task {
	idx := indexOf(tasks, mod.TaskID)
	if idx < 0 || len(mod.Subtasks) == 0 {
		return tasks
	}

	original := tasks[idx]
	now := e.now()
	subtasks := make([]models.Task, 0, len(mod.Subtasks))
	for i, title := range mod.Subtasks {
		sub := models.Task{
			ID:       fmt.Sprintf("%s.%d", original.ID, i+1),
			Title:    title,
			Status:   models.StatusPending,
			Priority: original.Priority,
			Created:  now,
			Updated:  now,
			History: []models.HistoryEntry{{
				Time: now,
				Note: fmt.Sprintf("created by split of %s", original.ID),
			}},
		}
		if i == 0 {
			sub.Dependencies = append([]string(nil), original.Dependencies...)
		} else {
			sub.Dependencies = []string{fmt.Sprintf("%s.%d", original.ID, i)}
		}
		subtasks = append(subtasks, sub)
	}

	out := make([]models.Task, 0, len(tasks)-1+len(subtasks))
	out = append(out, tasks[:idx]...)
	out = append(out, subtasks...)
	out = append(out, tasks[idx+1:]...)
	return out
}

// NextEligible returns up to count pending tasks whose dependencies are all
// done and that carry no blocker, ordered by priority and then by how many
// other tasks depend on them (preferring tasks that unblock the most work).
func (e *WorkflowEngine) NextEligible(count int) ([]models.Task, error) {
	if err := e.store.Load(); err != nil {
		return nil, fmt.Errorf("finding eligible tasks: %w", err)
	}
	tasks := e.store.Tasks()

	statusByID := make(map[string]models.TaskStatus, len(tasks))
	dependents := make(map[string]int)
	for _, t := range tasks {
		statusByID[t.ID] = t.Status
		for _, dep := range t.Dependencies {
			dependents[dep]++
		}
	}

	var eligible []models.Task
	for _, t := range tasks {
		if t.Status != models.StatusPending || t.BlockedBy != "" {
			continue
		}
		ready := true
		for _, dep := range t.Dependencies {
			if statusByID[dep] != models.StatusDone {
				ready = false
				break
			}
		}
		if ready {
			eligible = append(eligible, t)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		ri, rj := models.PriorityRank(eligible[i].Priority), models.PriorityRank(eligible[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return dependents[eligible[i].ID] > dependents[eligible[j].ID]
	})

	if count > 0 && count < len(eligible) {
		eligible = eligible[:count]
	}
	return eligible, nil
}

// Claim transitions a pending task to in_progress. It fails with an
// actionable error if the task requires an unapproved plan, carries a
// blocker, or has a dependency that is not done.
func (e *WorkflowEngine) Claim(taskID string) (*models.Task, error) {
	if err := e.store.Load(); err != nil {
		return nil, fmt.Errorf("claiming %s: %w", taskID, err)
	}

	task, ok := e.store.Get(taskID)
	if !ok {
		return nil, fmt.Errorf("claiming %s: %w", taskID, ErrTaskNotFound)
	}
	if task.Status != models.StatusPending {
		return nil, fmt.Errorf("claiming %s: %w: status is %s, only pending tasks can be claimed",
			taskID, ErrWrongStatus, task.Status)
	}
	if task.BlockedBy != "" {
		return nil, fmt.Errorf("claiming %s: %w: blocked by %s; resolve the blocker first",
			taskID, ErrTaskBlocked, task.BlockedBy)
	}
	if task.RequiresPlan && !task.PlanApproved {
		return nil, fmt.Errorf("claiming %s: %w: propose a plan and get it approved before claiming",
			taskID, ErrPlanNotApproved)
	}
	for _, dep := range task.Dependencies {
		depTask, exists := e.store.Get(dep)
		if !exists || depTask.Status != models.StatusDone {
			return nil, fmt.Errorf("claiming %s: %w: %s must be done first",
				taskID, ErrDependencyNotDone, dep)
		}
	}

	if err := e.transition(task, models.StatusInProgress, "claimed"); err != nil {
		return nil, fmt.Errorf("claiming %s: %w", taskID, err)
	}
	claimed, _ := e.store.Get(taskID)
	return claimed, nil
}

// Submit transitions an in_progress task to review.
func (e *WorkflowEngine) Submit(taskID string) error {
	return e.transitionFrom(taskID, models.StatusInProgress, models.StatusReview, "submitted for review")
}

// Approve transitions a task in review to done.
func (e *WorkflowEngine) Approve(taskID string) error {
	return e.transitionFrom(taskID, models.StatusReview, models.StatusDone, "approved by reviewer")
}

// RequestChanges regresses a task in review back to in_progress. This is
// the only permitted backwards transition.
func (e *WorkflowEngine) RequestChanges(taskID string) error {
	return e.transitionFrom(taskID, models.StatusReview, models.StatusInProgress, "reviewer requested changes")
}

// Rollback forces a task back to the given status regardless of its current
// one. Used to recover from errors mid-submit so no task is left orphaned.
func (e *WorkflowEngine) Rollback(taskID string, to models.TaskStatus) error {
	if err := e.store.Load(); err != nil {
		return fmt.Errorf("rolling back %s: %w", taskID, err)
	}
	task, ok := e.store.Get(taskID)
	if !ok {
		return fmt.Errorf("rolling back %s: %w", taskID, ErrTaskNotFound)
	}
	if task.Status == to {
		return nil
	}
	if err := e.transition(task, to, "rolled back after error"); err != nil {
		return fmt.Errorf("rolling back %s: %w", taskID, err)
	}
	return nil
}

// ApprovePlan marks a task's required plan as approved.
func (e *WorkflowEngine) ApprovePlan(taskID string) error {
	if err := e.store.Load(); err != nil {
		return fmt.Errorf("approving plan for %s: %w", taskID, err)
	}
	task, ok := e.store.Get(taskID)
	if !ok {
		return fmt.Errorf("approving plan for %s: %w", taskID, ErrTaskNotFound)
	}

	now := e.now()
	task.PlanApproved = true
	task.Updated = now
	task.History = append(task.History, models.HistoryEntry{Time: now, Note: "plan approved"})
	if err := e.store.Put(*task); err != nil {
		return fmt.Errorf("approving plan for %s: %w", taskID, err)
	}
	if err := e.store.Save(); err != nil {
		return fmt.Errorf("approving plan for %s: %w", taskID, err)
	}
	return nil
}

func (e *WorkflowEngine) transitionFrom(taskID string, from, to models.TaskStatus, note string) error {
	if err := e.store.Load(); err != nil {
		return fmt.Errorf("transitioning %s: %w", taskID, err)
	}
	task, ok := e.store.Get(taskID)
	if !ok {
		return fmt.Errorf("transitioning %s: %w", taskID, ErrTaskNotFound)
	}
	if task.Status != from {
		return fmt.Errorf("transitioning %s: %w: status is %s, expected %s",
			taskID, ErrWrongStatus, task.Status, from)
	}
	if err := e.transition(task, to, note); err != nil {
		return fmt.Errorf("transitioning %s: %w", taskID, err)
	}
	return nil
}

func (e *WorkflowEngine) transition(task *models.Task, to models.TaskStatus, note string) error {
	now := e.now()
	task.Status = to
	task.Updated = now
	task.History = append(task.History, models.HistoryEntry{Time: now, Note: note})
	if err := e.store.Put(*task); err != nil {
		return err
	}
	return e.store.Save()
}

func indexOf(tasks []models.Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func removeString(list []string, s string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
