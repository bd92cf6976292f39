// Package review runs blocking consultations with the reviewer and applies
// the parsed decision to the task workflow.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pmbridge/pmbridge/internal/broker"
	"github.com/pmbridge/pmbridge/internal/core"
	"github.com/pmbridge/pmbridge/pkg/models"
)

// Consultation is the outcome of one blocking exchange with the reviewer.
type Consultation struct {
	SessionID string
	Response  string
	Decision  core.Decision
}

// Gate submits work to the reviewer and blocks until a decision arrives or
// the consultation timeout elapses. A timeout is not a failure: the session
// keeps running and its events keep flowing to the activity log.
type Gate struct {
	broker       *broker.Broker
	engine       *core.WorkflowEngine
	timeout      time.Duration
	systemPrompt string
	engineer     string
	logger       *slog.Logger
}

// NewGate creates a Gate. systemPrompt is passed to every reviewer session;
// engineer tags the sessions' events.
func NewGate(b *broker.Broker, engine *core.WorkflowEngine, timeout time.Duration, systemPrompt, engineer string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		broker:       b,
		engine:       engine,
		timeout:      timeout,
		systemPrompt: systemPrompt,
		engineer:     engineer,
		logger:       logger,
	}
}

// Consult starts a reviewer session for the prompt and blocks until it ends
// or the timeout elapses. On timeout the decision outcome is still_running
// and the session is left alive.
func (g *Gate) Consult(ctx context.Context, prompt, taskID string) (*Consultation, error) {
	var mu sync.Mutex
	var response strings.Builder
	done := make(chan struct{})
	var once sync.Once

	sessionID, err := g.broker.StartSession(ctx, broker.StartRequest{
		Prompt:       prompt,
		SystemPrompt: g.systemPrompt,
		TaskID:       taskID,
		Engineer:     g.engineer,
		Consumer: func(ev models.ActivityEvent) {
			switch ev.Kind {
			case models.EventAgentMessage:
				mu.Lock()
				if response.Len() > 0 {
					response.WriteString("\n")
				}
				response.WriteString(ev.Text)
				mu.Unlock()
			case models.EventSessionEnd:
				once.Do(func() { close(done) })
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("consulting reviewer: %w", err)
	}

	select {
	case <-done:
	case <-time.After(g.timeout):
		g.logger.Warn("consultation still running after timeout",
			"session", sessionID, "timeout", g.timeout)
		return &Consultation{
			SessionID: sessionID,
			Response: fmt.Sprintf("Review session %s is still running after %s. "+
				"The reviewer has not finished; check the activity log for progress.",
				sessionID, g.timeout),
			Decision: core.Decision{Outcome: core.OutcomeStillRunning},
		}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("consulting reviewer: %w", ctx.Err())
	}

	mu.Lock()
	text := response.String()
	mu.Unlock()

	decision := core.ParseDecision(text)
	g.logger.Info("consultation finished",
		"session", sessionID, "outcome", decision.Outcome, "confidence", decision.Confidence)
	return &Consultation{SessionID: sessionID, Response: text, Decision: decision}, nil
}

// SubmitForReview moves the task to review, consults the reviewer with the
// summary, and applies the decision: approval completes the task, a change
// request sends it back to in_progress, anything else leaves it in review.
// A consultation error after the submit rolls the task back so it is not
// stranded.
func (g *Gate) SubmitForReview(ctx context.Context, taskID, summary string) (*Consultation, error) {
	if err := g.engine.Submit(taskID); err != nil {
		return nil, fmt.Errorf("submitting %s for review: %w", taskID, err)
	}

	prompt := fmt.Sprintf(
		"Task %s has been submitted for review.\n\nSummary of the work:\n%s\n\n"+
			"Review the work and reply with your decision: approve it, or request changes with specific action items.",
		taskID, summary)

	consultation, err := g.Consult(ctx, prompt, taskID)
	if err != nil {
		g.rollback(taskID)
		return nil, fmt.Errorf("reviewing %s: %w", taskID, err)
	}

	switch consultation.Decision.Outcome {
	case core.OutcomeApproved:
		if err := g.engine.Approve(taskID); err != nil {
			g.rollback(taskID)
			return consultation, fmt.Errorf("completing approved task %s: %w", taskID, err)
		}
	case core.OutcomeChangesRequested:
		if err := g.engine.RequestChanges(taskID); err != nil {
			g.rollback(taskID)
			return consultation, fmt.Errorf("returning %s for changes: %w", taskID, err)
		}
	}
	// needs_discussion and still_running leave the task in review.
	return consultation, nil
}

// rollback returns a task to in_progress after a review error so it is not
// stranded mid-review.
func (g *Gate) rollback(taskID string) {
	if err := g.engine.Rollback(taskID, models.StatusInProgress); err != nil {
		g.logger.Error("rolling back task after review error", "task", taskID, "error", err)
	}
}

// ProposePlan consults the reviewer about an implementation plan for a task
// that requires one, and marks the plan approved only on approval. The task
// stays unclaimable otherwise.
func (g *Gate) ProposePlan(ctx context.Context, taskID, plan string) (*Consultation, error) {
	if plan == "" {
		return nil, fmt.Errorf("proposing plan for %s: empty plan", taskID)
	}

	prompt := fmt.Sprintf(
		"Task %s requires an approved plan before work can start.\n\nProposed plan:\n%s\n\n"+
			"Approve the plan, or request changes with specific concerns.",
		taskID, plan)

	consultation, err := g.Consult(ctx, prompt, taskID)
	if err != nil {
		return nil, fmt.Errorf("proposing plan for %s: %w", taskID, err)
	}

	if consultation.Decision.Outcome == core.OutcomeApproved {
		if err := g.engine.ApprovePlan(taskID); err != nil {
			return consultation, fmt.Errorf("recording approved plan for %s: %w", taskID, err)
		}
	}
	return consultation, nil
}

// ProposeModification consults the reviewer about a modification batch and
// applies it only on approval.
func (g *Gate) ProposeModification(ctx context.Context, batch []models.TaskModification, rationale string) (*Consultation, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("proposing modification: empty batch")
	}

	prompt := fmt.Sprintf(
		"A change to the task list is proposed.\n\nRationale: %s\n\nProposed modifications:\n%s\n"+
			"Approve the proposal or request changes.",
		rationale, describeBatch(batch))

	consultation, err := g.Consult(ctx, prompt, firstTaskID(batch))
	if err != nil {
		return nil, fmt.Errorf("proposing modification: %w", err)
	}

	if consultation.Decision.Outcome == core.OutcomeApproved {
		if err := g.engine.ApplyModifications(batch); err != nil {
			return consultation, fmt.Errorf("applying approved modification: %w", err)
		}
	}
	return consultation, nil
}

// describeBatch renders a modification batch as numbered prose for the
// reviewer prompt.
func describeBatch(batch []models.TaskModification) string {
	var b strings.Builder
	for i, mod := range batch {
		fmt.Fprintf(&b, "%d. ", i+1)
		switch mod.Kind {
		case models.ModAdd:
			fmt.Fprintf(&b, "add task %q (priority %s", mod.Title, mod.Priority)
			if len(mod.Dependencies) > 0 {
				fmt.Fprintf(&b, ", depends on %s", strings.Join(mod.Dependencies, ", "))
			}
			b.WriteString(")")
		case models.ModDelete:
			fmt.Fprintf(&b, "delete task %s", mod.TaskID)
			if mod.Reason != "" {
				fmt.Fprintf(&b, " (%s)", mod.Reason)
			}
		case models.ModModify:
			fmt.Fprintf(&b, "modify task %s", mod.TaskID)
			if mod.NewTitle != nil {
				fmt.Fprintf(&b, ", new title %q", *mod.NewTitle)
			}
			if mod.NewPriority != nil {
				fmt.Fprintf(&b, ", new priority %s", *mod.NewPriority)
			}
		case models.ModBlock:
			fmt.Fprintf(&b, "block task %s on %s", mod.TaskID, mod.BlockedBy)
		case models.ModSplit:
			fmt.Fprintf(&b, "split task %s into %d subtasks: %s",
				mod.TaskID, len(mod.Subtasks), strings.Join(mod.Subtasks, "; "))
		default:
			fmt.Fprintf(&b, "%s task %s", mod.Kind, mod.TaskID)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func firstTaskID(batch []models.TaskModification) string {
	for _, mod := range batch {
		if mod.TaskID != "" {
			return mod.TaskID
		}
	}
	return ""
}
