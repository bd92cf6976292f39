// Package mcp exposes the pmbridge workflow as MCP (Model Context Protocol)
// tools for AI coding assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pmbridge/pmbridge/internal/core"
	"github.com/pmbridge/pmbridge/internal/review"
	"github.com/pmbridge/pmbridge/pkg/models"
)

// reviewGate is the slice of the review gate the server needs. Narrowed to
// an interface so tests can script decisions without subprocesses.
type reviewGate interface {
	SubmitForReview(ctx context.Context, taskID, summary string) (*review.Consultation, error)
	ProposeModification(ctx context.Context, batch []models.TaskModification, rationale string) (*review.Consultation, error)
	ProposePlan(ctx context.Context, taskID, plan string) (*review.Consultation, error)
}

// activityReader reads back persisted activity events.
type activityReader interface {
	ReadRecent(limit int) ([]models.ActivityEvent, error)
}

// Server wraps the workflow engine and review gate and exposes them as MCP
// tools. Every call is checked against the configured role's capabilities.
type Server struct {
	server   *gomcp.Server
	engine   *core.WorkflowEngine
	gate     reviewGate
	activity activityReader
	role     models.Role
}

// NewServer creates the MCP server. activity may be nil when no recorder is
// wired; get_recent_activity then reports an error result.
func NewServer(engine *core.WorkflowEngine, gate reviewGate, activity activityReader, role models.Role, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		engine:   engine,
		gate:     gate,
		activity: activity,
		role:     role,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "pmbridge", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type getNextTaskInput struct {
	Count int `json:"count,omitempty" jsonschema:"maximum number of eligible tasks to return (default 1)"`
}

type taskOutput struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Status       string   `json:"status"`
	Priority     string   `json:"priority"`
	Dependencies []string `json:"dependencies,omitempty"`
	BlockedBy    string   `json:"blocked_by,omitempty"`
	RequiresPlan bool     `json:"requires_plan,omitempty"`
	PlanApproved bool     `json:"plan_approved,omitempty"`
	Created      string   `json:"created"`
	Updated      string   `json:"updated"`
}

type getNextTaskOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type claimTaskInput struct {
	TaskID string `json:"task_id" jsonschema:"required,the task identifier (e.g. TASK-42)"`
}

type claimTaskOutput struct {
	Task    taskOutput `json:"task"`
	Message string     `json:"message"`
}

type submitForReviewInput struct {
	TaskID  string `json:"task_id" jsonschema:"required,the task identifier (e.g. TASK-42)"`
	Summary string `json:"summary" jsonschema:"required,summary of the completed work for the reviewer"`
}

type reviewOutput struct {
	SessionID   string   `json:"session_id"`
	Outcome     string   `json:"outcome"`
	Response    string   `json:"response"`
	ActionItems []string `json:"action_items,omitempty"`
	Confidence  float64  `json:"confidence"`
}

type modificationInput struct {
	Kind           string    `json:"kind" jsonschema:"required,one of add delete modify block split"`
	Title          string    `json:"title,omitempty" jsonschema:"title of the new task (add)"`
	Priority       string    `json:"priority,omitempty" jsonschema:"priority of the new task (low, medium, high, critical)"`
	Dependencies   []string  `json:"dependencies,omitempty" jsonschema:"task IDs the new task depends on (add)"`
	RequiresPlan   bool      `json:"requires_plan,omitempty" jsonschema:"whether the new task needs an approved plan before claiming (add)"`
	TaskID         string    `json:"task_id,omitempty" jsonschema:"target task ID (delete, modify, block, split)"`
	Reason         string    `json:"reason,omitempty" jsonschema:"why the task is deleted (delete)"`
	NewTitle       *string   `json:"new_title,omitempty" jsonschema:"replacement title (modify)"`
	NewDescription *string   `json:"new_description,omitempty" jsonschema:"replacement description (modify)"`
	NewPriority    *string   `json:"new_priority,omitempty" jsonschema:"replacement priority (modify)"`
	NewDeps        *[]string `json:"new_dependencies,omitempty" jsonschema:"replacement dependency list (modify)"`
	BlockedBy      string    `json:"blocked_by,omitempty" jsonschema:"blocking task ID (block)"`
	Subtasks       []string  `json:"subtasks,omitempty" jsonschema:"ordered subtask titles (split)"`
}

type proposePlanInput struct {
	TaskID string `json:"task_id" jsonschema:"required,the task identifier (e.g. TASK-42)"`
	Plan   string `json:"plan" jsonschema:"required,the implementation plan for the reviewer to evaluate"`
}

type proposeModificationInput struct {
	Modifications []modificationInput `json:"modifications" jsonschema:"required,ordered modification batch"`
	Rationale     string              `json:"rationale" jsonschema:"required,why the change to the task list is needed"`
}

type updateTasksInput struct {
	Modifications []modificationInput `json:"modifications" jsonschema:"required,ordered modification batch"`
}

type updateTasksOutput struct {
	Message string `json:"message"`
}

type listTasksInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter tasks by status (pending, in_progress, review, done)"`
}

type listTasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type getRecentActivityInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of events to return (default 50)"`
}

type activityEventOutput struct {
	Seq       uint64 `json:"seq"`
	Kind      string `json:"kind"`
	Timestamp string `json:"ts"`
	SessionID string `json:"session_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
	Tool      string `json:"tool,omitempty"`
	Text      string `json:"text,omitempty"`
	Result    string `json:"result,omitempty"`
	Message   string `json:"message,omitempty"`
}

type getRecentActivityOutput struct {
	Events []activityEventOutput `json:"events"`
	Count  int                   `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_next_task",
		Description: "Get the next eligible task(s): pending, unblocked, with all dependencies done, ordered by priority.",
	}, s.handleGetNextTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "claim_task",
		Description: "Claim a pending task and move it to in_progress. Fails with an actionable message if the task is blocked, has unfinished dependencies, or needs an approved plan.",
	}, s.handleClaimTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "submit_for_review",
		Description: "Submit an in_progress task for review. Blocks while the reviewer evaluates the summary and applies the decision to the task.",
	}, s.handleSubmitForReview)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "propose_modification",
		Description: "Propose a batch of task-list modifications (add, delete, modify, block, split). The batch is applied only if the reviewer approves it.",
	}, s.handleProposeModification)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "propose_plan",
		Description: "Propose an implementation plan for a task that requires one. The task becomes claimable only after the reviewer approves the plan.",
	}, s.handleProposePlan)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "update_tasks",
		Description: "Apply a modification batch directly, without reviewer approval. Reviewer role only.",
	}, s.handleUpdateTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List all tasks with an optional status filter.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_recent_activity",
		Description: "Read the most recent activity events: session lifecycles, reviewer messages, tool calls and results.",
	}, s.handleGetRecentActivity)
}

// --- Tool handlers ---

func (s *Server) handleGetNextTask(_ context.Context, _ *gomcp.CallToolRequest, input getNextTaskInput) (*gomcp.CallToolResult, getNextTaskOutput, error) {
	if err := core.Authorize(s.role, "get_next_task"); err != nil {
		return errorResult(err.Error()), getNextTaskOutput{}, nil
	}

	count := input.Count
	if count <= 0 {
		count = 1
	}

	tasks, err := s.engine.NextEligible(count)
	if err != nil {
		return errorResult(fmt.Sprintf("finding eligible tasks: %s", err)), getNextTaskOutput{}, nil
	}

	out := getNextTaskOutput{
		Tasks: make([]taskOutput, len(tasks)),
		Count: len(tasks),
	}
	for i, t := range tasks {
		out.Tasks[i] = taskToOutput(t)
	}
	return nil, out, nil
}

func (s *Server) handleClaimTask(_ context.Context, _ *gomcp.CallToolRequest, input claimTaskInput) (*gomcp.CallToolResult, claimTaskOutput, error) {
	if err := core.Authorize(s.role, "claim_task"); err != nil {
		return errorResult(err.Error()), claimTaskOutput{}, nil
	}
	if input.TaskID == "" {
		return errorResult("task_id is required"), claimTaskOutput{}, nil
	}

	task, err := s.engine.Claim(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("claiming task %s: %s", input.TaskID, err)), claimTaskOutput{}, nil
	}

	out := claimTaskOutput{
		Task:    taskToOutput(*task),
		Message: fmt.Sprintf("task %s claimed and moved to in_progress", task.ID),
	}
	return nil, out, nil
}

func (s *Server) handleSubmitForReview(ctx context.Context, _ *gomcp.CallToolRequest, input submitForReviewInput) (*gomcp.CallToolResult, reviewOutput, error) {
	if err := core.Authorize(s.role, "submit_for_review"); err != nil {
		return errorResult(err.Error()), reviewOutput{}, nil
	}
	if input.TaskID == "" {
		return errorResult("task_id is required"), reviewOutput{}, nil
	}
	if input.Summary == "" {
		return errorResult("summary is required: the reviewer needs to know what was done"), reviewOutput{}, nil
	}

	result, err := s.gate.SubmitForReview(ctx, input.TaskID, input.Summary)
	if err != nil {
		return errorResult(fmt.Sprintf("reviewing task %s: %s", input.TaskID, err)), reviewOutput{}, nil
	}
	return nil, reviewToOutput(result), nil
}

func (s *Server) handleProposeModification(ctx context.Context, _ *gomcp.CallToolRequest, input proposeModificationInput) (*gomcp.CallToolResult, reviewOutput, error) {
	if err := core.Authorize(s.role, "propose_modification"); err != nil {
		return errorResult(err.Error()), reviewOutput{}, nil
	}
	if len(input.Modifications) == 0 {
		return errorResult("modifications must not be empty"), reviewOutput{}, nil
	}
	if input.Rationale == "" {
		return errorResult("rationale is required: the reviewer needs to know why"), reviewOutput{}, nil
	}

	batch, err := toModifications(input.Modifications)
	if err != nil {
		return errorResult(err.Error()), reviewOutput{}, nil
	}

	result, err := s.gate.ProposeModification(ctx, batch, input.Rationale)
	if err != nil {
		return errorResult(fmt.Sprintf("proposing modification: %s", err)), reviewOutput{}, nil
	}
	return nil, reviewToOutput(result), nil
}

func (s *Server) handleProposePlan(ctx context.Context, _ *gomcp.CallToolRequest, input proposePlanInput) (*gomcp.CallToolResult, reviewOutput, error) {
	if err := core.Authorize(s.role, "propose_plan"); err != nil {
		return errorResult(err.Error()), reviewOutput{}, nil
	}
	if input.TaskID == "" {
		return errorResult("task_id is required"), reviewOutput{}, nil
	}
	if input.Plan == "" {
		return errorResult("plan is required: the reviewer needs to know what you intend to do"), reviewOutput{}, nil
	}

	result, err := s.gate.ProposePlan(ctx, input.TaskID, input.Plan)
	if err != nil {
		return errorResult(fmt.Sprintf("proposing plan for %s: %s", input.TaskID, err)), reviewOutput{}, nil
	}
	return nil, reviewToOutput(result), nil
}

func (s *Server) handleUpdateTasks(_ context.Context, _ *gomcp.CallToolRequest, input updateTasksInput) (*gomcp.CallToolResult, updateTasksOutput, error) {
	if err := core.Authorize(s.role, "update_tasks"); err != nil {
		return errorResult(err.Error()), updateTasksOutput{}, nil
	}
	if len(input.Modifications) == 0 {
		return errorResult("modifications must not be empty"), updateTasksOutput{}, nil
	}

	batch, err := toModifications(input.Modifications)
	if err != nil {
		return errorResult(err.Error()), updateTasksOutput{}, nil
	}

	if err := s.engine.ApplyModifications(batch); err != nil {
		return errorResult(fmt.Sprintf("applying modifications: %s", err)), updateTasksOutput{}, nil
	}

	out := updateTasksOutput{
		Message: fmt.Sprintf("%d modification(s) applied", len(batch)),
	}
	return nil, out, nil
}

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	if err := core.Authorize(s.role, "list_tasks"); err != nil {
		return errorResult(err.Error()), listTasksOutput{}, nil
	}

	tasks, err := s.engine.ListTasks()
	if err != nil {
		return errorResult(fmt.Sprintf("listing tasks: %s", err)), listTasksOutput{}, nil
	}

	out := listTasksOutput{Tasks: make([]taskOutput, 0, len(tasks))}
	for _, t := range tasks {
		if input.Status != "" && t.Status != models.TaskStatus(input.Status) {
			continue
		}
		out.Tasks = append(out.Tasks, taskToOutput(t))
	}
	out.Count = len(out.Tasks)
	return nil, out, nil
}

func (s *Server) handleGetRecentActivity(_ context.Context, _ *gomcp.CallToolRequest, input getRecentActivityInput) (*gomcp.CallToolResult, getRecentActivityOutput, error) {
	if err := core.Authorize(s.role, "get_recent_activity"); err != nil {
		return errorResult(err.Error()), getRecentActivityOutput{}, nil
	}
	if s.activity == nil {
		return errorResult("activity recorder not available"), getRecentActivityOutput{}, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}

	events, err := s.activity.ReadRecent(limit)
	if err != nil {
		return errorResult(fmt.Sprintf("reading activity: %s", err)), getRecentActivityOutput{}, nil
	}

	out := getRecentActivityOutput{
		Events: make([]activityEventOutput, len(events)),
		Count:  len(events),
	}
	for i, ev := range events {
		out.Events[i] = activityEventOutput{
			Seq:       ev.Seq,
			Kind:      string(ev.Kind),
			Timestamp: ev.Timestamp.Format(time.RFC3339),
			SessionID: ev.SessionID,
			TaskID:    ev.TaskID,
			Tool:      ev.Tool,
			Text:      ev.Text,
			Result:    ev.Result,
			Message:   ev.Message,
		}
	}
	return nil, out, nil
}

// --- Helpers ---

func taskToOutput(t models.Task) taskOutput {
	return taskOutput{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Status:       string(t.Status),
		Priority:     string(t.Priority),
		Dependencies: t.Dependencies,
		BlockedBy:    t.BlockedBy,
		RequiresPlan: t.RequiresPlan,
		PlanApproved: t.PlanApproved,
		Created:      t.Created.Format(time.RFC3339),
		Updated:      t.Updated.Format(time.RFC3339),
	}
}

func reviewToOutput(r *review.Consultation) reviewOutput {
	return reviewOutput{
		SessionID:   r.SessionID,
		Outcome:     string(r.Decision.Outcome),
		Response:    r.Response,
		ActionItems: r.Decision.ActionItems,
		Confidence:  r.Decision.Confidence,
	}
}

func toModifications(inputs []modificationInput) ([]models.TaskModification, error) {
	batch := make([]models.TaskModification, 0, len(inputs))
	for i, in := range inputs {
		kind := models.ModificationKind(in.Kind)
		switch kind {
		case models.ModAdd, models.ModDelete, models.ModModify, models.ModBlock, models.ModSplit:
		default:
			return nil, fmt.Errorf("modification %d: unsupported kind %q (use add, delete, modify, block, or split)", i+1, in.Kind)
		}

		mod := models.TaskModification{
			Kind:           kind,
			Title:          in.Title,
			Priority:       models.Priority(in.Priority),
			Dependencies:   in.Dependencies,
			RequiresPlan:   in.RequiresPlan,
			TaskID:         in.TaskID,
			Reason:         in.Reason,
			NewTitle:       in.NewTitle,
			NewDescription: in.NewDescription,
			NewDeps:        in.NewDeps,
			BlockedBy:      in.BlockedBy,
			Subtasks:       in.Subtasks,
		}
		if in.NewPriority != nil {
			p := models.Priority(*in.NewPriority)
			mod.NewPriority = &p
		}
		batch = append(batch, mod)
	}
	return batch, nil
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
