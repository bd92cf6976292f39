package models

import "time"

// EventKind discriminates the ActivityEvent variants.
type EventKind string

const (
	EventSessionStart EventKind = "session_start"
	EventToolUse      EventKind = "tool_use"
	EventToolResult   EventKind = "tool_result"
	EventAgentMessage EventKind = "agent_message"
	EventSessionEnd   EventKind = "session_end"
	EventError        EventKind = "error"
)

// SessionStatus is the lifecycle state of a reviewer consultation.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// ActivityEvent is one parsed unit of the reviewer process's output stream.
// The Kind field selects which payload fields are meaningful. The broker
// enhances raw events with Seq, Engineer, TaskID, and SessionStatus before
// distribution.
type ActivityEvent struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"ts"`
	SessionID string    `json:"session_id,omitempty"`

	// tool_use
	Tool      string         `json:"tool,omitempty"`
	ToolArgs  map[string]any `json:"tool_args,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`

	// tool_result
	Result       string `json:"result,omitempty"`
	CorrelatesTo string `json:"correlates_to,omitempty"`

	// agent_message
	Text string `json:"text,omitempty"`

	// session_end
	ExitReason string `json:"exit_reason,omitempty"`

	// error
	Message string `json:"message,omitempty"`

	// Enhanced by the broker.
	Seq           uint64        `json:"seq,omitempty"`
	Engineer      string        `json:"engineer,omitempty"`
	TaskID        string        `json:"task_id,omitempty"`
	SessionStatus SessionStatus `json:"session_status,omitempty"`
}

// SessionMetadata tracks one consultation with the reviewer process. The ID
// is issued by the external process, never fabricated locally. Metadata is
// created when a consultation starts, flipped to completed on session_end,
// and never deleted for the lifetime of the broker.
type SessionMetadata struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Status    SessionStatus `json:"status"`
	TaskID    string        `json:"task_id,omitempty"`
	Engineer  string        `json:"engineer,omitempty"`
}
