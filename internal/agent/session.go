// Package agent launches reviewer subprocesses and converts their streamed
// output into activity events.
package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pmbridge/pmbridge/internal/core"
	"github.com/pmbridge/pmbridge/pkg/models"
)

// ErrSessionIDTimeout is returned when the subprocess does not announce its
// session ID within the configured wait.
var ErrSessionIDTimeout = errors.New("timed out waiting for session ID")

// stderrRingSize bounds how many stderr lines are kept for diagnostics.
const stderrRingSize = 50

// maxLineBytes is the scanner buffer limit; a single assistant message can
// carry a large tool result.
const maxLineBytes = 4 * 1024 * 1024

// InvokeRequest describes one subprocess invocation.
type InvokeRequest struct {
	Prompt       string
	SystemPrompt string
	// ResumeToken continues an earlier conversation when set.
	ResumeToken string
}

// Handle is a running reviewer session. Events yields activity events in
// the order the subprocess produced them and is closed after the final
// session_end event.
type Handle interface {
	ID() string
	Events() <-chan models.ActivityEvent
	Kill() error
}

// Launcher starts reviewer sessions.
type Launcher interface {
	Launch(ctx context.Context, req InvokeRequest) (Handle, error)
}

// processLauncher runs the configured reviewer command and parses its
// line-delimited JSON stream.
type processLauncher struct {
	command string
	args    []string
	idWait  time.Duration
	logger  *slog.Logger
}

// NewProcessLauncher creates a Launcher for the given command line. idWait
// bounds how long Launch blocks waiting for the subprocess to announce its
// session ID.
func NewProcessLauncher(command string, args []string, idWait time.Duration, logger *slog.Logger) Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &processLauncher{command: command, args: args, idWait: idWait, logger: logger}
}

// Launch starts the subprocess, writes the prompt to stdin, and blocks until
// the session ID arrives or idWait elapses. On timeout the subprocess is
// killed and ErrSessionIDTimeout returned.
func (l *processLauncher) Launch(ctx context.Context, req InvokeRequest) (Handle, error) {
	args := append([]string(nil), l.args...)
	args = append(args, "-p", "--output-format", "stream-json", "--verbose")
	if req.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", req.SystemPrompt)
	}
	if req.ResumeToken != "" {
		args = append(args, "--resume", req.ResumeToken)
	}

	cmd := exec.CommandContext(ctx, l.command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("launching reviewer: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("launching reviewer: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("launching reviewer: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launching reviewer %s: %w", l.command, err)
	}
	l.logger.Debug("reviewer subprocess started", "command", l.command, "pid", cmd.Process.Pid)

	stderrRing, _ := core.NewRing[string](stderrRingSize)
	h := &processHandle{
		cmd:        cmd,
		events:     make(chan models.ActivityEvent, 64),
		idReady:    make(chan struct{}),
		streamDone: make(chan struct{}),
		done:       make(chan struct{}),
		stderr:     stderrRing,
		logger:     l.logger,
	}

	go func() {
		defer stdin.Close()
		if _, err := io.WriteString(stdin, req.Prompt); err != nil {
			l.logger.Warn("writing prompt to reviewer stdin", "error", err)
		}
	}()
	go h.drainStderr(stderr)
	go h.readStream(stdout)

	select {
	case <-h.idReady:
		return h, nil
	case <-h.streamDone:
		// A fast subprocess may finish before the select runs; the stream
		// ending is only a failure when no ID was ever announced.
		if h.ID() != "" {
			return h, nil
		}
		_ = h.Kill()
		return nil, fmt.Errorf("launching reviewer: subprocess exited before announcing a session ID (stderr: %s)",
			strings.Join(h.stderr.Items(), " | "))
	case <-time.After(l.idWait):
		_ = h.Kill()
		return nil, fmt.Errorf("launching reviewer: %w after %s", ErrSessionIDTimeout, l.idWait)
	case <-ctx.Done():
		_ = h.Kill()
		return nil, fmt.Errorf("launching reviewer: %w", ctx.Err())
	}
}

type processHandle struct {
	cmd    *exec.Cmd
	events chan models.ActivityEvent
	stderr *core.Ring[string]
	logger *slog.Logger

	idReady    chan struct{}
	idOnce     sync.Once
	streamDone chan struct{}
	done       chan struct{}
	doneOnce   sync.Once

	mu        sync.Mutex
	sessionID string
}

func (h *processHandle) ID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessionID
}

func (h *processHandle) Events() <-chan models.ActivityEvent { return h.events }

// Kill terminates the subprocess. The event stream ends with session_end as
// the reader drains.
func (h *processHandle) Kill() error {
	h.doneOnce.Do(func() { close(h.done) })
	if h.cmd.Process == nil {
		return nil
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing reviewer session %s: %w", h.ID(), err)
	}
	return nil
}

// emit delivers an event unless the handle has been killed and abandoned.
func (h *processHandle) emit(ev models.ActivityEvent) {
	ev.Timestamp = time.Now().UTC()
	ev.SessionID = h.ID()
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

func (h *processHandle) drainStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		h.stderr.Push(line)
		h.logger.Debug("reviewer stderr", "session", h.ID(), "line", line)
	}
}

// streamLine is one line of the subprocess's stream-json output.
type streamLine struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Message   *struct {
		Content []contentBlock `json:"content"`
	} `json:"message"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     map[string]any  `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
}

// readStream parses stdout line by line. Malformed lines are skipped; the
// stream must survive a chatty subprocess. After EOF it reaps the process,
// emits the final session_end, and closes the event channel.
func (h *processHandle) readStream(r io.Reader) {
	ended := false

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var line streamLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			h.logger.Debug("skipping malformed stream line", "session", h.ID(), "error", err)
			continue
		}

		switch line.Type {
		case "system":
			if line.Subtype == "init" && line.SessionID != "" {
				h.mu.Lock()
				h.sessionID = line.SessionID
				h.mu.Unlock()
				h.idOnce.Do(func() { close(h.idReady) })
				h.emit(models.ActivityEvent{Kind: models.EventSessionStart})
			}
		case "assistant":
			if line.Message == nil {
				continue
			}
			for _, block := range line.Message.Content {
				switch block.Type {
				case "text":
					if block.Text != "" {
						h.emit(models.ActivityEvent{Kind: models.EventAgentMessage, Text: block.Text})
					}
				case "tool_use":
					h.emit(models.ActivityEvent{
						Kind:      models.EventToolUse,
						Tool:      block.Name,
						ToolArgs:  block.Input,
						ToolUseID: block.ID,
					})
				}
			}
		case "user":
			if line.Message == nil {
				continue
			}
			for _, block := range line.Message.Content {
				if block.Type != "tool_result" {
					continue
				}
				h.emit(models.ActivityEvent{
					Kind:         models.EventToolResult,
					Result:       flattenResult(block.Content),
					CorrelatesTo: block.ToolUseID,
				})
			}
		case "result":
			reason := "completed"
			if line.IsError {
				reason = "error"
			}
			h.emit(models.ActivityEvent{Kind: models.EventSessionEnd, ExitReason: reason, Text: line.Result})
			ended = true
		case "error":
			h.emit(models.ActivityEvent{Kind: models.EventError, Message: line.Result})
		}
	}
	if err := sc.Err(); err != nil {
		h.logger.Warn("reading reviewer stream", "session", h.ID(), "error", err)
	}

	err := h.cmd.Wait()
	if err != nil && !ended {
		msg := err.Error()
		if tail := h.stderr.Items(); len(tail) > 0 {
			msg = fmt.Sprintf("%s: %s", msg, strings.Join(tail, " | "))
		}
		h.emit(models.ActivityEvent{Kind: models.EventError, Message: msg})
	}
	if !ended {
		reason := "completed"
		if err != nil {
			reason = "killed"
		}
		h.emit(models.ActivityEvent{Kind: models.EventSessionEnd, ExitReason: reason})
	}
	close(h.streamDone)
	close(h.events)
}

// flattenResult renders a tool_result payload as one string. The payload is
// either a plain string or a list of typed blocks.
func flattenResult(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		parts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(raw)
}
