package activity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pmbridge/pmbridge/pkg/models"
)

func newTestRecorder(t *testing.T, dir string) *Recorder {
	t.Helper()
	r, err := NewRecorder(dir, 10*1024*1024, 5, nil)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	return r
}

func sessionEvents(sessionID string, seqStart uint64) []models.ActivityEvent {
	ts := time.Now().UTC()
	return []models.ActivityEvent{
		{Kind: models.EventSessionStart, SessionID: sessionID, Seq: seqStart, Timestamp: ts, TaskID: "TASK-1"},
		{Kind: models.EventAgentMessage, SessionID: sessionID, Seq: seqStart + 1, Timestamp: ts, Text: "reviewing"},
		{Kind: models.EventSessionEnd, SessionID: sessionID, Seq: seqStart + 2, Timestamp: ts, ExitReason: "completed"},
	}
}

func TestRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := newTestRecorder(t, dir)

	events := sessionEvents("sess-1", 1)
	for _, ev := range events {
		r.Record(ev)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := r.ReadRecent(0)
	if err != nil {
		t.Fatalf("read recent: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("expected %d events, got %d", len(events), len(got))
	}
	for i := range events {
		if got[i].Kind != events[i].Kind || got[i].SessionID != events[i].SessionID {
			t.Errorf("event %d = %+v, want %+v", i, got[i], events[i])
		}
	}
}

func TestRecordWritesNarrative(t *testing.T) {
	dir := t.TempDir()
	r := newTestRecorder(t, dir)

	ts := time.Now().UTC()
	r.Record(models.ActivityEvent{Kind: models.EventSessionStart, SessionID: "sess-n", Timestamp: ts, TaskID: "TASK-3"})
	r.Record(models.ActivityEvent{
		Kind: models.EventToolUse, SessionID: "sess-n", Timestamp: ts,
		Tool: "read_file", ToolArgs: map[string]any{"path": "main.go"},
	})
	r.Record(models.ActivityEvent{Kind: models.EventToolResult, SessionID: "sess-n", Timestamp: ts, Result: "package main"})
	r.Record(models.ActivityEvent{Kind: models.EventSessionEnd, SessionID: "sess-n", Timestamp: ts, ExitReason: "completed"})
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "activity.log"))
	if err != nil {
		t.Fatalf("reading narrative: %v", err)
	}
	text := string(raw)

	for _, want := range []string{
		"==== session sess-n started",
		"(task TASK-3)",
		"-> read_file path=main.go",
		"<- package main",
		"==== session sess-n ended",
		"(completed)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("narrative missing %q:\n%s", want, text)
		}
	}
}

func TestReadRecent_MissingFile(t *testing.T) {
	r := newTestRecorder(t, t.TempDir())
	defer r.Close()

	got, err := r.ReadRecent(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no events, got %d", len(got))
	}
}

func TestReadRecent_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	content := `{"kind":"session_start","session_id":"sess-1","ts":"2026-08-24T10:00:00Z"}
not json at all
{"kind":"session_end","session_id":"sess-1","ts":"2026-08-24T10:01:00Z"}
`
	if err := os.WriteFile(filepath.Join(dir, "activity.jsonl"), []byte(content), 0o600); err != nil {
		t.Fatalf("seeding file: %v", err)
	}
	r := newTestRecorder(t, dir)
	defer r.Close()

	got, err := r.ReadRecent(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 parsed events, got %d", len(got))
	}
}

func TestReadRecent_Limit(t *testing.T) {
	dir := t.TempDir()
	r := newTestRecorder(t, dir)

	for i := 0; i < 10; i++ {
		r.Record(models.ActivityEvent{
			Kind: models.EventAgentMessage, SessionID: "sess-1",
			Seq: uint64(i + 1), Timestamp: time.Now().UTC(), Text: fmt.Sprintf("m%d", i),
		})
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := r.ReadRecent(3)
	if err != nil {
		t.Fatalf("read recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[2].Text != "m9" {
		t.Errorf("newest event = %q, want m9", got[2].Text)
	}
}

func TestReadRecent_LimitSkipsTrailingMalformed(t *testing.T) {
	dir := t.TempDir()
	content := `{"kind":"agent_message","session_id":"sess-1","text":"m1","ts":"2026-08-24T10:00:00Z"}
{"kind":"agent_message","session_id":"sess-1","text":"m2","ts":"2026-08-24T10:00:01Z"}
{"kind":"agent_message","session_id":"sess-1","text":"m3","ts":"2026-08-24T10:00:02Z"}
garbage that is not json
{broken
`
	if err := os.WriteFile(filepath.Join(dir, "activity.jsonl"), []byte(content), 0o600); err != nil {
		t.Fatalf("seeding file: %v", err)
	}
	r := newTestRecorder(t, dir)
	defer r.Close()

	got, err := r.ReadRecent(2)
	if err != nil {
		t.Fatalf("read recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Text != "m2" || got[1].Text != "m3" {
		t.Errorf("events = [%s, %s], want [m2, m3]", got[0].Text, got[1].Text)
	}
}

func TestRotation_GroupsSessionsAcrossRuns(t *testing.T) {
	dir := t.TempDir()

	// Two process runs: Seq restarts at 1 in the second, overlapping the
	// first run's numbers. Rotation must keep each session's events
	// together instead of ordering by Seq across runs.
	var lines []string
	for _, ev := range sessionEvents("run1-a", 1) {
		raw, _ := json.Marshal(ev)
		lines = append(lines, string(raw))
	}
	for _, ev := range sessionEvents("run1-b", 4) {
		raw, _ := json.Marshal(ev)
		lines = append(lines, string(raw))
	}
	for _, ev := range sessionEvents("run2-c", 1) {
		raw, _ := json.Marshal(ev)
		lines = append(lines, string(raw))
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, "activity.jsonl"), []byte(content), 0o600); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	rotated, err := NewRecorder(dir, 1, 3, nil)
	if err != nil {
		t.Fatalf("rotating: %v", err)
	}
	defer rotated.Close()

	got, err := rotated.ReadRecent(0)
	if err != nil {
		t.Fatalf("read recent: %v", err)
	}
	if len(got) != 9 {
		t.Fatalf("expected all 9 events retained, got %d", len(got))
	}

	wantOrder := []string{
		"run1-a", "run1-a", "run1-a",
		"run1-b", "run1-b", "run1-b",
		"run2-c", "run2-c", "run2-c",
	}
	for i, ev := range got {
		if ev.SessionID != wantOrder[i] {
			t.Fatalf("event %d belongs to %s, want %s (sessions interleaved)", i, ev.SessionID, wantOrder[i])
		}
	}
}

func TestRotation_KeepsLastSessions(t *testing.T) {
	dir := t.TempDir()

	// Seed seven sessions, then reopen with a 1-byte threshold so rotation
	// fires and keeps the last three.
	r := newTestRecorder(t, dir)
	seq := uint64(1)
	for i := 1; i <= 7; i++ {
		for _, ev := range sessionEvents(fmt.Sprintf("sess-%d", i), seq) {
			r.Record(ev)
		}
		seq += 3
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rotated, err := NewRecorder(dir, 1, 3, nil)
	if err != nil {
		t.Fatalf("reopening recorder: %v", err)
	}
	defer rotated.Close()

	got, err := rotated.ReadRecent(0)
	if err != nil {
		t.Fatalf("read recent: %v", err)
	}

	seen := make(map[string]bool)
	for _, ev := range got {
		seen[ev.SessionID] = true
	}
	for i := 1; i <= 4; i++ {
		if seen[fmt.Sprintf("sess-%d", i)] {
			t.Errorf("rotated-out session sess-%d still present", i)
		}
	}
	for i := 5; i <= 7; i++ {
		if !seen[fmt.Sprintf("sess-%d", i)] {
			t.Errorf("retained session sess-%d missing", i)
		}
	}
	if len(got) != 9 {
		t.Errorf("expected 9 retained events, got %d", len(got))
	}

	// The narrative is regenerated to match.
	raw, err := os.ReadFile(filepath.Join(dir, "activity.log"))
	if err != nil {
		t.Fatalf("reading narrative: %v", err)
	}
	if strings.Contains(string(raw), "sess-1 ") {
		t.Error("narrative still mentions a rotated-out session")
	}
	if !strings.Contains(string(raw), "sess-7") {
		t.Error("narrative missing a retained session")
	}
}

func TestRotation_BelowThresholdNoChange(t *testing.T) {
	dir := t.TempDir()
	r := newTestRecorder(t, dir)
	for _, ev := range sessionEvents("sess-1", 1) {
		r.Record(ev)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	before, _ := os.ReadFile(filepath.Join(dir, "activity.jsonl"))

	reopened, err := NewRecorder(dir, 10*1024*1024, 5, nil)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer reopened.Close()

	after, _ := os.ReadFile(filepath.Join(dir, "activity.jsonl"))
	if string(before) != string(after) {
		t.Error("file changed although below the rotation threshold")
	}
}
