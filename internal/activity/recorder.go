// Package activity persists the event stream in two formats: a structured
// JSONL file for programmatic reads and a narrative log for humans.
package activity

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pmbridge/pmbridge/pkg/models"
)

const (
	jsonlName = "activity.jsonl"
	logName   = "activity.log"
)

// maxResultExcerpt caps how much of a tool result appears in the narrative
// log. The full result stays in the JSONL file.
const maxResultExcerpt = 400

// Recorder appends activity events to both files through an asynchronous
// queue so recording never blocks event distribution. Write failures are
// logged, not returned; rotation failure in New is the one fatal path.
type Recorder struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []models.ActivityEvent
	closing bool

	done chan struct{}
}

// NewRecorder opens (and if needed rotates) the activity files under dir.
// Rotation triggers when the JSONL file has reached rotateBytes and retains
// the events of the keepSessions most recently started sessions.
func NewRecorder(dir string, rotateBytes int64, keepSessions int, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := rotateIfNeeded(dir, rotateBytes, keepSessions); err != nil {
		return nil, fmt.Errorf("rotating activity files: %w", err)
	}

	r := &Recorder{
		dir:    dir,
		logger: logger,
		done:   make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	go r.writeLoop()
	return r, nil
}

// Record enqueues one event for persistence. Never blocks and never fails.
func (r *Recorder) Record(ev models.ActivityEvent) {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, ev)
	r.mu.Unlock()
	r.cond.Signal()
}

// Close drains the queue and stops the writer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return nil
	}
	r.closing = true
	r.mu.Unlock()
	r.cond.Signal()
	<-r.done
	return nil
}

func (r *Recorder) writeLoop() {
	defer close(r.done)
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closing {
			r.cond.Wait()
		}
		batch := r.queue
		r.queue = nil
		closing := r.closing
		r.mu.Unlock()

		if len(batch) > 0 {
			r.flush(batch)
		}
		if closing {
			return
		}
	}
}

// flush appends a batch to both files. Failures are logged; the stream to
// live subscribers is unaffected either way.
func (r *Recorder) flush(batch []models.ActivityEvent) {
	if err := appendLines(filepath.Join(r.dir, jsonlName), encodeJSONL(batch)); err != nil {
		r.logger.Error("writing activity.jsonl", "error", err, "events", len(batch))
	}
	if err := appendLines(filepath.Join(r.dir, logName), renderNarrative(batch)); err != nil {
		r.logger.Error("writing activity.log", "error", err, "events", len(batch))
	}
}

func appendLines(path string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}

func encodeJSONL(batch []models.ActivityEvent) []string {
	lines := make([]string, 0, len(batch))
	for _, ev := range batch {
		raw, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		lines = append(lines, string(raw))
	}
	return lines
}

// renderNarrative converts events into the human-readable log format.
func renderNarrative(batch []models.ActivityEvent) []string {
	var lines []string
	for _, ev := range batch {
		ts := ev.Timestamp.Format("15:04:05")
		switch ev.Kind {
		case models.EventSessionStart:
			header := fmt.Sprintf("==== session %s started at %s", ev.SessionID, ts)
			if ev.TaskID != "" {
				header += fmt.Sprintf(" (task %s)", ev.TaskID)
			}
			lines = append(lines, header+" ====")
		case models.EventAgentMessage:
			for _, l := range strings.Split(strings.TrimRight(ev.Text, "\n"), "\n") {
				lines = append(lines, fmt.Sprintf("%s | %s", ts, l))
			}
		case models.EventToolUse:
			lines = append(lines, fmt.Sprintf("%s | -> %s %s", ts, ev.Tool, condenseArgs(ev.ToolArgs)))
		case models.EventToolResult:
			lines = append(lines, fmt.Sprintf("%s |    <- %s", ts, excerpt(ev.Result)))
		case models.EventError:
			lines = append(lines, fmt.Sprintf("%s | !! %s", ts, ev.Message))
		case models.EventSessionEnd:
			lines = append(lines, fmt.Sprintf("==== session %s ended at %s (%s) ====", ev.SessionID, ts, ev.ExitReason))
		}
	}
	return lines
}

// condenseArgs renders tool arguments as key=value pairs in key order.
func condenseArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return excerpt(strings.Join(parts, " "))
}

func excerpt(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxResultExcerpt {
		return s[:maxResultExcerpt] + "..."
	}
	return s
}

// ReadRecent returns up to limit of the most recent persisted events,
// oldest first. A positive limit tails the file backward from the end so a
// small read never scans the whole log. Malformed lines are skipped; a
// missing file yields an empty slice. limit <= 0 reads everything.
func (r *Recorder) ReadRecent(limit int) ([]models.ActivityEvent, error) {
	f, err := os.Open(filepath.Join(r.dir, jsonlName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading activity: %w", err)
	}
	defer f.Close()

	if limit <= 0 {
		return readAllEvents(f)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading activity: %w", err)
	}
	return tailEvents(f, info.Size(), limit)
}

func readAllEvents(f *os.File) ([]models.ActivityEvent, error) {
	var events []models.ActivityEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var ev models.ActivityEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading activity: %w", err)
	}
	return events, nil
}

// tailEvents reads backward from the end of the file in chunks, parsing
// lines newest-first until limit events are collected, then returns them in
// chronological order.
func tailEvents(f *os.File, size int64, limit int) ([]models.ActivityEvent, error) {
	const chunkSize = 64 * 1024

	var (
		events  []models.ActivityEvent
		pending []byte
		offset  = size
	)
	for offset > 0 && len(events) < limit {
		n := int64(chunkSize)
		if offset < n {
			n = offset
		}
		offset -= n

		buf := make([]byte, n, int(n)+len(pending))
		if _, err := f.ReadAt(buf, offset); err != nil {
			return nil, fmt.Errorf("reading activity: %w", err)
		}
		buf = append(buf, pending...)

		lines := bytes.Split(buf, []byte("\n"))
		first := 0
		if offset > 0 {
			// lines[0] may start in the preceding chunk; carry it over.
			pending = append([]byte(nil), lines[0]...)
			first = 1
		} else {
			pending = nil
		}

		for i := len(lines) - 1; i >= first && len(events) < limit; i-- {
			line := bytes.TrimSpace(lines[i])
			if len(line) == 0 {
				continue
			}
			var ev models.ActivityEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				continue
			}
			events = append(events, ev)
		}
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// rotateIfNeeded trims both activity files down to the events of the last
// keepSessions sessions once the JSONL file reaches rotateBytes. Both files
// are replaced atomically via temp files; on any failure the temps are
// removed and the error propagated.
func rotateIfNeeded(dir string, rotateBytes int64, keepSessions int) error {
	jsonlPath := filepath.Join(dir, jsonlName)
	info, err := os.Stat(jsonlPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if rotateBytes <= 0 || info.Size() < rotateBytes {
		return nil
	}

	f, err := os.Open(jsonlPath)
	if err != nil {
		return err
	}
	defer f.Close()

	// Sessions are retained by order of first appearance; events with no
	// session ID are grouped together so they rotate out as one unit.
	var order []string
	bySession := make(map[string][]models.ActivityEvent)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var ev models.ActivityEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			continue
		}
		key := ev.SessionID
		if key == "" {
			key = "unknown"
		}
		if _, seen := bySession[key]; !seen {
			order = append(order, key)
		}
		bySession[key] = append(bySession[key], ev)
	}
	if err := sc.Err(); err != nil {
		return err
	}

	if keepSessions < len(order) {
		order = order[len(order)-keepSessions:]
	}
	// Retained sessions are written grouped, each in its original event
	// order. Seq restarts every process run, so it cannot order events
	// across runs.
	var retained []models.ActivityEvent
	for _, key := range order {
		retained = append(retained, bySession[key]...)
	}

	if err := writeViaTemp(jsonlPath, encodeJSONL(retained)); err != nil {
		return err
	}
	return writeViaTemp(filepath.Join(dir, logName), renderNarrative(retained))
}

func writeViaTemp(path string, lines []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".rotate-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
