// Package broker owns running reviewer sessions and distributes their
// activity events to subscribers.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pmbridge/pmbridge/internal/agent"
	"github.com/pmbridge/pmbridge/internal/core"
	"github.com/pmbridge/pmbridge/pkg/models"
)

// StartRequest describes one session to start. Consumer, when set, receives
// every event of this session in order, attached before the first event is
// distributed so none can be missed.
type StartRequest struct {
	Prompt       string
	SystemPrompt string
	ResumeToken  string
	TaskID       string
	Engineer     string
	Consumer     func(models.ActivityEvent)
}

// Subscriber receives every event from every session.
type Subscriber func(models.ActivityEvent)

// Broker starts sessions through a Launcher, stamps their events with a
// global sequence number, and fans them out to the per-session consumer and
// all registered subscribers. Delivery is synchronous per session and
// panic-safe: one misbehaving subscriber cannot take down the pump.
type Broker struct {
	launcher agent.Launcher
	logger   *slog.Logger
	seq      atomic.Uint64
	recent   *core.Ring[models.ActivityEvent]

	mu       sync.RWMutex
	subs     map[string]Subscriber
	sessions map[string]*models.SessionMetadata
	handles  map[string]agent.Handle

	wg sync.WaitGroup
}

// New creates a Broker keeping the last recentSize events in memory.
func New(launcher agent.Launcher, recentSize int, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ring, err := core.NewRing[models.ActivityEvent](recentSize)
	if err != nil {
		return nil, fmt.Errorf("creating broker: %w", err)
	}
	return &Broker{
		launcher: launcher,
		logger:   logger,
		recent:   ring,
		subs:     make(map[string]Subscriber),
		sessions: make(map[string]*models.SessionMetadata),
		handles:  make(map[string]agent.Handle),
	}, nil
}

// StartSession launches a session and returns its ID. The pump goroutine
// runs until the session's event stream closes.
func (b *Broker) StartSession(ctx context.Context, req StartRequest) (string, error) {
	h, err := b.launcher.Launch(ctx, agent.InvokeRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		ResumeToken:  req.ResumeToken,
	})
	if err != nil {
		return "", fmt.Errorf("starting session: %w", err)
	}

	meta := &models.SessionMetadata{
		ID:        h.ID(),
		StartedAt: time.Now().UTC(),
		Status:    models.SessionActive,
		TaskID:    req.TaskID,
		Engineer:  req.Engineer,
	}

	b.mu.Lock()
	b.sessions[meta.ID] = meta
	b.handles[meta.ID] = h
	b.mu.Unlock()

	b.wg.Add(1)
	go b.pump(h, req)

	b.logger.Info("session started", "session", meta.ID, "task", req.TaskID)
	return meta.ID, nil
}

// pump enhances and distributes every event of one session.
func (b *Broker) pump(h agent.Handle, req StartRequest) {
	defer b.wg.Done()

	for ev := range h.Events() {
		ev.Seq = b.seq.Add(1)
		ev.Engineer = req.Engineer
		ev.TaskID = req.TaskID
		ev.SessionStatus = models.SessionActive

		if ev.Kind == models.EventSessionEnd {
			ev.SessionStatus = models.SessionCompleted
			b.completeSession(ev.SessionID)
		}

		b.recent.Push(ev)

		// The per-session consumer is first so it observes its own events
		// before any global subscriber reacts to them.
		if req.Consumer != nil {
			b.safeCall(req.Consumer, ev)
		}
		for _, sub := range b.snapshotSubs() {
			b.safeCall(sub, ev)
		}
	}

	b.mu.Lock()
	delete(b.handles, h.ID())
	b.mu.Unlock()
}

func (b *Broker) completeSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if meta, ok := b.sessions[sessionID]; ok && meta.Status != models.SessionCompleted {
		now := time.Now().UTC()
		meta.Status = models.SessionCompleted
		meta.EndedAt = &now
	}
}

func (b *Broker) snapshotSubs() []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		out = append(out, sub)
	}
	return out
}

func (b *Broker) safeCall(fn Subscriber, ev models.ActivityEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked", "session", ev.SessionID, "kind", ev.Kind, "panic", r)
		}
	}()
	fn(ev)
}

// Subscribe registers a subscriber for all sessions and returns its ID.
func (b *Broker) Subscribe(sub Subscriber) string {
	id := uuid.NewString()
	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()
	return id
}

// Unsubscribe removes a subscriber. Unknown IDs are ignored.
func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// StopSession kills a running session. The final session_end event still
// flows through the pump as the stream drains.
func (b *Broker) StopSession(sessionID string) error {
	b.mu.RLock()
	h, ok := b.handles[sessionID]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("stopping session %s: no running session", sessionID)
	}
	if err := h.Kill(); err != nil {
		return fmt.Errorf("stopping session %s: %w", sessionID, err)
	}
	return nil
}

// Sessions returns metadata for every session the broker has started,
// running or completed.
func (b *Broker) Sessions() []models.SessionMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.SessionMetadata, 0, len(b.sessions))
	for _, meta := range b.sessions {
		out = append(out, *meta)
	}
	return out
}

// Session returns the metadata for one session.
func (b *Broker) Session(sessionID string) (models.SessionMetadata, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	meta, ok := b.sessions[sessionID]
	if !ok {
		return models.SessionMetadata{}, false
	}
	return *meta, true
}

// RecentEvents returns up to n of the most recent events, oldest first.
func (b *Broker) RecentEvents(n int) []models.ActivityEvent {
	return b.recent.Recent(n)
}

// Wait blocks until every pump has drained. Call after stopping sessions
// during shutdown.
func (b *Broker) Wait() {
	b.wg.Wait()
}
