// Package streaming fans research run events out to in-process subscribers
// (the websocket API) and, when configured, to a Redis channel for external
// consumers. A per-run ring buffer supports replay after reconnect.
package streaming

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/probelabs/deepscout/internal/metrics"
)

type EventType string

const (
	EventRunStarted             EventType = "run_started"
	EventClarificationRequested EventType = "clarification_requested"
	EventClarificationReceived  EventType = "clarification_received"
	EventPlanReady              EventType = "plan_ready"
	EventQueriesGenerated       EventType = "queries_generated"
	EventSourcesRetrieved       EventType = "sources_retrieved"
	EventCycleCompleted         EventType = "cycle_completed"
	EventEvaluated              EventType = "evaluated"
	EventReportReady            EventType = "report_ready"
	EventRunFailed              EventType = "run_failed"
)

// Event is one progress notification for a research run.
type Event struct {
	RunID     string         `json:"run_id"`
	Type      EventType      `json:"type"`
	Message   string         `json:"message,omitempty"`
	Iteration int            `json:"iteration,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Seq       uint64         `json:"seq"`
}

func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Manager is the in-process pub/sub hub. Publish never blocks; slow
// subscribers lose events and recover via ReplaySince.
type Manager struct {
	mu       sync.RWMutex
	subs     map[string]map[chan Event]struct{}
	history  map[string]*ring
	capacity int

	redis  *redis.Client
	logger *zap.Logger
}

func NewManager(capacity int, redisClient *redis.Client, logger *zap.Logger) *Manager {
	if capacity <= 0 {
		capacity = 256
	}
	return &Manager{
		subs:     make(map[string]map[chan Event]struct{}),
		history:  make(map[string]*ring),
		capacity: capacity,
		redis:    redisClient,
		logger:   logger,
	}
}

// Subscribe registers a buffered channel for one run. The caller must drain
// it and call Unsubscribe when done.
func (m *Manager) Subscribe(runID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[runID] == nil {
		m.subs[runID] = make(map[chan Event]struct{})
	}
	m.subs[runID][ch] = struct{}{}
	metrics.ActiveEventSubscribers.Inc()
	return ch
}

func (m *Manager) Unsubscribe(runID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subs[runID]; ok {
		if _, present := subs[ch]; present {
			delete(subs, ch)
			close(ch)
			metrics.ActiveEventSubscribers.Dec()
		}
		if len(subs) == 0 {
			delete(m.subs, runID)
		}
	}
}

// Publish assigns a sequence number, records the event for replay, and
// delivers it to all subscribers without blocking.
func (m *Manager) Publish(ctx context.Context, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	rg := m.history[evt.RunID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[evt.RunID] = rg
	}
	evt.Seq = rg.nextSeq
	rg.nextSeq++
	rg.push(evt)
	subs := m.subs[evt.RunID]
	m.mu.Unlock()

	metrics.EventsPublished.WithLabelValues(string(evt.Type)).Inc()

	for ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}

	if m.redis != nil {
		if err := m.redis.Publish(ctx, "deepscout:events:"+evt.RunID, evt.Marshal()).Err(); err != nil {
			m.logger.Warn("redis event publish failed",
				zap.String("run_id", evt.RunID),
				zap.Error(err),
			)
		}
	}
}

// ReplaySince returns recorded events with Seq > since, best-effort within
// the ring capacity.
func (m *Manager) ReplaySince(runID string, since uint64) []Event {
	m.mu.RLock()
	rg := m.history[runID]
	m.mu.RUnlock()
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Forget drops replay history for a finished run.
func (m *Manager) Forget(runID string) {
	m.mu.Lock()
	delete(m.history, runID)
	m.mu.Unlock()
}

type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

// Sequence numbers start at 1 so ReplaySince(run, 0) returns everything.
func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity), nextSeq: 1} }

func (r *ring) push(e Event) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
