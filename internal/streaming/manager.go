package streaming

import (
	"encoding/json"
	"sync"
	"time"
)

// Phase names emitted over the lifetime of one expansion job. Observational
// only; they never gate correctness.
const (
	PhaseAnalyzing   = "analyzing"
	PhaseDecomposing = "decomposing"
	PhaseClassifying = "classifying"
	PhaseSaving      = "saving"
	PhaseCompleted   = "completed"
	PhaseFailed      = "failed"
)

// Event is one coarse progress event for an expansion job, keyed by node id.
type Event struct {
	NodeID    string    `json:"node_id"`
	JobID     string    `json:"job_id"`
	Phase     string    `json:"phase"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"seq"`
}

// Marshal returns the JSON encoding for WS payloads and logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Manager provides in-memory pub/sub of expansion phase events with a
// per-node replay ring so reconnecting subscribers can catch up.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
}

// NewManager creates a manager with the given per-node ring capacity.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = 64
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe adds a subscriber channel for a node id; the caller must drain
// it and call Unsubscribe when done.
func (m *Manager) Subscribe(nodeID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[nodeID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[nodeID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes the subscriber channel.
func (m *Manager) Unsubscribe(nodeID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[nodeID]; ok {
		if _, present := subs[ch]; present {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(m.subscribers, nodeID)
		}
	}
}

// Publish assigns a sequence number, records the event in the replay ring
// and fans it out without blocking; slow subscribers drop events. The lock
// is held across the fanout so Unsubscribe cannot close a channel mid-send;
// sends never block, so this serializes nothing slow.
func (m *Manager) Publish(nodeID string, evt Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rg := m.history[nodeID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[nodeID] = rg
	}
	evt.Seq = rg.nextSeq
	rg.nextSeq++
	rg.push(evt)

	for ch := range m.subscribers[nodeID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ReplaySince returns buffered events with Seq > since, best-effort within
// ring capacity.
func (m *Manager) ReplaySince(nodeID string, since uint64) []Event {
	m.mu.RLock()
	rg := m.history[nodeID]
	m.mu.RUnlock()
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// ring is a fixed-capacity event buffer.
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

// seq starts at 1 so "replay since 0" means "from the beginning".
func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity), nextSeq: 1} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
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
