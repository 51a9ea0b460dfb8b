// Package activity tracks per-worker tool-use counters and a short
// event history, keyed by a mutex-guarded map of per-worker
// counter-plus-ring-buffer entries with no subscription model.
package activity

import (
	"sync"
	"time"

	"github.com/ytnobody/teamsctl/internal/rpc"
)

const historySize = 10

// Event is one recorded RPC event, trimmed to what the widget needs.
type Event struct {
	Type      string
	Timestamp time.Time
	Detail    string
}

// Counters is one worker's running activity snapshot.
type Counters struct {
	ToolUseCount    int
	CurrentToolName string
	LastToolName    string
	TurnCount       int
	TotalTokens     int
	History         []Event
}

type entry struct {
	counters Counters
	history  []Event // ring buffer, oldest first after trim
}

// Tracker maintains activity counters per worker name.
type Tracker struct {
	mu      sync.Mutex
	workers map[string]*entry
}

// New constructs an empty Tracker.
func New() *Tracker {
	return &Tracker{workers: map[string]*entry{}}
}

// Snapshot returns a copy of one worker's counters, or the zero value
// if nothing has been recorded for it yet.
func (t *Tracker) Snapshot(name string) Counters {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.workers[name]
	if !ok {
		return Counters{}
	}
	out := e.counters
	out.History = append([]Event(nil), e.history...)
	return out
}

// Reset clears a worker's counters, used on member removal.
func (t *Tracker) Reset(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.workers, name)
}

// Record advances a worker's counters from one RPC event.
func (t *Tracker) Record(name string, ev rpc.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.workers[name]
	if !ok {
		e = &entry{}
		t.workers[name] = e
	}

	switch ev.Type {
	case "tool_execution_start":
		e.counters.ToolUseCount++
		e.counters.CurrentToolName = toolNameFromRaw(ev.Raw)
	case "tool_execution_end":
		if e.counters.CurrentToolName != "" {
			e.counters.LastToolName = e.counters.CurrentToolName
		}
		e.counters.CurrentToolName = ""
	case "message_end":
		e.counters.TurnCount++
	}

	e.history = append(e.history, Event{Type: ev.Type, Timestamp: time.Now()})
	if len(e.history) > historySize {
		e.history = e.history[len(e.history)-historySize:]
	}
}

// AddTokens accumulates a usage delta reported alongside an event.
func (t *Tracker) AddTokens(name string, delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.workers[name]
	if !ok {
		e = &entry{}
		t.workers[name] = e
	}
	e.counters.TotalTokens += delta
}

func toolNameFromRaw(raw []byte) string {
	// Best-effort extraction; unrecognized shapes leave the name blank
	// rather than erroring, since this is cosmetic tracking only.
	const key = `"toolName":"`
	s := string(raw)
	idx := indexOf(s, key)
	if idx < 0 {
		return ""
	}
	start := idx + len(key)
	end := indexOf(s[start:], `"`)
	if end < 0 {
		return ""
	}
	return s[start : start+end]
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
