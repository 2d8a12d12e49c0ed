package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType is the closed enumeration of trace event kinds.
type EventType string

const (
	EventLLMRequest    EventType = "llm_request"
	EventLLMResponse   EventType = "llm_response"
	EventToolCall      EventType = "tool_call"
	EventToolResult    EventType = "tool_result"
	EventThought       EventType = "thought"
	EventPlanStep      EventType = "plan_step"
	EventCriticCheck   EventType = "critic_check"
	EventCacheHit      EventType = "cache_hit"
	EventCacheMiss     EventType = "cache_miss"
	EventMemoryStore   EventType = "memory_store"
	EventMemoryRecall  EventType = "memory_recall"
	EventError         EventType = "error"
	EventBudgetWarning EventType = "budget_warning"
)

// TraceEvent is a point-in-time record inside a span.
type TraceEvent struct {
	EventID   string         `json:"event_id"`
	EventType EventType      `json:"event_type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// TraceSpan is a time-bounded region of a trace. It is open until EndTime is
// set.
type TraceSpan struct {
	SpanID     string         `json:"span_id"`
	Name       string         `json:"name"`
	ParentID   string         `json:"parent_id,omitempty"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	DurationMs *int64         `json:"duration_ms,omitempty"`
	Events     []TraceEvent   `json:"events"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// traceDocument is the on-disk shape of a persisted trace file.
type traceDocument struct {
	TaskID      string       `json:"task_id"`
	Spans       []*TraceSpan `json:"spans"`
	TotalEvents int          `json:"total_events"`
}

// TraceRecorder records hierarchical spans and typed events for a single
// task run. A coarse lock makes it safe for concurrent record calls within
// a task, but it is not intended to be shared across tasks.
type TraceRecorder struct {
	mu     sync.Mutex
	taskID string
	logDir string
	logger *slog.Logger

	spans     []*TraceSpan
	byID      map[string]*TraceSpan
	openStack []*TraceSpan
}

// NewTraceRecorder creates a recorder for a single task, persisting to
// logDir when Save is called. logDir may be empty, in which case Save is a
// no-op (useful for tests).
func NewTraceRecorder(taskID, logDir string, logger *slog.Logger) *TraceRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &TraceRecorder{
		taskID: taskID,
		logDir: logDir,
		logger: logger,
		byID:   make(map[string]*TraceSpan),
	}
}

// StartSpan opens a new span. If parentID is empty, the span is parented to
// whichever span is currently open (the top of the stack), or is a root span
// if none is open.
func (r *TraceRecorder) StartSpan(name, parentID string) *TraceSpan {
	r.mu.Lock()
	defer r.mu.Unlock()

	if parentID == "" && len(r.openStack) > 0 {
		parentID = r.openStack[len(r.openStack)-1].SpanID
	}

	span := &TraceSpan{
		SpanID:    uuid.NewString(),
		Name:      name,
		ParentID:  parentID,
		StartTime: time.Now(),
		Events:    []TraceEvent{},
	}
	r.spans = append(r.spans, span)
	r.byID[span.SpanID] = span
	r.openStack = append(r.openStack, span)
	return span
}

// EndSpan closes span, or the most recently opened span if span is nil.
// Closing an already-closed span is a no-op.
func (r *TraceRecorder) EndSpan(span *TraceSpan) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if span == nil {
		if len(r.openStack) == 0 {
			return
		}
		span = r.openStack[len(r.openStack)-1]
	}
	if span.EndTime != nil {
		return
	}

	now := time.Now()
	span.EndTime = &now
	durationMs := now.Sub(span.StartTime).Milliseconds()
	span.DurationMs = &durationMs

	r.removeFromOpenStack(span.SpanID)
}

func (r *TraceRecorder) removeFromOpenStack(spanID string) {
	for i := len(r.openStack) - 1; i >= 0; i-- {
		if r.openStack[i].SpanID == spanID {
			r.openStack = append(r.openStack[:i], r.openStack[i+1:]...)
			return
		}
	}
}

// Record appends an event into the currently active span, creating an
// "orphan" root span on demand if none is open.
func (r *TraceRecorder) Record(eventType EventType, data map[string]any) TraceEvent {
	r.mu.Lock()
	var active *TraceSpan
	if len(r.openStack) > 0 {
		active = r.openStack[len(r.openStack)-1]
	}
	r.mu.Unlock()

	if active == nil {
		active = r.StartSpan("orphan", "")
	}

	event := TraceEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now(),
	}

	r.mu.Lock()
	active.Events = append(active.Events, event)
	r.mu.Unlock()

	return event
}

// TotalEvents counts events across every span.
func (r *TraceRecorder) TotalEvents() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, s := range r.spans {
		total += len(s.Events)
	}
	return total
}

// Save serialises the whole trace to a pretty-printed JSON document under
// logDir, named trace_<task_id>.json. Persistence failures are logged, not
// fatal, per the spec's error-handling taxonomy.
func (r *TraceRecorder) Save() error {
	r.mu.Lock()
	doc := traceDocument{
		TaskID:      r.taskID,
		Spans:       append([]*TraceSpan(nil), r.spans...),
		TotalEvents: r.totalEventsLocked(),
	}
	r.mu.Unlock()

	if r.logDir == "" {
		return nil
	}

	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		r.logger.Warn("failed to create trace directory", "error", err, "dir", r.logDir)
		return err
	}

	path := filepath.Join(r.logDir, fmt.Sprintf("trace_%s.json", r.taskID))
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		r.logger.Warn("failed to marshal trace", "error", err, "task_id", r.taskID)
		return err
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		r.logger.Warn("failed to write trace file", "error", err, "path", path)
		return err
	}
	return nil
}

func (r *TraceRecorder) totalEventsLocked() int {
	total := 0
	for _, s := range r.spans {
		total += len(s.Events)
	}
	return total
}

// LoadTrace reparses a persisted trace file, used by roundtrip tests.
func LoadTrace(path string) (taskID string, spans []*TraceSpan, totalEvents int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, 0, err
	}
	var doc traceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", nil, 0, err
	}
	return doc.TaskID, doc.Spans, doc.TotalEvents, nil
}
