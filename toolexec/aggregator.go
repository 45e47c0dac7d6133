package toolexec

import "sync"

// EventKind identifies the shape of one aggregator event (spec §6.6).
type EventKind string

const (
	EventPlanCaptured        EventKind = "plan_captured"
	EventToolExecution       EventKind = "tool_execution"
	EventRawData             EventKind = "raw_data"
	EventFinalSynthesis      EventKind = "final_synthesis"
	EventPerformanceMetrics  EventKind = "performance_metrics"
)

// Event is one published item; Payload's shape depends on Kind.
type Event struct {
	Kind    EventKind
	Payload any
}

// Sink receives events in the fixed order spec §6.6 mandates:
// plan_captured, one tool_execution per step, zero or more raw_data,
// final_synthesis, performance_metrics. Sinks are pluggable.
type Sink interface {
	Publish(Event)
}

// MemorySink is the default in-memory sink with a bounded ring buffer.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	cap    int
}

func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemorySink{cap: capacity}
}

func (s *MemorySink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	if len(s.events) > s.cap {
		s.events = s.events[len(s.events)-s.cap:]
	}
}

func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// RawDataEvent tags a result with the backend that produced it.
type RawDataEvent struct {
	Source string // mongodb | postgresql | shopify | ga4 | qdrant | slack
	Data   any
}

// ToolExecutionEvent captures one step's parameters, result, and timing.
type ToolExecutionEvent struct {
	StepNumber int
	ToolID     string
	Parameters map[string]any
	Result     any
	Success    bool
	Error      string
	DurationMS int64
}

// PerformanceMetricsEvent is the run-level summary published last.
type PerformanceMetricsEvent struct {
	TotalSteps      int
	SuccessfulSteps int
	SuccessRate     float64
	TotalDurationMS int64
}
