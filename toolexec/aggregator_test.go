package toolexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemorySink_PublishAndEvents(t *testing.T) {
	s := NewMemorySink(10)
	s.Publish(Event{Kind: EventPlanCaptured, Payload: "plan"})
	s.Publish(Event{Kind: EventFinalSynthesis, Payload: "done"})

	events := s.Events()
	assert.Len(t, events, 2)
	assert.Equal(t, EventPlanCaptured, events[0].Kind)
	assert.Equal(t, EventFinalSynthesis, events[1].Kind)
}

func TestMemorySink_BoundedRingBufferDropsOldest(t *testing.T) {
	s := NewMemorySink(2)
	s.Publish(Event{Kind: EventToolExecution, Payload: 1})
	s.Publish(Event{Kind: EventToolExecution, Payload: 2})
	s.Publish(Event{Kind: EventToolExecution, Payload: 3})

	events := s.Events()
	assert.Len(t, events, 2)
	assert.Equal(t, 2, events[0].Payload)
	assert.Equal(t, 3, events[1].Payload)
}

func TestNewMemorySink_NonPositiveCapacityDefaultsTo1000(t *testing.T) {
	s := NewMemorySink(0)
	for i := 0; i < 5; i++ {
		s.Publish(Event{Kind: EventToolExecution, Payload: i})
	}
	assert.Len(t, s.Events(), 5)
}
