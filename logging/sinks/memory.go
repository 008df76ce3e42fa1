package sinks

import (
	"context"
	"maps"
	"sync"

	"lorehall/server/logging"
)

// MemorySink retains every event it sees. Tests use it to assert on the
// diagnostics the pipeline emitted.
type MemorySink struct {
	mu       sync.Mutex
	captured []logging.Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write satisfies logging.Sink. The extra map is copied so later mutation
// by the producer cannot corrupt the capture.
func (s *MemorySink) Write(event logging.Event) error {
	if len(event.Extra) > 0 {
		event.Extra = maps.Clone(event.Extra)
	}
	s.mu.Lock()
	s.captured = append(s.captured, event)
	s.mu.Unlock()
	return nil
}

// Events returns a snapshot of everything captured so far.
func (s *MemorySink) Events() []logging.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]logging.Event(nil), s.captured...)
}

func (s *MemorySink) Close(context.Context) error {
	return nil
}
