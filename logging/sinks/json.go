package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"lorehall/server/logging"
)

// wireEvent fixes the field order of serialized events so log files stay
// diffable across runs.
type wireEvent struct {
	Type     logging.EventType  `json:"type"`
	Time     string             `json:"time"`
	Severity logging.Severity   `json:"severity"`
	Category string             `json:"category,omitempty"`
	Subject  logging.ContentRef `json:"subject"`
	Payload  any                `json:"payload,omitempty"`
	Extra    map[string]any     `json:"extra,omitempty"`
}

// JSON appends newline-delimited events to a writer, flushing every
// MaxBatch writes and on a timer so a quiet server still persists its tail.
type JSON struct {
	mu      sync.Mutex
	writer  *bufio.Writer
	encoder *json.Encoder
	batch   int
	pending int
}

// NewJSON constructs the sink over w. Without a flush interval every write
// flushes immediately.
func NewJSON(w io.Writer, cfg logging.JSONConfig) *JSON {
	if w == nil {
		w = io.Discard
	}
	buffered := bufio.NewWriter(w)
	s := &JSON{
		writer:  buffered,
		encoder: json.NewEncoder(buffered),
		batch:   cfg.MaxBatch,
	}
	if cfg.FlushInterval > 0 {
		go s.flushLoop(cfg.FlushInterval)
	} else {
		s.batch = 1
	}
	return s
}

// Write encodes the event onto the buffer and flushes once a full batch
// has accumulated.
func (s *JSON) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.encoder.Encode(wireEvent{
		Type:     event.Type,
		Time:     event.Time.Format(time.RFC3339Nano),
		Severity: event.Severity,
		Category: event.Category,
		Subject:  event.Subject,
		Payload:  event.Payload,
		Extra:    event.Extra,
	})
	if err != nil {
		return err
	}
	s.pending++
	if s.batch > 0 && s.pending >= s.batch {
		s.pending = 0
		return s.writer.Flush()
	}
	return nil
}

// Close flushes the buffered tail.
func (s *JSON) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = 0
	return s.writer.Flush()
}

func (s *JSON) flushLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		s.pending = 0
		s.writer.Flush()
		s.mu.Unlock()
	}
}
