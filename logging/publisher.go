package logging

import (
	"context"
	"time"
)

type EventType string

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

// String names the severity for sinks and diagnostics output.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

type ContentKind string

const (
	ContentKindUnknown  ContentKind = "unknown"
	ContentKindManifest ContentKind = "manifest"
	ContentKindRoom     ContentKind = "room"
	ContentKindLevel    ContentKind = "level"
	ContentKindDeck     ContentKind = "deck"
	ContentKindStory    ContentKind = "story"
	ContentKindSprite   ContentKind = "sprite"
	ContentKindProp     ContentKind = "prop"
	ContentKindEntity   ContentKind = "entity"
	ContentKindBatch    ContentKind = "batch"
)

type Event struct {
	Type     EventType      `json:"type"`
	Time     time.Time      `json:"time"`
	Subject  ContentRef     `json:"subject"`
	Severity Severity       `json:"severity"`
	Category string         `json:"category,omitempty"`
	Payload  any            `json:"payload,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

type ContentRef struct {
	ID   string      `json:"id"`
	Kind ContentKind `json:"kind"`
}

const (
	CategoryContent = "content"
	CategorySpawn   = "spawn"
	CategoryAssets  = "assets"
	CategoryNetwork = "network"
	CategorySystem  = "system"
)

type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}

// cloneForFields copies the event's extra map so concurrent consumers can
// read it independently.
func cloneForFields(event Event) Event {
	if event.Extra == nil {
		return event
	}
	copied := make(map[string]any, len(event.Extra))
	for k, v := range event.Extra {
		copied[k] = v
	}
	event.Extra = copied
	return event
}
