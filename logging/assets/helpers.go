package assets

import (
	"context"

	"lorehall/server/logging"
)

const (
	// EventBatchSettled is emitted after an asset batch finishes, whether or not every fetch succeeded.
	EventBatchSettled logging.EventType = "assets.batch_settled"
	// EventFetchFailed is emitted when a single asset fetch fails inside a batch.
	EventFetchFailed logging.EventType = "assets.fetch_failed"
	// EventAnimationsRegistered is emitted after directional animation sets are registered for a spritesheet.
	EventAnimationsRegistered logging.EventType = "assets.animations_registered"
	// EventPresenceCleared is emitted when the presence index is flushed.
	EventPresenceCleared logging.EventType = "assets.presence_cleared"
)

// BatchSettledPayload summarizes one settled asset batch.
type BatchSettledPayload struct {
	Kind      string `json:"kind"`
	Requested int    `json:"requested"`
	Fetched   int    `json:"fetched"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// FetchFailedPayload describes a single failed fetch.
type FetchFailedPayload struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// AnimationsRegisteredPayload counts registered animation sets.
type AnimationsRegisteredPayload struct {
	Sets int `json:"sets"`
}

// PresenceClearedPayload counts dropped presence records.
type PresenceClearedPayload struct {
	Dropped int `json:"dropped"`
}

// BatchSettled publishes a batch summary event.
func BatchSettled(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload BatchSettledPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventBatchSettled,
		Subject:  subject,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryAssets,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// FetchFailed publishes a warning for a failed fetch.
func FetchFailed(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload FetchFailedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFetchFailed,
		Subject:  subject,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryAssets,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// AnimationsRegistered publishes a debug event after animation registration.
func AnimationsRegistered(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload AnimationsRegisteredPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventAnimationsRegistered,
		Subject:  subject,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryAssets,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// PresenceCleared publishes a presence flush event.
func PresenceCleared(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload PresenceClearedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPresenceCleared,
		Subject:  subject,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryAssets,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
