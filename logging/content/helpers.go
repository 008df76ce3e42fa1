package content

import (
	"context"

	"lorehall/server/logging"
)

const (
	// EventManifestLoaded is emitted after the registry manifest is fetched and indexed.
	EventManifestLoaded logging.EventType = "content.manifest_loaded"
	// EventManifestLoadFailed is emitted when the manifest fetch or decode fails.
	EventManifestLoadFailed logging.EventType = "content.manifest_load_failed"
	// EventDeckLoaded is emitted after a flashcard deck payload is fetched and cached.
	EventDeckLoaded logging.EventType = "content.deck_loaded"
	// EventDeckMismatch is emitted when a deck payload disagrees with its manifest entry.
	EventDeckMismatch logging.EventType = "content.deck_mismatch"
	// EventLevelLoaded is emitted after a compiled level passes validation and enters the cache.
	EventLevelLoaded logging.EventType = "content.level_loaded"
	// EventLevelRejected is emitted when a compiled level fails structural validation.
	EventLevelRejected logging.EventType = "content.level_rejected"
	// EventCacheCleared is emitted when a content cache is flushed.
	EventCacheCleared logging.EventType = "content.cache_cleared"
)

// ManifestLoadedPayload summarizes a freshly indexed manifest.
type ManifestLoadedPayload struct {
	BuildID string `json:"buildId,omitempty"`
	Entries int    `json:"entries"`
	Source  string `json:"source,omitempty"`
}

// ManifestLoadFailedPayload describes why the manifest could not be loaded.
type ManifestLoadFailedPayload struct {
	Source string `json:"source,omitempty"`
	Reason string `json:"reason"`
}

// DeckLoadedPayload summarizes a cached flashcard deck.
type DeckLoadedPayload struct {
	Cards       int    `json:"cards"`
	ContentHash string `json:"contentHash,omitempty"`
}

// DeckMismatchPayload captures the disagreement between deck payload and manifest entry.
type DeckMismatchPayload struct {
	WantCards int    `json:"wantCards,omitempty"`
	GotCards  int    `json:"gotCards,omitempty"`
	WantHash  string `json:"wantHash,omitempty"`
	GotHash   string `json:"gotHash,omitempty"`
}

// LevelLoadedPayload summarizes a validated compiled level.
type LevelLoadedPayload struct {
	Width    int `json:"width"`
	Height   int `json:"height"`
	Layers   int `json:"layers"`
	Entities int `json:"entities"`
	Tilesets int `json:"tilesets"`
}

// LevelRejectedPayload describes a structural validation failure.
type LevelRejectedPayload struct {
	Reason string `json:"reason"`
}

// CacheClearedPayload describes a cache flush.
type CacheClearedPayload struct {
	Scope   string `json:"scope"`
	Evicted int    `json:"evicted"`
}

// ManifestLoaded publishes a manifest load event.
func ManifestLoaded(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload ManifestLoadedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventManifestLoaded,
		Subject:  subject,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryContent,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ManifestLoadFailed publishes a manifest failure event.
func ManifestLoadFailed(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload ManifestLoadFailedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventManifestLoadFailed,
		Subject:  subject,
		Severity: logging.SeverityError,
		Category: logging.CategoryContent,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// DeckLoaded publishes a deck cache event.
func DeckLoaded(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload DeckLoadedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventDeckLoaded,
		Subject:  subject,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryContent,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// DeckMismatch publishes a warning when a deck disagrees with its manifest entry.
func DeckMismatch(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload DeckMismatchPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventDeckMismatch,
		Subject:  subject,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryContent,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// LevelLoaded publishes a level cache event.
func LevelLoaded(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload LevelLoadedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventLevelLoaded,
		Subject:  subject,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryContent,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// LevelRejected publishes a validation failure event.
func LevelRejected(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload LevelRejectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventLevelRejected,
		Subject:  subject,
		Severity: logging.SeverityError,
		Category: logging.CategoryContent,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// CacheCleared publishes a cache flush event.
func CacheCleared(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload CacheClearedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventCacheCleared,
		Subject:  subject,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryContent,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
