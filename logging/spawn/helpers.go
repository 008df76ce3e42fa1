package spawn

import (
	"context"

	"lorehall/server/logging"
)

const (
	// EventSpawnCompleted is emitted after every entity in a level has been dispatched.
	EventSpawnCompleted logging.EventType = "spawn.completed"
	// EventUnknownEntityKind is emitted when an entity kind has no handler.
	EventUnknownEntityKind logging.EventType = "spawn.unknown_entity_kind"
	// EventDuplicateSpawnID is emitted when a spawn id is registered more than once in a level.
	EventDuplicateSpawnID logging.EventType = "spawn.duplicate_spawn_id"
	// EventMalformedEntity is emitted when a known kind is missing required fields.
	EventMalformedEntity logging.EventType = "spawn.malformed_entity"
	// EventCleanupCompleted is emitted after spawn artifacts are released and collections cleared.
	EventCleanupCompleted logging.EventType = "spawn.cleanup_completed"
)

// CompletedPayload summarizes a finished spawn pass.
type CompletedPayload struct {
	Entities   int `json:"entities"`
	Spawns     int `json:"spawns"`
	Doors      int `json:"doors"`
	NPCs       int `json:"npcs"`
	Encounters int `json:"encounters"`
	Unknown    int `json:"unknown"`
}

// UnknownKindPayload locates an entity whose kind has no handler.
type UnknownKindPayload struct {
	Kind  string `json:"kind"`
	TileX int    `json:"tileX"`
	TileY int    `json:"tileY"`
}

// DuplicateSpawnPayload locates a spawn id collision.
type DuplicateSpawnPayload struct {
	SpawnID string `json:"spawnId"`
	TileX   int    `json:"tileX"`
	TileY   int    `json:"tileY"`
}

// MalformedEntityPayload describes a known kind that failed field checks.
type MalformedEntityPayload struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
	TileX  int    `json:"tileX"`
	TileY  int    `json:"tileY"`
}

// CleanupPayload summarizes a cleanup pass.
type CleanupPayload struct {
	Artifacts int `json:"artifacts"`
}

// Completed publishes a spawn pass summary.
func Completed(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload CompletedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventSpawnCompleted,
		Subject:  subject,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySpawn,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// UnknownEntityKind publishes a warning for an unhandled entity kind.
func UnknownEntityKind(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload UnknownKindPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventUnknownEntityKind,
		Subject:  subject,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySpawn,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// DuplicateSpawnID publishes a warning for a spawn id collision.
func DuplicateSpawnID(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload DuplicateSpawnPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventDuplicateSpawnID,
		Subject:  subject,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySpawn,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// MalformedEntity publishes a warning for a known kind missing required fields.
func MalformedEntity(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload MalformedEntityPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventMalformedEntity,
		Subject:  subject,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySpawn,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// CleanupCompleted publishes a cleanup summary.
func CleanupCompleted(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload CleanupPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventCleanupCompleted,
		Subject:  subject,
		Severity: logging.SeverityDebug,
		Category: logging.CategorySpawn,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
