package spawn

import (
	"context"

	"lorehall/server/content/level"
	"lorehall/server/internal/telemetry"
	"lorehall/server/logging"
	loggingspawn "lorehall/server/logging/spawn"
)

// Option configures a Spawner.
type Option func(*Spawner)

// WithPublisher attaches a structured event publisher.
func WithPublisher(pub logging.Publisher) Option {
	return func(s *Spawner) {
		s.pub = pub
	}
}

// WithMetrics attaches pipeline counters.
func WithMetrics(metrics telemetry.Metrics) Option {
	return func(s *Spawner) {
		s.metrics = metrics
	}
}

// WithArtifactFactory attaches a factory creating world-side artifacts for
// active records, released again on Result.Cleanup.
func WithArtifactFactory(factory ArtifactFactory) Option {
	return func(s *Spawner) {
		s.factory = factory
	}
}

// Spawner interprets a level's entity list into typed runtime records.
// Dispatch is total and order-preserving: every entity produces a defined
// outcome, processed in list order.
type Spawner struct {
	pub     logging.Publisher
	metrics telemetry.Metrics
	factory ArtifactFactory
}

// NewSpawner constructs a Spawner.
func NewSpawner(opts ...Option) *Spawner {
	s := &Spawner{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn runs one spawn pass over a level into a fresh Result.
func (s *Spawner) Spawn(ctx context.Context, lvl *level.CompiledLevel) *Result {
	result := NewResult()
	s.SpawnInto(ctx, lvl, result)
	return result
}

// SpawnInto runs one spawn pass into an existing, emptied Result, letting a
// consumer reuse the same object across levels.
func (s *Spawner) SpawnInto(ctx context.Context, lvl *level.CompiledLevel, result *Result) {
	if s == nil || result == nil || lvl == nil {
		return
	}
	result.LevelID = lvl.ID
	ref := logging.ContentRef{ID: lvl.ID, Kind: logging.ContentKindLevel}

	unknown := 0
	for i, entity := range lvl.Entities {
		result.Stats.ByType[entity.Type]++

		record := Record{
			Kind:    KindOf(entity.Type),
			RawType: entity.Type,
			Index:   i,
		}

		switch record.Kind {
		case KindPlayerSpawn:
			record.Active = true
			s.spawnPlayerSpawn(ctx, ref, entity, result)
		case KindDoor:
			record.Active = s.spawnDoor(ctx, ref, entity, result)
		case KindNPC:
			record.Active = s.spawnNPC(ctx, ref, entity, result)
		case KindEncounterTrigger:
			record.Active = s.spawnEncounter(ctx, ref, entity, result)
		case KindUnknown:
			// Preserved in stats and records, functionally inert.
			unknown++
			tx, ty := tileCoords(entity)
			loggingspawn.UnknownEntityKind(ctx, s.pub, ref, loggingspawn.UnknownKindPayload{
				Kind:  entity.Type,
				TileX: tx,
				TileY: ty,
			}, nil)
		}

		if record.Active && s.factory != nil {
			record.artifact = s.factory.Create(record, entity)
		}
		result.Records = append(result.Records, record)
	}

	s.count("spawn_passes", 1)
	s.count("spawn_entities", uint64(len(lvl.Entities)))
	if unknown > 0 {
		s.count("spawn_unknown_entities", uint64(unknown))
	}
	loggingspawn.Completed(ctx, s.pub, ref, loggingspawn.CompletedPayload{
		Entities:   len(lvl.Entities),
		Spawns:     result.SpawnCount(),
		Doors:      len(result.Doors),
		NPCs:       len(result.NPCs),
		Encounters: len(result.Encounters),
		Unknown:    unknown,
	}, nil)
}

func (s *Spawner) spawnPlayerSpawn(ctx context.Context, ref logging.ContentRef, entity level.Entity, result *Result) {
	spawnID, ok := propString(entity.Properties, "spawnId")
	if !ok || spawnID == "" {
		spawnID = "main"
	}
	facing, _ := propString(entity.Properties, "facing")

	point := SpawnPoint{
		ID:       spawnID,
		Position: center(entity),
		Facing:   facingOf(facing),
	}
	if overwrote := result.putSpawn(point); overwrote {
		tx, ty := tileCoords(entity)
		loggingspawn.DuplicateSpawnID(ctx, s.pub, ref, loggingspawn.DuplicateSpawnPayload{
			SpawnID: spawnID,
			TileX:   tx,
			TileY:   ty,
		}, nil)
	}
}

func (s *Spawner) spawnDoor(ctx context.Context, ref logging.ContentRef, entity level.Entity, result *Result) bool {
	toMap, ok := propString(entity.Properties, "toMap")
	if !ok || toMap == "" {
		return s.malformed(ctx, ref, entity, "missing toMap")
	}
	toSpawn, ok := propString(entity.Properties, "toSpawn")
	if !ok || toSpawn == "" {
		return s.malformed(ctx, ref, entity, "missing toSpawn")
	}
	locked, _ := propBool(entity.Properties, "locked")
	unlockCondition, _ := propString(entity.Properties, "unlockCondition")

	result.Doors = append(result.Doors, Door{
		ToMap:           toMap,
		ToSpawn:         toSpawn,
		Locked:          locked,
		UnlockCondition: unlockCondition,
		Bounds:          bounds(entity),
	})
	return true
}

func (s *Spawner) spawnNPC(ctx context.Context, ref logging.ContentRef, entity level.Entity, result *Result) bool {
	characterID, ok := propString(entity.Properties, "characterId")
	if !ok || characterID == "" {
		return s.malformed(ctx, ref, entity, "missing characterId")
	}
	storyKnot, _ := propString(entity.Properties, "storyKnot")
	facing, _ := propString(entity.Properties, "facing")

	result.NPCs = append(result.NPCs, NPC{
		CharacterID: characterID,
		StoryKnot:   storyKnot,
		Facing:      facingOf(facing),
		Position:    center(entity),
	})
	return true
}

func (s *Spawner) spawnEncounter(ctx context.Context, ref logging.ContentRef, entity level.Entity, result *Result) bool {
	deckTag, ok := propString(entity.Properties, "deckTag")
	if !ok || deckTag == "" {
		return s.malformed(ctx, ref, entity, "missing deckTag")
	}
	count, ok := propInt(entity.Properties, "count")
	if !ok {
		return s.malformed(ctx, ref, entity, "missing count")
	}
	if count < 1 {
		return s.malformed(ctx, ref, entity, "count below 1")
	}
	once, _ := propBool(entity.Properties, "once")
	rewardID, _ := propString(entity.Properties, "rewardId")
	encounterID, _ := propString(entity.Properties, "encounterId")

	result.Encounters = append(result.Encounters, Encounter{
		DeckTag:     deckTag,
		Count:       count,
		Once:        once,
		RewardID:    rewardID,
		EncounterID: encounterID,
		Triggered:   false,
		Bounds:      bounds(entity),
	})
	return true
}

// Cleanup tears down a spawn result: every record's artifact is released,
// then every collection is emptied in place so the result can be reused.
func (s *Spawner) Cleanup(ctx context.Context, result *Result) {
	if s == nil || result == nil {
		return
	}
	artifacts := result.ArtifactCount()
	ref := logging.ContentRef{ID: result.LevelID, Kind: logging.ContentKindLevel}
	result.Cleanup()
	loggingspawn.CleanupCompleted(ctx, s.pub, ref, loggingspawn.CleanupPayload{
		Artifacts: artifacts,
	}, nil)
}

// malformed absorbs a known kind whose property bag failed validation: the
// record stays inactive, a diagnostic is emitted, processing continues.
func (s *Spawner) malformed(ctx context.Context, ref logging.ContentRef, entity level.Entity, reason string) bool {
	tx, ty := tileCoords(entity)
	loggingspawn.MalformedEntity(ctx, s.pub, ref, loggingspawn.MalformedEntityPayload{
		Kind:   entity.Type,
		Reason: reason,
		TileX:  tx,
		TileY:  ty,
	}, nil)
	s.count("spawn_malformed_entities", 1)
	return false
}

func (s *Spawner) count(key string, delta uint64) {
	if s.metrics == nil {
		return
	}
	s.metrics.Add(key, delta)
}
