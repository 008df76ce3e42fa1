package spawn

import (
	"context"
	"sync"
	"testing"

	"lorehall/server/content/level"
	"lorehall/server/logging"
)

func entity(typ string, x, y, w, h float64, props map[string]any) level.Entity {
	return level.Entity{Type: typ, X: x, Y: y, Width: w, Height: h, Properties: props}
}

func playerSpawn(id string, x, y float64) level.Entity {
	props := map[string]any{}
	if id != "" {
		props["spawnId"] = id
	}
	return entity("PlayerSpawn", x, y, 32, 32, props)
}

func testLevelWith(entities ...level.Entity) *level.CompiledLevel {
	return &level.CompiledLevel{ID: "library", Entities: entities}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []logging.Event
}

func (r *eventRecorder) publisher() logging.Publisher {
	return logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		r.mu.Lock()
		r.events = append(r.events, event)
		r.mu.Unlock()
	})
}

func (r *eventRecorder) typed(eventType logging.EventType) []logging.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []logging.Event
	for _, event := range r.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func TestStatsCountEveryEntity(t *testing.T) {
	lvl := testLevelWith(
		playerSpawn("main", 0, 0),
		entity("Door", 64, 0, 32, 64, map[string]any{"toMap": "cellar", "toSpawn": "main"}),
		entity("NPC", 128, 0, 32, 32, map[string]any{"characterId": "archivist"}),
		entity("EncounterTrigger", 160, 0, 64, 64, map[string]any{"deckTag": "latin", "count": float64(3)}),
		entity("Decoration", 200, 0, 32, 32, nil),
		entity("Door", 300, 0, 32, 64, nil), // malformed, still counted
	)

	result := NewSpawner().Spawn(context.Background(), lvl)

	total := 0
	for _, count := range result.Stats.ByType {
		total += count
	}
	if total != len(lvl.Entities) {
		t.Fatalf("expected byType counts to sum to %d entities, got %d", len(lvl.Entities), total)
	}
	if got := result.Stats.ByType["Door"]; got != 2 {
		t.Fatalf("expected 2 Door entities counted, got %d", got)
	}
	if got := result.Stats.ByType["Decoration"]; got != 1 {
		t.Fatalf("expected 1 Decoration entity counted, got %d", got)
	}
	if len(result.Records) != len(lvl.Entities) {
		t.Fatalf("expected a record per entity, got %d", len(result.Records))
	}
}

func TestDispatchPreservesEntityOrder(t *testing.T) {
	lvl := testLevelWith(
		entity("Door", 0, 0, 32, 64, map[string]any{"toMap": "cellar", "toSpawn": "main"}),
		entity("NPC", 32, 0, 32, 32, map[string]any{"characterId": "archivist"}),
		entity("Door", 64, 0, 32, 64, map[string]any{"toMap": "attic", "toSpawn": "main"}),
		entity("NPC", 96, 0, 32, 32, map[string]any{"characterId": "curator"}),
	)

	result := NewSpawner().Spawn(context.Background(), lvl)

	if len(result.Doors) != 2 || result.Doors[0].ToMap != "cellar" || result.Doors[1].ToMap != "attic" {
		t.Fatalf("expected doors in entity order, got %+v", result.Doors)
	}
	if len(result.NPCs) != 2 || result.NPCs[0].CharacterID != "archivist" || result.NPCs[1].CharacterID != "curator" {
		t.Fatalf("expected NPCs in entity order, got %+v", result.NPCs)
	}
}

func TestPlayerSpawnDefaultsAndDerivedPosition(t *testing.T) {
	lvl := testLevelWith(entity("PlayerSpawn", 64, 96, 32, 32, nil))

	result := NewSpawner().Spawn(context.Background(), lvl)

	point, ok := result.Spawn("main")
	if !ok {
		t.Fatalf("expected missing spawnId to default to main")
	}
	if point.Position.X != 80 || point.Position.Y != 112 {
		t.Fatalf("expected position at entity center (80,112), got %+v", point.Position)
	}
	if point.Facing != FacingDown {
		t.Fatalf("expected facing to default to down, got %q", point.Facing)
	}
}

func TestPlayerSpawnFacingParsing(t *testing.T) {
	lvl := testLevelWith(
		entity("PlayerSpawn", 0, 0, 32, 32, map[string]any{"spawnId": "a", "facing": "left"}),
		entity("PlayerSpawn", 32, 0, 32, 32, map[string]any{"spawnId": "b", "facing": "sideways"}),
	)

	result := NewSpawner().Spawn(context.Background(), lvl)

	a, _ := result.Spawn("a")
	if a.Facing != FacingLeft {
		t.Fatalf("expected facing left, got %q", a.Facing)
	}
	b, _ := result.Spawn("b")
	if b.Facing != FacingDown {
		t.Fatalf("expected unrecognized facing to coerce to down, got %q", b.Facing)
	}
}

func TestDuplicateSpawnIDLastWriteWins(t *testing.T) {
	recorder := &eventRecorder{}
	spawner := NewSpawner(WithPublisher(recorder.publisher()))
	lvl := testLevelWith(
		entity("PlayerSpawn", 0, 0, 32, 32, map[string]any{"spawnId": "main"}),
		entity("PlayerSpawn", 128, 64, 32, 32, map[string]any{"spawnId": "main"}),
	)

	result := spawner.Spawn(context.Background(), lvl)

	if got := result.SpawnCount(); got != 1 {
		t.Fatalf("expected exactly one spawn entry, got %d", got)
	}
	point, _ := result.Spawn("main")
	if point.Position.X != 144 || point.Position.Y != 80 {
		t.Fatalf("expected the second entity's derived position, got %+v", point.Position)
	}
	if events := recorder.typed("spawn.duplicate_spawn_id"); len(events) != 1 {
		t.Fatalf("expected one duplicate spawn diagnostic, got %d", len(events))
	}
}

func TestDefaultSpawnPriorityThenInsertionOrder(t *testing.T) {
	spawner := NewSpawner()
	ctx := context.Background()

	withPriority := spawner.Spawn(ctx, testLevelWith(
		entity("PlayerSpawn", 0, 0, 32, 32, map[string]any{"spawnId": "start"}),
		entity("PlayerSpawn", 64, 0, 32, 32, map[string]any{"spawnId": "b"}),
	))
	point, ok := withPriority.DefaultSpawn()
	if !ok || point.ID != "start" {
		t.Fatalf("expected priority name start, got %+v ok=%v", point, ok)
	}

	noPriority := spawner.Spawn(ctx, testLevelWith(
		entity("PlayerSpawn", 0, 0, 32, 32, map[string]any{"spawnId": "b"}),
		entity("PlayerSpawn", 64, 0, 32, 32, map[string]any{"spawnId": "c"}),
	))
	point, ok = noPriority.DefaultSpawn()
	if !ok || point.ID != "b" {
		t.Fatalf("expected first inserted spawn b, got %+v ok=%v", point, ok)
	}

	empty := spawner.Spawn(ctx, testLevelWith())
	if _, ok := empty.DefaultSpawn(); ok {
		t.Fatalf("expected no spawn available for an empty mapping")
	}
}

func TestDefaultSpawnSurvivesOverwriteOrdering(t *testing.T) {
	// Overwriting "b" after "c" was inserted must not move "b" behind "c".
	result := NewSpawner().Spawn(context.Background(), testLevelWith(
		entity("PlayerSpawn", 0, 0, 32, 32, map[string]any{"spawnId": "b"}),
		entity("PlayerSpawn", 64, 0, 32, 32, map[string]any{"spawnId": "c"}),
		entity("PlayerSpawn", 128, 0, 32, 32, map[string]any{"spawnId": "b"}),
	))

	point, ok := result.DefaultSpawn()
	if !ok || point.ID != "b" {
		t.Fatalf("expected first inserted id b, got %+v ok=%v", point, ok)
	}
	if point.Position.X != 144 {
		t.Fatalf("expected overwritten position for b, got %+v", point.Position)
	}
}

func TestFindSpawnPointExactPrefixSubstring(t *testing.T) {
	result := NewSpawner().Spawn(context.Background(), testLevelWith(
		entity("PlayerSpawn", 0, 0, 32, 32, map[string]any{"spawnId": "north-gate"}),
		entity("PlayerSpawn", 32, 0, 32, 32, map[string]any{"spawnId": "south-gate"}),
		entity("PlayerSpawn", 64, 0, 32, 32, map[string]any{"spawnId": "gate"}),
	))

	point, ok := result.FindSpawnPoint("gate")
	if !ok || point.ID != "gate" {
		t.Fatalf("expected exact match gate, got %+v ok=%v", point, ok)
	}
	point, ok = result.FindSpawnPoint("north")
	if !ok || point.ID != "north-gate" {
		t.Fatalf("expected prefix match north-gate, got %+v ok=%v", point, ok)
	}
	point, ok = result.FindSpawnPoint("outh")
	if !ok || point.ID != "south-gate" {
		t.Fatalf("expected substring match south-gate, got %+v ok=%v", point, ok)
	}
	if _, ok := result.FindSpawnPoint("vault"); ok {
		t.Fatalf("expected no match for vault")
	}
	if _, ok := result.FindSpawnPoint(""); ok {
		t.Fatalf("expected empty query to miss")
	}
}

func TestDoorDispatch(t *testing.T) {
	result := NewSpawner().Spawn(context.Background(), testLevelWith(
		entity("Door", 64, 32, 32, 64, map[string]any{
			"toMap":   "cellar",
			"toSpawn": "stairs",
			"locked":  true,
		}),
	))

	if len(result.Doors) != 1 {
		t.Fatalf("expected one door, got %d", len(result.Doors))
	}
	door := result.Doors[0]
	if door.ToMap != "cellar" || door.ToSpawn != "stairs" || !door.Locked {
		t.Fatalf("unexpected door %+v", door)
	}
	if door.Bounds != (level.Rect{X: 64, Y: 32, Width: 32, Height: 64}) {
		t.Fatalf("expected interaction bounds to equal the entity rectangle, got %+v", door.Bounds)
	}
}

func TestDoorMissingTargetIsAbsorbed(t *testing.T) {
	recorder := &eventRecorder{}
	spawner := NewSpawner(WithPublisher(recorder.publisher()))

	result := spawner.Spawn(context.Background(), testLevelWith(
		entity("Door", 0, 0, 32, 64, map[string]any{"toSpawn": "main"}),
		entity("Door", 32, 0, 32, 64, map[string]any{"toMap": "cellar"}),
	))

	if len(result.Doors) != 0 {
		t.Fatalf("expected malformed doors to be dropped, got %d", len(result.Doors))
	}
	if got := result.Stats.ByType["Door"]; got != 2 {
		t.Fatalf("expected malformed doors still counted, got %d", got)
	}
	for _, record := range result.Records {
		if record.Active {
			t.Fatalf("expected malformed records to stay inactive, got %+v", record)
		}
	}
	if events := recorder.typed("spawn.malformed_entity"); len(events) != 2 {
		t.Fatalf("expected two malformed diagnostics, got %d", len(events))
	}
}

func TestNPCDispatch(t *testing.T) {
	result := NewSpawner().Spawn(context.Background(), testLevelWith(
		entity("NPC", 64, 64, 32, 32, map[string]any{
			"characterId": "archivist",
			"storyKnot":   "intro",
			"facing":      "up",
		}),
	))

	if len(result.NPCs) != 1 {
		t.Fatalf("expected one NPC, got %d", len(result.NPCs))
	}
	npc := result.NPCs[0]
	if npc.CharacterID != "archivist" || npc.StoryKnot != "intro" || npc.Facing != FacingUp {
		t.Fatalf("unexpected NPC %+v", npc)
	}
	if npc.Position.X != 80 || npc.Position.Y != 80 {
		t.Fatalf("expected NPC at entity center, got %+v", npc.Position)
	}
}

func TestEncounterDispatchAndValidation(t *testing.T) {
	recorder := &eventRecorder{}
	spawner := NewSpawner(WithPublisher(recorder.publisher()))

	result := spawner.Spawn(context.Background(), testLevelWith(
		entity("EncounterTrigger", 0, 0, 64, 64, map[string]any{
			"deckTag":  "latin",
			"count":    float64(3),
			"once":     true,
			"rewardId": "silver-key",
		}),
		entity("EncounterTrigger", 64, 0, 64, 64, map[string]any{"deckTag": "latin"}),
		entity("EncounterTrigger", 128, 0, 64, 64, map[string]any{"deckTag": "latin", "count": float64(0)}),
		entity("EncounterTrigger", 192, 0, 64, 64, map[string]any{"deckTag": "latin", "count": 2.5}),
		entity("EncounterTrigger", 256, 0, 64, 64, map[string]any{"count": float64(2)}),
	))

	if len(result.Encounters) != 1 {
		t.Fatalf("expected exactly one well-formed encounter, got %d", len(result.Encounters))
	}
	enc := result.Encounters[0]
	if enc.DeckTag != "latin" || enc.Count != 3 || !enc.Once || enc.RewardID != "silver-key" {
		t.Fatalf("unexpected encounter %+v", enc)
	}
	if enc.Triggered {
		t.Fatalf("expected triggered to start false")
	}
	if events := recorder.typed("spawn.malformed_entity"); len(events) != 4 {
		t.Fatalf("expected four malformed diagnostics, got %d", len(events))
	}
}

func TestUnknownEntityKindInertButCounted(t *testing.T) {
	recorder := &eventRecorder{}
	spawner := NewSpawner(WithPublisher(recorder.publisher()))

	result := spawner.Spawn(context.Background(), testLevelWith(
		entity("Decoration", 0, 0, 32, 32, nil),
	))

	if got := result.Stats.ByType["Decoration"]; got != 1 {
		t.Fatalf("expected Decoration counted once, got %d", got)
	}
	if len(result.Doors) != 0 || len(result.NPCs) != 0 || len(result.Encounters) != 0 || result.SpawnCount() != 0 {
		t.Fatalf("expected unknown entity to contribute to no typed list")
	}
	if len(result.Records) != 1 || result.Records[0].Active || result.Records[0].Kind != KindUnknown {
		t.Fatalf("expected one inactive unknown record, got %+v", result.Records)
	}
	if result.Records[0].RawType != "Decoration" {
		t.Fatalf("expected raw tag preserved, got %q", result.Records[0].RawType)
	}
	if events := recorder.typed("spawn.unknown_entity_kind"); len(events) != 1 {
		t.Fatalf("expected one unknown kind diagnostic, got %d", len(events))
	}
}
