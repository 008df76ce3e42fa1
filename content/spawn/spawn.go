package spawn

import (
	"math"

	"lorehall/server/content/level"
)

// Kind is the closed set of entity interpretations. Tags outside the set
// collapse to KindUnknown while the raw tag survives in stats and records.
type Kind string

const (
	KindPlayerSpawn      Kind = "PlayerSpawn"
	KindDoor             Kind = "Door"
	KindNPC              Kind = "NPC"
	KindEncounterTrigger Kind = "EncounterTrigger"
	KindUnknown          Kind = "Unknown"
)

// KindOf maps a raw entity tag onto the closed kind set.
func KindOf(tag string) Kind {
	switch tag {
	case string(KindPlayerSpawn):
		return KindPlayerSpawn
	case string(KindDoor):
		return KindDoor
	case string(KindNPC):
		return KindNPC
	case string(KindEncounterTrigger):
		return KindEncounterTrigger
	default:
		return KindUnknown
	}
}

// Facing is a cardinal orientation carried by spawn points and NPCs.
type Facing string

const (
	FacingUp    Facing = "up"
	FacingDown  Facing = "down"
	FacingLeft  Facing = "left"
	FacingRight Facing = "right"
)

// facingOf coerces a raw property value onto the facing set, falling back to
// down for anything unrecognized.
func facingOf(raw string) Facing {
	switch Facing(raw) {
	case FacingUp, FacingDown, FacingLeft, FacingRight:
		return Facing(raw)
	default:
		return FacingDown
	}
}

// Point is a pixel-space position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SpawnPoint is a named player entry location derived from a PlayerSpawn
// entity's center.
type SpawnPoint struct {
	ID       string `json:"id"`
	Position Point  `json:"position"`
	Facing   Facing `json:"facing"`
}

// Door is a level transition zone.
type Door struct {
	ToMap           string     `json:"toMap"`
	ToSpawn         string     `json:"toSpawn"`
	Locked          bool       `json:"locked"`
	UnlockCondition string     `json:"unlockCondition,omitempty"`
	Bounds          level.Rect `json:"bounds"`
}

// NPC is a placed character hooked to sprite and dialogue content.
type NPC struct {
	CharacterID string `json:"characterId"`
	StoryKnot   string `json:"storyKnot,omitempty"`
	Facing      Facing `json:"facing"`
	Position    Point  `json:"position"`
}

// Encounter is a flashcard encounter trigger zone. Triggered starts false;
// flipping it belongs to the downstream consumer.
type Encounter struct {
	DeckTag     string     `json:"deckTag"`
	Count       int        `json:"count"`
	Once        bool       `json:"once"`
	RewardID    string     `json:"rewardId,omitempty"`
	EncounterID string     `json:"encounterId,omitempty"`
	Triggered   bool       `json:"triggered"`
	Bounds      level.Rect `json:"bounds"`
}

// Artifact is an externally visible object a spawned record holds, such as a
// standing interaction zone. Release is called exactly once during cleanup.
type Artifact interface {
	Release()
}

// ArtifactFactory creates world-side artifacts for spawned records. A nil
// return means the record holds nothing to release.
type ArtifactFactory interface {
	Create(record Record, entity level.Entity) Artifact
}

// Record tracks one dispatched entity for teardown and accounting.
type Record struct {
	Kind     Kind
	RawType  string
	Index    int
	Active   bool
	artifact Artifact
}

// Stats aggregates dispatch counts keyed by the raw entity tag. Every entity
// is counted, including unknown and malformed ones.
type Stats struct {
	ByType map[string]int
}

func center(e level.Entity) Point {
	return Point{X: e.X + e.Width/2, Y: e.Y + e.Height/2}
}

func bounds(e level.Entity) level.Rect {
	return level.Rect{X: e.X, Y: e.Y, Width: e.Width, Height: e.Height}
}

func tileCoords(e level.Entity) (int, int) {
	return int(math.Floor(e.X / level.TileSize)), int(math.Floor(e.Y / level.TileSize))
}

func propString(props map[string]any, key string) (string, bool) {
	raw, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

func propBool(props map[string]any, key string) (bool, bool) {
	raw, ok := props[key]
	if !ok {
		return false, false
	}
	b, ok := raw.(bool)
	return b, ok
}

func propInt(props map[string]any, key string) (int, bool) {
	raw, ok := props[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return v, true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}
