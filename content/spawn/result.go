package spawn

import "strings"

// defaultSpawnPriority is the fixed identifier order tried before falling
// back to insertion order.
var defaultSpawnPriority = [...]string{"main", "default", "start", "entry"}

// Result is the typed outcome of one spawn pass. It is owned exclusively by
// the consumer that requested the spawn and may be reused across levels after
// Cleanup.
type Result struct {
	LevelID    string
	Doors      []Door
	NPCs       []NPC
	Encounters []Encounter
	Records    []Record
	Stats      Stats

	spawns     map[string]SpawnPoint
	spawnOrder []string
}

// NewResult constructs an empty result ready to receive a spawn pass.
func NewResult() *Result {
	return &Result{
		Stats:  Stats{ByType: make(map[string]int)},
		spawns: make(map[string]SpawnPoint),
	}
}

// putSpawn inserts or overwrites a spawn point. The insertion order of the
// first write is kept so the first-inserted fallback stays stable across
// overwrites.
func (r *Result) putSpawn(point SpawnPoint) (overwrote bool) {
	if _, exists := r.spawns[point.ID]; !exists {
		r.spawnOrder = append(r.spawnOrder, point.ID)
	} else {
		overwrote = true
	}
	r.spawns[point.ID] = point
	return overwrote
}

// Spawn looks up a spawn point by exact identifier.
func (r *Result) Spawn(id string) (SpawnPoint, bool) {
	if r == nil {
		return SpawnPoint{}, false
	}
	point, ok := r.spawns[id]
	return point, ok
}

// SpawnCount reports the number of distinct spawn identifiers.
func (r *Result) SpawnCount() int {
	if r == nil {
		return 0
	}
	return len(r.spawns)
}

// Spawns returns the spawn points in first-insertion order.
func (r *Result) Spawns() []SpawnPoint {
	if r == nil {
		return nil
	}
	points := make([]SpawnPoint, 0, len(r.spawnOrder))
	for _, id := range r.spawnOrder {
		points = append(points, r.spawns[id])
	}
	return points
}

// DefaultSpawn resolves the level's entry point: the priority names main,
// default, start, entry in order, then the first inserted spawn point. An
// empty mapping reports false rather than fabricating a default.
func (r *Result) DefaultSpawn() (SpawnPoint, bool) {
	if r == nil || len(r.spawns) == 0 {
		return SpawnPoint{}, false
	}
	for _, id := range defaultSpawnPriority {
		if point, ok := r.spawns[id]; ok {
			return point, ok
		}
	}
	return r.spawns[r.spawnOrder[0]], true
}

// FindSpawnPoint resolves a spawn identifier exactly, then by prefix, then by
// substring, in insertion order.
func (r *Result) FindSpawnPoint(query string) (SpawnPoint, bool) {
	if r == nil || query == "" {
		return SpawnPoint{}, false
	}
	if point, ok := r.spawns[query]; ok {
		return point, true
	}
	for _, id := range r.spawnOrder {
		if strings.HasPrefix(id, query) {
			return r.spawns[id], true
		}
	}
	for _, id := range r.spawnOrder {
		if strings.Contains(id, query) {
			return r.spawns[id], true
		}
	}
	return SpawnPoint{}, false
}

// Cleanup releases every record's artifact and then empties every collection
// in place. The result object itself stays usable for the next spawn pass.
func (r *Result) Cleanup() {
	if r == nil {
		return
	}
	for i := range r.Records {
		if r.Records[i].artifact != nil {
			r.Records[i].artifact.Release()
			r.Records[i].artifact = nil
		}
	}
	r.Doors = r.Doors[:0]
	r.NPCs = r.NPCs[:0]
	r.Encounters = r.Encounters[:0]
	r.Records = r.Records[:0]
	r.spawnOrder = r.spawnOrder[:0]
	clear(r.spawns)
	clear(r.Stats.ByType)
	r.LevelID = ""
}

// ArtifactCount reports how many records still hold an unreleased artifact.
func (r *Result) ArtifactCount() int {
	if r == nil {
		return 0
	}
	count := 0
	for i := range r.Records {
		if r.Records[i].artifact != nil {
			count++
		}
	}
	return count
}
