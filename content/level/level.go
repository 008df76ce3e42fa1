package level

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// TileSize is the fixed cell size every compiled level uses.
const TileSize = 32

// Grid is a row-major 2D grid of global tile indices. Index 0 means no tile.
type Grid [][]int

// TilesetRef binds a range of global tile indices to a registry key. The
// owning tileset for an index is the one with the largest FirstGid that is
// still <= the index.
type TilesetRef struct {
	Key      string `json:"key"`
	FirstGid int    `json:"firstGid"`
}

// Rect is a pixel-space rectangle.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Collision carries either a boolean grid or a rectangle list, whichever the
// compiler emitted.
type Collision struct {
	Grid  [][]bool
	Rects []Rect
}

// Empty reports whether no collision data is present.
func (c Collision) Empty() bool {
	return len(c.Grid) == 0 && len(c.Rects) == 0
}

func (c *Collision) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = Collision{}
		return nil
	}
	var grid [][]bool
	if err := json.Unmarshal(trimmed, &grid); err == nil {
		c.Grid = grid
		c.Rects = nil
		return nil
	}
	var rects []Rect
	if err := json.Unmarshal(trimmed, &rects); err == nil {
		c.Grid = nil
		c.Rects = rects
		return nil
	}
	return fmt.Errorf("collision: expected boolean grid or rectangle list")
}

func (c Collision) MarshalJSON() ([]byte, error) {
	if len(c.Grid) > 0 {
		return json.Marshal(c.Grid)
	}
	if len(c.Rects) > 0 {
		return json.Marshal(c.Rects)
	}
	return []byte("null"), nil
}

// Layers groups the named tile layers of a compiled level.
type Layers struct {
	Floor     Grid      `json:"floor"`
	Walls     Grid      `json:"walls"`
	Trim      Grid      `json:"trim"`
	Overlays  Grid      `json:"overlays"`
	Collision Collision `json:"collision,omitempty"`
}

// Entity is one raw entity record from a compiled level. Position and extent
// are in pixels; Properties is interpreted by the spawner per Type.
type Entity struct {
	Type       string         `json:"type"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	Properties map[string]any `json:"properties,omitempty"`
}

// CompiledLevel is the validated, runtime-ready form of an authored tile map.
type CompiledLevel struct {
	ID       string       `json:"id"`
	Width    int          `json:"width"`
	Height   int          `json:"height"`
	TileSize int          `json:"tileSize"`
	Layers   Layers       `json:"layers"`
	Entities []Entity     `json:"entities"`
	Tilesets []TilesetRef `json:"tilesets"`
}

// TilesetFor resolves the owning tileset for a global tile index. Index 0
// always means no tile; an index below every FirstGid has no owner.
func (l *CompiledLevel) TilesetFor(index int) (TilesetRef, bool) {
	if l == nil || index <= 0 || len(l.Tilesets) == 0 {
		return TilesetRef{}, false
	}
	pos := sort.Search(len(l.Tilesets), func(i int) bool {
		return l.Tilesets[i].FirstGid > index
	})
	if pos == 0 {
		return TilesetRef{}, false
	}
	return l.Tilesets[pos-1], true
}

func decodeLevel(data []byte) (*CompiledLevel, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty level document")
	}
	var level CompiledLevel
	if err := json.Unmarshal(trimmed, &level); err != nil {
		return nil, err
	}
	return &level, nil
}
