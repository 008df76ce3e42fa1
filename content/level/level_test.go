package level

import (
	"encoding/json"
	"strings"
	"testing"
)

func testLevel(id string) *CompiledLevel {
	grid := func(fill int) Grid {
		g := make(Grid, 2)
		for y := range g {
			row := make([]int, 3)
			for x := range row {
				row[x] = fill
			}
			g[y] = row
		}
		return g
	}
	return &CompiledLevel{
		ID:       id,
		Width:    3,
		Height:   2,
		TileSize: TileSize,
		Layers: Layers{
			Floor:    grid(1),
			Walls:    grid(0),
			Trim:     grid(0),
			Overlays: grid(0),
		},
		Tilesets: []TilesetRef{
			{Key: "terrain", FirstGid: 1},
			{Key: "props", FirstGid: 50},
		},
	}
}

func TestTilesetForPartitionsIndexSpace(t *testing.T) {
	level := testLevel("library")

	ts, ok := level.TilesetFor(49)
	if !ok || ts.Key != "terrain" {
		t.Fatalf("expected index 49 to resolve to terrain, got %+v ok=%v", ts, ok)
	}
	ts, ok = level.TilesetFor(50)
	if !ok || ts.Key != "props" {
		t.Fatalf("expected index 50 to resolve to props, got %+v ok=%v", ts, ok)
	}
	ts, ok = level.TilesetFor(1)
	if !ok || ts.Key != "terrain" {
		t.Fatalf("expected index 1 to resolve to terrain, got %+v ok=%v", ts, ok)
	}
	ts, ok = level.TilesetFor(10000)
	if !ok || ts.Key != "props" {
		t.Fatalf("expected large index to resolve to the last tileset, got %+v ok=%v", ts, ok)
	}
	if _, ok := level.TilesetFor(0); ok {
		t.Fatalf("expected index 0 to resolve to no tile")
	}
	if _, ok := level.TilesetFor(-3); ok {
		t.Fatalf("expected negative index to resolve to no tile")
	}
}

func TestTilesetForBelowFirstGid(t *testing.T) {
	level := testLevel("library")
	level.Tilesets = []TilesetRef{{Key: "props", FirstGid: 50}}
	if _, ok := level.TilesetFor(49); ok {
		t.Fatalf("expected index below every firstGid to have no owner")
	}
}

func TestValidateAcceptsWellFormedLevel(t *testing.T) {
	if err := Validate(testLevel("library")); err != nil {
		t.Fatalf("expected valid level to pass, got %v", err)
	}
}

func TestValidateRejectsStructuralViolations(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CompiledLevel)
		want   string
	}{
		{"missing id", func(l *CompiledLevel) { l.ID = "" }, "missing id"},
		{"zero width", func(l *CompiledLevel) { l.Width = 0 }, "invalid dimensions"},
		{"wrong tile size", func(l *CompiledLevel) { l.TileSize = 16 }, "tileSize"},
		{"missing floor layer", func(l *CompiledLevel) { l.Layers.Floor = nil }, `missing required layer "floor"`},
		{"missing overlays layer", func(l *CompiledLevel) { l.Layers.Overlays = nil }, `missing required layer "overlays"`},
		{"short layer", func(l *CompiledLevel) { l.Layers.Walls = l.Layers.Walls[:1] }, "rows"},
		{"ragged row", func(l *CompiledLevel) { l.Layers.Trim[1] = l.Layers.Trim[1][:2] }, "columns"},
		{"missing tilesets", func(l *CompiledLevel) { l.Tilesets = nil }, "missing tileset list"},
		{"unsorted tilesets", func(l *CompiledLevel) {
			l.Tilesets = []TilesetRef{{Key: "props", FirstGid: 50}, {Key: "terrain", FirstGid: 1}}
		}, "not sorted"},
		{"duplicate tileset key", func(l *CompiledLevel) {
			l.Tilesets = []TilesetRef{{Key: "terrain", FirstGid: 1}, {Key: "terrain", FirstGid: 50}}
		}, "duplicate tileset key"},
		{"zero firstGid", func(l *CompiledLevel) { l.Tilesets[0].FirstGid = 0 }, "firstGid"},
		{"orphan tile index", func(l *CompiledLevel) {
			l.Tilesets = []TilesetRef{{Key: "props", FirstGid: 50}}
			l.Layers.Floor[0][0] = 7
		}, "no owning tileset"},
		{"negative tile index", func(l *CompiledLevel) { l.Layers.Floor[0][1] = -2 }, "negative index"},
		{"collision grid mismatch", func(l *CompiledLevel) {
			l.Layers.Collision = Collision{Grid: [][]bool{{true, false, true}}}
		}, "collision grid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			level := testLevel("library")
			tc.mutate(level)
			err := Validate(level)
			if err == nil {
				t.Fatalf("expected validation to fail")
			}
			if !IsSchemaViolation(err) {
				t.Fatalf("expected schema violation, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCollisionDecodesBothForms(t *testing.T) {
	var fromGrid Collision
	if err := json.Unmarshal([]byte(`[[true, false], [false, true]]`), &fromGrid); err != nil {
		t.Fatalf("expected boolean grid to decode, got %v", err)
	}
	if len(fromGrid.Grid) != 2 || len(fromGrid.Rects) != 0 {
		t.Fatalf("unexpected grid collision %+v", fromGrid)
	}

	var fromRects Collision
	if err := json.Unmarshal([]byte(`[{"x": 0, "y": 32, "width": 64, "height": 32}]`), &fromRects); err != nil {
		t.Fatalf("expected rectangle list to decode, got %v", err)
	}
	if len(fromRects.Rects) != 1 || len(fromRects.Grid) != 0 {
		t.Fatalf("unexpected rect collision %+v", fromRects)
	}
	if fromRects.Rects[0].Y != 32 {
		t.Fatalf("unexpected rect %+v", fromRects.Rects[0])
	}

	var fromNull Collision
	if err := json.Unmarshal([]byte(`null`), &fromNull); err != nil {
		t.Fatalf("expected null collision to decode, got %v", err)
	}
	if !fromNull.Empty() {
		t.Fatalf("expected empty collision from null")
	}

	var bad Collision
	if err := json.Unmarshal([]byte(`"walls"`), &bad); err == nil {
		t.Fatalf("expected scalar collision to fail")
	}
}

func TestCollisionRoundTrips(t *testing.T) {
	src := Collision{Rects: []Rect{{X: 1, Y: 2, Width: 3, Height: 4}}}
	data, err := json.Marshal(src)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var dst Collision
	if err := json.Unmarshal(data, &dst); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(dst.Rects) != 1 || dst.Rects[0].Width != 3 {
		t.Fatalf("unexpected round trip %+v", dst)
	}
}
