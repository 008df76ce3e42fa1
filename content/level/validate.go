package level

import "fmt"

// SchemaError reports a structural violation in a compiled level document.
// A schema violation is fatal to that level load and is never coerced into a
// partially usable level.
type SchemaError struct {
	LevelID string
	Reason  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("level %s: schema violation: %s", e.LevelID, e.Reason)
}

func schemaErr(levelID, format string, args ...any) error {
	return &SchemaError{LevelID: levelID, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks a compiled level against the structural contract: plausible
// dimensions, the fixed tile size, all four named layers sized to the grid,
// a sorted tileset list, and every non-zero tile index owned by a tileset.
func Validate(l *CompiledLevel) error {
	if l == nil {
		return schemaErr("", "nil level")
	}
	if l.ID == "" {
		return schemaErr("", "missing id")
	}
	if l.Width <= 0 || l.Height <= 0 {
		return schemaErr(l.ID, "invalid dimensions %dx%d", l.Width, l.Height)
	}
	if l.TileSize != TileSize {
		return schemaErr(l.ID, "tileSize %d, want %d", l.TileSize, TileSize)
	}

	layers := []struct {
		name string
		grid Grid
	}{
		{"floor", l.Layers.Floor},
		{"walls", l.Layers.Walls},
		{"trim", l.Layers.Trim},
		{"overlays", l.Layers.Overlays},
	}
	for _, layer := range layers {
		if layer.grid == nil {
			return schemaErr(l.ID, "missing required layer %q", layer.name)
		}
		if len(layer.grid) != l.Height {
			return schemaErr(l.ID, "layer %q has %d rows, want %d", layer.name, len(layer.grid), l.Height)
		}
		for y, row := range layer.grid {
			if len(row) != l.Width {
				return schemaErr(l.ID, "layer %q row %d has %d columns, want %d", layer.name, y, len(row), l.Width)
			}
		}
	}
	if grid := l.Layers.Collision.Grid; grid != nil {
		if len(grid) != l.Height {
			return schemaErr(l.ID, "collision grid has %d rows, want %d", len(grid), l.Height)
		}
		for y, row := range grid {
			if len(row) != l.Width {
				return schemaErr(l.ID, "collision grid row %d has %d columns, want %d", y, len(row), l.Width)
			}
		}
	}

	if len(l.Tilesets) == 0 {
		return schemaErr(l.ID, "missing tileset list")
	}
	seen := make(map[string]struct{}, len(l.Tilesets))
	for i, ts := range l.Tilesets {
		if ts.Key == "" {
			return schemaErr(l.ID, "tileset %d missing key", i)
		}
		if ts.FirstGid < 1 {
			return schemaErr(l.ID, "tileset %q has firstGid %d, want >= 1", ts.Key, ts.FirstGid)
		}
		if _, dup := seen[ts.Key]; dup {
			return schemaErr(l.ID, "duplicate tileset key %q", ts.Key)
		}
		seen[ts.Key] = struct{}{}
		if i > 0 && ts.FirstGid <= l.Tilesets[i-1].FirstGid {
			return schemaErr(l.ID, "tilesets not sorted ascending by firstGid at %q", ts.Key)
		}
	}

	for _, layer := range layers {
		for y, row := range layer.grid {
			for x, index := range row {
				if index == 0 {
					continue
				}
				if index < 0 {
					return schemaErr(l.ID, "layer %q tile (%d,%d) has negative index %d", layer.name, x, y, index)
				}
				if _, ok := l.TilesetFor(index); !ok {
					return schemaErr(l.ID, "layer %q tile (%d,%d) index %d has no owning tileset", layer.name, x, y, index)
				}
			}
		}
	}

	return nil
}
