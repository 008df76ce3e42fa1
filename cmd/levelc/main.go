// Command levelc compiles an authored Tiled map into the compiled level
// document the runtime serves. A YAML config maps authored layer and object
// group names onto the compiled contract; unmapped object groups are dropped.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/lafriks/go-tiled"
	"gopkg.in/yaml.v3"

	"lorehall/server/content/level"
)

func main() {
	var (
		tmxPath    string
		configPath string
		outPath    string
	)
	flag.StringVar(&tmxPath, "tmx", "", "path to the authored Tiled map")
	flag.StringVar(&configPath, "config", "", "optional YAML compile config")
	flag.StringVar(&outPath, "out", "", "output path, overrides the config")
	flag.Parse()

	if tmxPath == "" {
		fmt.Fprintln(os.Stderr, "--tmx is required")
		os.Exit(1)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "levelc: %v\n", err)
		os.Exit(1)
	}
	if cfg.ID == "" {
		cfg.ID = strings.TrimSuffix(filepath.Base(tmxPath), filepath.Ext(tmxPath))
	}
	if outPath == "" {
		outPath = cfg.Output
	}
	if outPath == "" {
		outPath = strings.TrimSuffix(tmxPath, filepath.Ext(tmxPath)) + ".json"
	}

	authored, err := tiled.LoadFile(tmxPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "levelc: load %s: %v\n", tmxPath, err)
		os.Exit(1)
	}

	src, err := readMap(authored, cfg.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "levelc: %v\n", err)
		os.Exit(1)
	}

	compiled, err := compile(src, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "levelc: %v\n", err)
		os.Exit(1)
	}

	if err := writeLevel(outPath, compiled); err != nil {
		fmt.Fprintf(os.Stderr, "levelc: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("compiled %s (%dx%d, %d entities) to %s\n",
		compiled.ID, compiled.Width, compiled.Height, len(compiled.Entities), outPath)
}

// compileConfig maps authored names onto the compiled contract. Every field
// is optional; blanks fall back to the authoring conventions in
// defaultConfig.
type compileConfig struct {
	ID       string            `yaml:"id"`
	Layers   layerNames        `yaml:"layers"`
	Entities map[string]string `yaml:"entities"`
	Tilesets map[string]string `yaml:"tilesets"`
	Output   string            `yaml:"output"`
}

type layerNames struct {
	Floor     string `yaml:"floor"`
	Walls     string `yaml:"walls"`
	Trim      string `yaml:"trim"`
	Overlays  string `yaml:"overlays"`
	Collision string `yaml:"collision"`
}

func defaultConfig() compileConfig {
	return compileConfig{
		Layers: layerNames{
			Floor:     "Floor",
			Walls:     "Walls",
			Trim:      "Trim",
			Overlays:  "Overlays",
			Collision: "Collision",
		},
		Entities: map[string]string{
			"PlayerSpawn": "PlayerSpawn",
			"Doors":       "Door",
			"NPCs":        "NPC",
			"Encounters":  "EncounterTrigger",
		},
	}
}

func (c compileConfig) withDefaults() compileConfig {
	def := defaultConfig()
	if c.Layers.Floor == "" {
		c.Layers.Floor = def.Layers.Floor
	}
	if c.Layers.Walls == "" {
		c.Layers.Walls = def.Layers.Walls
	}
	if c.Layers.Trim == "" {
		c.Layers.Trim = def.Layers.Trim
	}
	if c.Layers.Overlays == "" {
		c.Layers.Overlays = def.Layers.Overlays
	}
	if c.Layers.Collision == "" {
		c.Layers.Collision = def.Layers.Collision
	}
	if c.Entities == nil {
		c.Entities = def.Entities
	}
	return c
}

func loadConfig(path string) (compileConfig, error) {
	if path == "" {
		return defaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return compileConfig{}, fmt.Errorf("load config %s: %w", path, err)
	}
	var cfg compileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return compileConfig{}, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	return cfg.withDefaults(), nil
}

// authoredMap is the Tiled-independent view of a loaded map; everything past
// readMap works on this form so compilation stays testable without TMX
// fixtures.
type authoredMap struct {
	width    int
	height   int
	tileSize int
	layers   map[string]level.Grid
	groups   []objectGroup
	tilesets []level.TilesetRef
}

type objectGroup struct {
	name    string
	objects []authoredObject
}

type authoredObject struct {
	x, y, width, height float64
	props               map[string]any
}

func readMap(m *tiled.Map, id string) (*authoredMap, error) {
	if m.TileWidth != m.TileHeight {
		return nil, fmt.Errorf("map %s: tile size %dx%d is not square", id, m.TileWidth, m.TileHeight)
	}

	src := &authoredMap{
		width:    m.Width,
		height:   m.Height,
		tileSize: m.TileWidth,
		layers:   make(map[string]level.Grid, len(m.Layers)),
	}

	for _, layer := range m.Layers {
		grid := make(level.Grid, m.Height)
		for y := 0; y < m.Height; y++ {
			row := make([]int, m.Width)
			for x := 0; x < m.Width; x++ {
				tile := layer.Tiles[y*m.Width+x]
				if tile.IsNil() {
					continue
				}
				row[x] = int(tile.Tileset.FirstGID + tile.ID)
			}
			grid[y] = row
		}
		src.layers[layer.Name] = grid
	}

	for _, ts := range m.Tilesets {
		name := ts.Name
		if name == "" && ts.Source != "" {
			name = strings.TrimSuffix(filepath.Base(ts.Source), filepath.Ext(ts.Source))
		}
		src.tilesets = append(src.tilesets, level.TilesetRef{Key: name, FirstGid: int(ts.FirstGID)})
	}

	for _, og := range m.ObjectGroups {
		group := objectGroup{name: og.Name}
		for _, obj := range og.Objects {
			group.objects = append(group.objects, authoredObject{
				x:      obj.X,
				y:      obj.Y,
				width:  obj.Width,
				height: obj.Height,
				props:  convertProperties(obj.Properties),
			})
		}
		src.groups = append(src.groups, group)
	}

	return src, nil
}

func convertProperties(props tiled.Properties) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for _, prop := range props {
		out[prop.Name] = convertProperty(prop.Type, prop.Value)
	}
	return out
}

// Tiled serializes every property value as a string; the type attribute says
// what it was authored as.
func convertProperty(kind, value string) any {
	switch kind {
	case "bool":
		return value == "true"
	case "int":
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	case "float":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return value
}

func compile(src *authoredMap, cfg compileConfig) (*level.CompiledLevel, error) {
	if src.tileSize != level.TileSize {
		return nil, fmt.Errorf("map %s: tile size %d, want %d", cfg.ID, src.tileSize, level.TileSize)
	}

	floor, ok := src.layers[cfg.Layers.Floor]
	if !ok {
		return nil, fmt.Errorf("map %s: missing tile layer %q", cfg.ID, cfg.Layers.Floor)
	}
	walls, ok := src.layers[cfg.Layers.Walls]
	if !ok {
		return nil, fmt.Errorf("map %s: missing tile layer %q", cfg.ID, cfg.Layers.Walls)
	}

	compiled := &level.CompiledLevel{
		ID:       cfg.ID,
		Width:    src.width,
		Height:   src.height,
		TileSize: src.tileSize,
		Layers: level.Layers{
			Floor:     floor,
			Walls:     walls,
			Trim:      layerOrEmpty(src, cfg.Layers.Trim),
			Overlays:  layerOrEmpty(src, cfg.Layers.Overlays),
			Collision: level.Collision{Grid: collisionGrid(walls, src.layers[cfg.Layers.Collision])},
		},
		Entities: compileEntities(src.groups, cfg.Entities),
		Tilesets: compileTilesets(src.tilesets, cfg.Tilesets),
	}

	if err := level.Validate(compiled); err != nil {
		return nil, err
	}
	return compiled, nil
}

func layerOrEmpty(src *authoredMap, name string) level.Grid {
	if grid, ok := src.layers[name]; ok {
		return grid
	}
	return emptyGrid(src.width, src.height)
}

func emptyGrid(width, height int) level.Grid {
	grid := make(level.Grid, height)
	for y := range grid {
		grid[y] = make([]int, width)
	}
	return grid
}

// collisionGrid marks every populated walls cell solid, then ORs in the
// optional explicit collision layer.
func collisionGrid(walls, explicit level.Grid) [][]bool {
	grid := make([][]bool, len(walls))
	for y, row := range walls {
		cells := make([]bool, len(row))
		for x, index := range row {
			cells[x] = index != 0
		}
		if y < len(explicit) {
			for x, index := range explicit[y] {
				if x < len(cells) && index != 0 {
					cells[x] = true
				}
			}
		}
		grid[y] = cells
	}
	return grid
}

// compileEntities flattens mapped object groups into the entity list,
// preserving document order. The spawner dispatches in list order, so the
// compiler never reorders.
func compileEntities(groups []objectGroup, mapping map[string]string) []level.Entity {
	entities := make([]level.Entity, 0)
	for _, group := range groups {
		entityType, ok := mapping[group.name]
		if !ok {
			continue
		}
		for _, obj := range group.objects {
			entities = append(entities, level.Entity{
				Type:       entityType,
				X:          obj.x,
				Y:          obj.y,
				Width:      obj.width,
				Height:     obj.height,
				Properties: obj.props,
			})
		}
	}
	return entities
}

func compileTilesets(refs []level.TilesetRef, mapping map[string]string) []level.TilesetRef {
	out := make([]level.TilesetRef, 0, len(refs))
	for _, ref := range refs {
		key := ref.Key
		if mapped, ok := mapping[ref.Key]; ok {
			key = mapped
		}
		out = append(out, level.TilesetRef{Key: key, FirstGid: ref.FirstGid})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstGid < out[j].FirstGid })
	return out
}

func writeLevel(outPath string, compiled *level.CompiledLevel) error {
	data, err := json.MarshalIndent(compiled, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal level: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp level: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace level: %w", err)
	}

	return nil
}
