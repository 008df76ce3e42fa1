package assets

import (
	"fmt"
	"strings"

	"lorehall/server/content/registry"
)

// ResourceKind tags a queued resource.
type ResourceKind string

const (
	ResourceSprite   ResourceKind = "sprite"
	ResourceProp     ResourceKind = "prop"
	ResourcePortrait ResourceKind = "portrait"
)

// Request is one concrete resource to fetch, with its presence key and the
// final URL including any cache-busting token.
type Request struct {
	Key         string
	ID          string
	Kind        ResourceKind
	URL         string
	Sheet       bool
	FrameWidth  int
	FrameHeight int
}

// DefaultSpritePath is the deterministic fallback location for a sprite
// whose registry entry omits a URL.
func DefaultSpritePath(id string) string {
	return fmt.Sprintf("assets/sprites/%s.png", id)
}

// DefaultPropPath is the deterministic fallback location for a prop whose
// registry entry omits a path.
func DefaultPropPath(id string) string {
	return fmt.Sprintf("assets/props/%s.png", id)
}

// WithBuildTag appends the cache-busting version token. An empty build ID
// leaves the URL untouched.
func WithBuildTag(url, buildID string) string {
	if buildID == "" {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "v=" + buildID
}

// ResolveSpriteURL maps a sprite entry to its fetchable URL.
func ResolveSpriteURL(sprite registry.Sprite, buildID string) string {
	url := sprite.URL
	if url == "" {
		url = DefaultSpritePath(sprite.ID)
	}
	return WithBuildTag(url, buildID)
}

// ResolvePropURL maps a prop entry to its fetchable URL.
func ResolvePropURL(prop registry.Prop, buildID string) string {
	url := prop.Path
	if url == "" {
		url = DefaultPropPath(prop.ID)
	}
	return WithBuildTag(url, buildID)
}

// ResolvePortraitURL maps a sheet sprite's companion portrait to its
// fetchable URL, or "" when the sprite has none.
func ResolvePortraitURL(sprite registry.Sprite, buildID string) string {
	if sprite.PortraitURL == "" {
		return ""
	}
	return WithBuildTag(sprite.PortraitURL, buildID)
}

// Clip is one named animation strip inside a sheet: a row, a starting
// column, and a frame count.
type Clip struct {
	Name   string
	Row    int
	Start  int
	Frames int
}

// AnimationSet is the directional walk/idle group registered for one sheet.
type AnimationSet struct {
	Key         string
	FrameWidth  int
	FrameHeight int
	Clips       []Clip
}

// DirectionalClips returns the standard LPC walk rows with their leading
// standing frame split out as idle.
func DirectionalClips() []Clip {
	return []Clip{
		{Name: "walk-up", Row: 8, Start: 1, Frames: 8},
		{Name: "walk-left", Row: 9, Start: 1, Frames: 8},
		{Name: "walk-down", Row: 10, Start: 1, Frames: 8},
		{Name: "walk-right", Row: 11, Start: 1, Frames: 8},
		{Name: "idle-up", Row: 8, Start: 0, Frames: 1},
		{Name: "idle-left", Row: 9, Start: 0, Frames: 1},
		{Name: "idle-down", Row: 10, Start: 0, Frames: 1},
		{Name: "idle-right", Row: 11, Start: 0, Frames: 1},
	}
}

// AnimationSetFor builds the directional set for a sheet sprite. Frame
// dimensions default to 64 when the entry omits them.
func AnimationSetFor(sprite registry.Sprite) AnimationSet {
	frameWidth := sprite.FrameWidth
	if frameWidth <= 0 {
		frameWidth = 64
	}
	frameHeight := sprite.FrameHeight
	if frameHeight <= 0 {
		frameHeight = 64
	}
	return AnimationSet{
		Key:         sprite.ID,
		FrameWidth:  frameWidth,
		FrameHeight: frameHeight,
		Clips:       DirectionalClips(),
	}
}

func spriteKey(id string) string {
	return "sprite:" + id
}

func propKey(id string) string {
	return "prop:" + id
}

func portraitKey(id string) string {
	return "portrait:" + id
}
