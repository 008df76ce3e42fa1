package assets

import (
	"testing"

	"lorehall/server/content/registry"
)

func TestResolveSpriteURLPrefersManifestURL(t *testing.T) {
	sprite := registry.Sprite{ID: "archivist", URL: "sprites/archivist.png"}
	got := ResolveSpriteURL(sprite, "build-9")
	if got != "sprites/archivist.png?v=build-9" {
		t.Fatalf("expected manifest URL with build tag, got %q", got)
	}
}

func TestResolveSpriteURLFallsBackToDefaultPath(t *testing.T) {
	sprite := registry.Sprite{ID: "candle"}
	got := ResolveSpriteURL(sprite, "build-9")
	if got != "assets/sprites/candle.png?v=build-9" {
		t.Fatalf("expected default sprite path, got %q", got)
	}
}

func TestResolvePropURLFallsBackToDefaultPath(t *testing.T) {
	prop := registry.Prop{ID: "lectern"}
	got := ResolvePropURL(prop, "")
	if got != "assets/props/lectern.png" {
		t.Fatalf("expected default prop path, got %q", got)
	}
}

func TestWithBuildTagOmittedWhenBuildIDEmpty(t *testing.T) {
	got := WithBuildTag("sprites/archivist.png", "")
	if got != "sprites/archivist.png" {
		t.Fatalf("expected untouched URL, got %q", got)
	}
}

func TestWithBuildTagAppendsToExistingQuery(t *testing.T) {
	got := WithBuildTag("sprites/archivist.png?variant=night", "build-9")
	if got != "sprites/archivist.png?variant=night&v=build-9" {
		t.Fatalf("expected ampersand join, got %q", got)
	}
}

func TestResolvePortraitURLEmptyWithoutCompanion(t *testing.T) {
	sprite := registry.Sprite{ID: "ghost", Kind: registry.SpriteSheet}
	if got := ResolvePortraitURL(sprite, "build-9"); got != "" {
		t.Fatalf("expected empty portrait URL, got %q", got)
	}
	sprite.PortraitURL = "portraits/ghost.png"
	if got := ResolvePortraitURL(sprite, "build-9"); got != "portraits/ghost.png?v=build-9" {
		t.Fatalf("expected tagged portrait URL, got %q", got)
	}
}

func TestAnimationSetForDefaultsFrameSize(t *testing.T) {
	set := AnimationSetFor(registry.Sprite{ID: "archivist", Kind: registry.SpriteSheet})
	if set.FrameWidth != 64 || set.FrameHeight != 64 {
		t.Fatalf("expected 64x64 default frames, got %dx%d", set.FrameWidth, set.FrameHeight)
	}
	set = AnimationSetFor(registry.Sprite{ID: "ghost", Kind: registry.SpriteSheet, FrameWidth: 32, FrameHeight: 48})
	if set.FrameWidth != 32 || set.FrameHeight != 48 {
		t.Fatalf("expected declared frame size, got %dx%d", set.FrameWidth, set.FrameHeight)
	}
}

func TestDirectionalClipsCoverWalkAndIdle(t *testing.T) {
	clips := DirectionalClips()
	if len(clips) != 8 {
		t.Fatalf("expected 8 clips, got %d", len(clips))
	}
	walk := 0
	idle := 0
	for _, clip := range clips {
		switch {
		case clip.Frames == 8 && clip.Start == 1:
			walk++
		case clip.Frames == 1 && clip.Start == 0:
			idle++
		default:
			t.Fatalf("unexpected clip shape %+v", clip)
		}
	}
	if walk != 4 || idle != 4 {
		t.Fatalf("expected 4 walk and 4 idle clips, got %d and %d", walk, idle)
	}
}
