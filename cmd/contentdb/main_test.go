package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lorehall/server/content/registry"
)

const firstManifest = `{
  "buildId": "build-7",
  "rooms": [{"id": "library", "roomDataUrl": "levels/library.json", "displayName": "The Library", "spawns": ["main"]}],
  "flashcards": [
    {"id": "latin-001", "url": "decks/latin.json", "schemaVersion": 1, "count": 2, "subjects": ["latin"]},
    {"id": "ghost", "url": "decks/missing.json", "schemaVersion": 1}
  ],
  "dialogue": [{"id": "archivist-intro", "url": "stories/archivist.json"}],
  "sprites": [{"id": "hero", "url": "sprites/hero.png", "kind": "spritesheet", "frameWidth": 32, "frameHeight": 48}],
  "props": [{"id": "bookshelf", "path": "props/bookshelf.png"}],
  "outfits": [{"id": "scholar-robe", "label": "Scholar Robe", "slot": "body"}]
}`

const secondManifest = `{
  "buildId": "build-8",
  "rooms": [{"id": "library", "roomDataUrl": "levels/library.json", "displayName": "The Grand Library"}],
  "flashcards": [{"id": "latin-001", "url": "decks/latin.json", "schemaVersion": 1, "count": 2}]
}`

const latinDeck = `{"schemaVersion": 1, "cards": [{"front": "aqua", "back": "water"}, {"front": "ignis", "back": "fire"}]}`

func writeContentDir(t *testing.T, manifest string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "decks"), 0o755); err != nil {
		t.Fatalf("mkdir decks: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "decks", "latin.json"), []byte(latinDeck), 0o644); err != nil {
		t.Fatalf("write deck: %v", err)
	}
	return dir
}

func newLoader(dir string) *registry.Loader {
	return registry.New(
		registry.FileSource(filepath.Join(dir, "manifest.json")),
		registry.WithFetcher(registry.FileFetcher(dir)),
	)
}

func openTestIndex(t *testing.T) *sql.DB {
	t.Helper()
	db, err := openIndex(filepath.Join(t.TempDir(), "content.db"))
	if err != nil {
		t.Fatalf("openIndex failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSyncIndexWritesEveryTable(t *testing.T) {
	dir := writeContentDir(t, firstManifest)
	db := openTestIndex(t)

	summary, err := syncIndex(context.Background(), db, newLoader(dir))
	if err != nil {
		t.Fatalf("syncIndex failed: %v", err)
	}

	if summary.BuildID != "build-7" {
		t.Fatalf("expected build-7, got %q", summary.BuildID)
	}
	if summary.Rooms != 1 || summary.Decks != 2 || summary.Stories != 1 || summary.Sprites != 1 || summary.Props != 1 || summary.Outfits != 1 {
		t.Fatalf("unexpected summary counts %+v", summary)
	}
	if len(summary.Warnings) != 1 || !strings.Contains(summary.Warnings[0], "ghost") {
		t.Fatalf("expected one warning for the missing deck, got %v", summary.Warnings)
	}

	var displayName, dataURL, spawns string
	row := db.QueryRow(`SELECT display_name, room_data_url, spawns FROM rooms WHERE id = 'library'`)
	if err := row.Scan(&displayName, &dataURL, &spawns); err != nil {
		t.Fatalf("scan room: %v", err)
	}
	if displayName != "The Library" || dataURL != "levels/library.json" || spawns != "main" {
		t.Fatalf("unexpected room row %q %q %q", displayName, dataURL, spawns)
	}

	var cardCount sql.NullInt64
	if err := db.QueryRow(`SELECT card_count FROM decks WHERE id = 'latin-001'`).Scan(&cardCount); err != nil {
		t.Fatalf("scan deck: %v", err)
	}
	if !cardCount.Valid || cardCount.Int64 != 2 {
		t.Fatalf("expected 2 counted cards, got %+v", cardCount)
	}
	if err := db.QueryRow(`SELECT card_count FROM decks WHERE id = 'ghost'`).Scan(&cardCount); err != nil {
		t.Fatalf("scan ghost deck: %v", err)
	}
	if cardCount.Valid {
		t.Fatalf("expected NULL count for unloadable deck, got %d", cardCount.Int64)
	}

	var buildID string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'build_id'`).Scan(&buildID); err != nil {
		t.Fatalf("scan meta: %v", err)
	}
	if buildID != "build-7" {
		t.Fatalf("expected recorded build-7, got %q", buildID)
	}
}

func TestSyncIndexUpsertsAndPrunes(t *testing.T) {
	dir := writeContentDir(t, firstManifest)
	db := openTestIndex(t)

	if _, err := syncIndex(context.Background(), db, newLoader(dir)); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(secondManifest), 0o644); err != nil {
		t.Fatalf("rewrite manifest: %v", err)
	}

	summary, err := syncIndex(context.Background(), db, newLoader(dir))
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if summary.Rooms != 1 || summary.Decks != 1 || summary.Sprites != 0 {
		t.Fatalf("unexpected summary counts after resync %+v", summary)
	}

	var sprites, decks int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sprites`).Scan(&sprites); err != nil {
		t.Fatalf("count sprites: %v", err)
	}
	if sprites != 0 {
		t.Fatalf("expected dropped sprite pruned, got %d rows", sprites)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM decks`).Scan(&decks); err != nil {
		t.Fatalf("count decks: %v", err)
	}
	if decks != 1 {
		t.Fatalf("expected dropped deck pruned, got %d rows", decks)
	}

	var displayName string
	if err := db.QueryRow(`SELECT display_name FROM rooms WHERE id = 'library'`).Scan(&displayName); err != nil {
		t.Fatalf("scan room: %v", err)
	}
	if displayName != "The Grand Library" {
		t.Fatalf("expected upserted display name, got %q", displayName)
	}

	var generation string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'generation'`).Scan(&generation); err != nil {
		t.Fatalf("scan generation: %v", err)
	}
	if generation != "2" {
		t.Fatalf("expected second generation, got %q", generation)
	}
}
