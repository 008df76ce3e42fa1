// Command contentdb syncs the content manifest into a SQLite index for
// content-team queries. Rows are upserted by ID and rows missing from the
// current manifest are pruned, so repeated runs converge on the manifest.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lorehall/server/content/registry"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rooms (
	id            TEXT PRIMARY KEY,
	display_name  TEXT NOT NULL DEFAULT '',
	room_data_url TEXT NOT NULL,
	spawns        TEXT NOT NULL DEFAULT '',
	generation    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS decks (
	id             TEXT PRIMARY KEY,
	url            TEXT NOT NULL,
	schema_version INTEGER NOT NULL,
	declared_count INTEGER NOT NULL DEFAULT 0,
	card_count     INTEGER,
	content_hash   TEXT NOT NULL DEFAULT '',
	subjects       TEXT NOT NULL DEFAULT '',
	generation     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS stories (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	generation INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sprites (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL,
	frame_width  INTEGER NOT NULL DEFAULT 0,
	frame_height INTEGER NOT NULL DEFAULT 0,
	portrait_url TEXT NOT NULL DEFAULT '',
	generation   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS props (
	id         TEXT PRIMARY KEY,
	path       TEXT NOT NULL DEFAULT '',
	generation INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS outfits (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL DEFAULT '',
	label      TEXT NOT NULL DEFAULT '',
	slot       TEXT NOT NULL DEFAULT '',
	generation INTEGER NOT NULL
);
`

func main() {
	var (
		contentDir   string
		manifestFile string
		dbPath       string
	)
	flag.StringVar(&contentDir, "content", "content", "content directory holding the manifest and resources")
	flag.StringVar(&manifestFile, "manifest", "manifest.json", "manifest file name inside the content directory")
	flag.StringVar(&dbPath, "db", "content.db", "SQLite index to write")
	flag.Parse()

	ctx := context.Background()

	loader := registry.New(
		registry.FileSource(filepath.Join(contentDir, manifestFile)),
		registry.WithFetcher(registry.FileFetcher(contentDir)),
	)

	db, err := openIndex(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "contentdb: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	summary, err := syncIndex(ctx, db, loader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "contentdb: %v\n", err)
		os.Exit(1)
	}

	for _, warning := range summary.Warnings {
		fmt.Fprintf(os.Stderr, "contentdb: warning: %s\n", warning)
	}
	fmt.Printf("synced build %s into %s: %d rooms, %d decks, %d stories, %d sprites, %d props, %d outfits\n",
		summary.BuildID, dbPath, summary.Rooms, summary.Decks, summary.Stories, summary.Sprites, summary.Props, summary.Outfits)
}

func openIndex(path string) (*sql.DB, error) {
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping index %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

type syncSummary struct {
	BuildID  string
	Rooms    int
	Decks    int
	Stories  int
	Sprites  int
	Props    int
	Outfits  int
	Warnings []string
}

// syncIndex writes one manifest snapshot into the index inside a single
// transaction. Deck payloads are loaded to record actual card counts; a deck
// that fails to load keeps its manifest row with a NULL count.
func syncIndex(ctx context.Context, db *sql.DB, loader *registry.Loader) (*syncSummary, error) {
	manifest, err := loader.Manifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	doc := manifest.Document()

	generation, err := nextGeneration(ctx, db)
	if err != nil {
		return nil, err
	}

	summary := &syncSummary{BuildID: doc.BuildID}

	// Card counts come from deck fetches, which happen outside the write
	// transaction to keep it short.
	cardCounts := make(map[string]any, len(doc.FlashcardPacks))
	for _, pack := range doc.FlashcardPacks {
		deck, err := loader.LoadFlashcardDeck(ctx, pack.ID)
		if err != nil {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("deck %s: %v", pack.ID, err))
			cardCounts[pack.ID] = nil
			continue
		}
		cardCounts[pack.ID] = len(deck.Cards)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin sync: %w", err)
	}
	defer tx.Rollback()

	for _, room := range doc.Rooms {
		_, err := tx.ExecContext(ctx, `
INSERT INTO rooms (id, display_name, room_data_url, spawns, generation)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	display_name = excluded.display_name,
	room_data_url = excluded.room_data_url,
	spawns = excluded.spawns,
	generation = excluded.generation
`, room.ID, room.DisplayName, room.RoomDataURL, strings.Join(room.Spawns, ","), generation)
		if err != nil {
			return nil, fmt.Errorf("sync room %s: %w", room.ID, err)
		}
		summary.Rooms++
	}

	for _, pack := range doc.FlashcardPacks {
		_, err := tx.ExecContext(ctx, `
INSERT INTO decks (id, url, schema_version, declared_count, card_count, content_hash, subjects, generation)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	url = excluded.url,
	schema_version = excluded.schema_version,
	declared_count = excluded.declared_count,
	card_count = excluded.card_count,
	content_hash = excluded.content_hash,
	subjects = excluded.subjects,
	generation = excluded.generation
`, pack.ID, pack.URL, pack.SchemaVersion, pack.Count, cardCounts[pack.ID], pack.ContentHash, strings.Join(pack.Subjects, ","), generation)
		if err != nil {
			return nil, fmt.Errorf("sync deck %s: %w", pack.ID, err)
		}
		summary.Decks++
	}

	for _, story := range doc.DialogueStories {
		_, err := tx.ExecContext(ctx, `
INSERT INTO stories (id, url, generation)
VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	url = excluded.url,
	generation = excluded.generation
`, story.ID, story.URL, generation)
		if err != nil {
			return nil, fmt.Errorf("sync story %s: %w", story.ID, err)
		}
		summary.Stories++
	}

	for _, sprite := range doc.Sprites {
		_, err := tx.ExecContext(ctx, `
INSERT INTO sprites (id, url, kind, frame_width, frame_height, portrait_url, generation)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	url = excluded.url,
	kind = excluded.kind,
	frame_width = excluded.frame_width,
	frame_height = excluded.frame_height,
	portrait_url = excluded.portrait_url,
	generation = excluded.generation
`, sprite.ID, sprite.URL, string(sprite.Kind), sprite.FrameWidth, sprite.FrameHeight, sprite.PortraitURL, generation)
		if err != nil {
			return nil, fmt.Errorf("sync sprite %s: %w", sprite.ID, err)
		}
		summary.Sprites++
	}

	for _, prop := range doc.Props {
		_, err := tx.ExecContext(ctx, `
INSERT INTO props (id, path, generation)
VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	path = excluded.path,
	generation = excluded.generation
`, prop.ID, prop.Path, generation)
		if err != nil {
			return nil, fmt.Errorf("sync prop %s: %w", prop.ID, err)
		}
		summary.Props++
	}

	for _, outfit := range doc.Outfits {
		_, err := tx.ExecContext(ctx, `
INSERT INTO outfits (id, url, label, slot, generation)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	url = excluded.url,
	label = excluded.label,
	slot = excluded.slot,
	generation = excluded.generation
`, outfit.ID, outfit.URL, outfit.Label, outfit.Slot, generation)
		if err != nil {
			return nil, fmt.Errorf("sync outfit %s: %w", outfit.ID, err)
		}
		summary.Outfits++
	}

	for _, table := range []string{"rooms", "decks", "stories", "sprites", "props", "outfits"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE generation <> ?", generation); err != nil {
			return nil, fmt.Errorf("prune %s: %w", table, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO meta (key, value) VALUES
	('build_id', ?),
	('generation', ?),
	('synced_at', ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value
`, doc.BuildID, strconv.FormatInt(generation, 10), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("record sync: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit sync: %w", err)
	}
	return summary, nil
}

func nextGeneration(ctx context.Context, db *sql.DB) (int64, error) {
	var raw string
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'generation'`).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 1, nil
	case err != nil:
		return 0, fmt.Errorf("read generation: %w", err)
	}
	current, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse generation %q: %w", raw, err)
	}
	return current + 1, nil
}
