package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"lorehall/server/logging"
)

const manifestFixture = `{
  "buildId": "build-7",
  "rooms": [
    {"id": "library", "roomDataUrl": "levels/library.json", "displayName": "The Library", "spawns": ["main", "back"]},
    {"id": "cellar", "roomDataUrl": "levels/cellar.json"}
  ],
  "flashcards": [
    {"id": "latin-basics", "url": "decks/latin-basics.json", "schemaVersion": 1, "count": 2, "subjects": ["latin"]}
  ],
  "dialogue": [
    {"id": "archivist-intro", "url": "stories/archivist-intro.json"}
  ],
  "sprites": [
    {"id": "archivist", "kind": "spritesheet", "url": "sprites/archivist.png", "frameWidth": 64, "frameHeight": 64, "portraitUrl": "portraits/archivist.png"},
    {"id": "candle", "kind": "image"}
  ],
  "props": [
    {"id": "bookshelf", "path": "props/bookshelf.png"},
    {"id": "lectern"}
  ],
  "outfits": [
    {"id": "scholar-robe", "slot": "torso"}
  ]
}`

const deckFixture = `{
  "schemaVersion": 1,
  "cards": [
    {"front": "aqua", "back": "water"},
    {"front": "ignis", "back": "fire"}
  ]
}`

type memorySource struct {
	mu    sync.Mutex
	data  []byte
	err   error
	loads int
}

func (s *memorySource) Load(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return s.data, nil
}

func (s *memorySource) Path() string {
	return "memory://manifest"
}

func (s *memorySource) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

type memoryFetcher struct {
	mu      sync.Mutex
	files   map[string][]byte
	errs    map[string]error
	fetches map[string]int
}

func newMemoryFetcher() *memoryFetcher {
	return &memoryFetcher{
		files:   make(map[string][]byte),
		errs:    make(map[string]error),
		fetches: make(map[string]int),
	}
}

func (f *memoryFetcher) Fetch(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[path]++
	if err := f.errs[path]; err != nil {
		return nil, err
	}
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("memory fetcher: no file %s", path)
	}
	return data, nil
}

func (f *memoryFetcher) fetchCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[path]
}

func (f *memoryFetcher) set(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = data
	delete(f.errs, path)
}

func (f *memoryFetcher) fail(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[path] = err
}

func newTestLoader(t *testing.T) (*Loader, *memorySource, *memoryFetcher) {
	t.Helper()
	src := &memorySource{data: []byte(manifestFixture)}
	fetch := newMemoryFetcher()
	fetch.set("decks/latin-basics.json", []byte(deckFixture))
	fetch.set("stories/archivist-intro.json", []byte(`{"knots": {"intro": []}}`))
	return New(src, WithFetcher(fetch)), src, fetch
}

func TestManifestFetchedOncePerProcess(t *testing.T) {
	loader, src, _ := newTestLoader(t)
	ctx := context.Background()

	first, err := loader.Manifest(ctx)
	if err != nil {
		t.Fatalf("expected manifest load to succeed, got %v", err)
	}
	second, err := loader.Manifest(ctx)
	if err != nil {
		t.Fatalf("expected second manifest load to succeed, got %v", err)
	}
	if first != second {
		t.Fatalf("expected both calls to return the shared manifest")
	}
	if got := src.loadCount(); got != 1 {
		t.Fatalf("expected exactly one source load, got %d", got)
	}
	if first.BuildID != "build-7" {
		t.Fatalf("expected buildId build-7, got %q", first.BuildID)
	}
	if got := first.Len(); got != 9 {
		t.Fatalf("expected 9 manifest entries, got %d", got)
	}
}

func TestManifestFetchFailureDoesNotPoisonCache(t *testing.T) {
	src := &memorySource{err: errors.New("network down")}
	loader := New(src)
	ctx := context.Background()

	if _, err := loader.Manifest(ctx); err == nil {
		t.Fatalf("expected manifest load to fail")
	}

	src.mu.Lock()
	src.err = nil
	src.data = []byte(manifestFixture)
	src.mu.Unlock()

	manifest, err := loader.Manifest(ctx)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if manifest.BuildID != "build-7" {
		t.Fatalf("expected retried manifest, got buildId %q", manifest.BuildID)
	}
	if got := src.loadCount(); got != 2 {
		t.Fatalf("expected two source loads, got %d", got)
	}
}

func TestTypedAccessorsLookUpLoadedManifest(t *testing.T) {
	loader, src, _ := newTestLoader(t)
	ctx := context.Background()
	if _, err := loader.Manifest(ctx); err != nil {
		t.Fatalf("manifest load failed: %v", err)
	}

	room, ok := loader.Room("library")
	if !ok {
		t.Fatalf("expected room library to resolve")
	}
	if room.RoomDataURL != "levels/library.json" {
		t.Fatalf("unexpected room url %q", room.RoomDataURL)
	}
	again, ok := loader.Room("library")
	if !ok {
		t.Fatalf("expected second lookup to resolve")
	}
	if again.ID != room.ID || again.RoomDataURL != room.RoomDataURL {
		t.Fatalf("expected structurally equal results, got %+v vs %+v", room, again)
	}
	if got := src.loadCount(); got != 1 {
		t.Fatalf("expected lookups to avoid refetching, got %d loads", got)
	}

	pack, ok := loader.FlashcardPack("latin-basics")
	if !ok || pack.Count != 2 {
		t.Fatalf("expected latin-basics pack with count 2, got %+v ok=%v", pack, ok)
	}
	story, ok := loader.DialogueStory("archivist-intro")
	if !ok || story.URL != "stories/archivist-intro.json" {
		t.Fatalf("expected archivist-intro story, got %+v ok=%v", story, ok)
	}
	sprite, ok := loader.Sprite("archivist")
	if !ok || sprite.Kind != SpriteSheet {
		t.Fatalf("expected spritesheet archivist, got %+v ok=%v", sprite, ok)
	}
	if sprite.PortraitURL != "portraits/archivist.png" {
		t.Fatalf("unexpected portrait url %q", sprite.PortraitURL)
	}
	prop, ok := loader.Prop("lectern")
	if !ok || prop.Path != "" {
		t.Fatalf("expected lectern prop without path, got %+v ok=%v", prop, ok)
	}
	outfit, ok := loader.Outfit("scholar-robe")
	if !ok || outfit.Slot != "torso" {
		t.Fatalf("expected scholar-robe outfit, got %+v ok=%v", outfit, ok)
	}
}

func TestTypedAccessorsReturnAbsenceForUnknownIDs(t *testing.T) {
	loader, _, _ := newTestLoader(t)

	// Before the manifest is loaded every lookup is an absence, not an error.
	if _, ok := loader.Room("library"); ok {
		t.Fatalf("expected lookup before manifest load to miss")
	}

	if _, err := loader.Manifest(context.Background()); err != nil {
		t.Fatalf("manifest load failed: %v", err)
	}
	if _, ok := loader.Room("vault"); ok {
		t.Fatalf("expected unknown room to miss")
	}
	if _, ok := loader.FlashcardPack("geometry"); ok {
		t.Fatalf("expected unknown pack to miss")
	}
	if _, ok := loader.DialogueStory("ghost"); ok {
		t.Fatalf("expected unknown story to miss")
	}
}

func TestAccessorClonesDoNotAliasManifest(t *testing.T) {
	loader, _, _ := newTestLoader(t)
	if _, err := loader.Manifest(context.Background()); err != nil {
		t.Fatalf("manifest load failed: %v", err)
	}

	room, _ := loader.Room("library")
	if len(room.Spawns) != 2 {
		t.Fatalf("expected 2 advertised spawns, got %d", len(room.Spawns))
	}
	room.Spawns[0] = "mutated"

	again, _ := loader.Room("library")
	if again.Spawns[0] != "main" {
		t.Fatalf("expected cached manifest to be unaffected by caller mutation, got %q", again.Spawns[0])
	}
}

func TestLoadFlashcardDeckCachesByPackID(t *testing.T) {
	loader, _, fetch := newTestLoader(t)
	ctx := context.Background()

	first, err := loader.LoadFlashcardDeck(ctx, "latin-basics")
	if err != nil {
		t.Fatalf("expected deck load to succeed, got %v", err)
	}
	if len(first.Cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(first.Cards))
	}
	second, err := loader.LoadFlashcardDeck(ctx, "latin-basics")
	if err != nil {
		t.Fatalf("expected cached deck load to succeed, got %v", err)
	}
	if first != second {
		t.Fatalf("expected cached deck to be returned")
	}
	if got := fetch.fetchCount("decks/latin-basics.json"); got != 1 {
		t.Fatalf("expected exactly one deck fetch, got %d", got)
	}
}

func TestLoadFlashcardDeckUnknownPack(t *testing.T) {
	loader, _, _ := newTestLoader(t)

	_, err := loader.LoadFlashcardDeck(context.Background(), "geometry")
	if err == nil {
		t.Fatalf("expected unknown pack to fail")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadFlashcardDeckFailureLeavesCacheClean(t *testing.T) {
	loader, _, fetch := newTestLoader(t)
	ctx := context.Background()
	fetch.fail("decks/latin-basics.json", errors.New("gateway timeout"))

	if _, err := loader.LoadFlashcardDeck(ctx, "latin-basics"); err == nil {
		t.Fatalf("expected deck load to fail")
	}

	fetch.set("decks/latin-basics.json", []byte(deckFixture))
	deck, err := loader.LoadFlashcardDeck(ctx, "latin-basics")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(deck.Cards) != 2 {
		t.Fatalf("expected retried deck with 2 cards, got %d", len(deck.Cards))
	}
	if got := fetch.fetchCount("decks/latin-basics.json"); got != 2 {
		t.Fatalf("expected failed fetch plus retry, got %d fetches", got)
	}
}

func TestLoadFlashcardDeckReportsCountMismatch(t *testing.T) {
	src := &memorySource{data: []byte(manifestFixture)}
	fetch := newMemoryFetcher()
	fetch.set("decks/latin-basics.json", []byte(`{"cards": [{"front": "aqua", "back": "water"}]}`))

	var mu sync.Mutex
	var events []logging.Event
	pub := logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})

	loader := New(src, WithFetcher(fetch), WithPublisher(pub))
	deck, err := loader.LoadFlashcardDeck(context.Background(), "latin-basics")
	if err != nil {
		t.Fatalf("expected mismatched deck to still load, got %v", err)
	}
	if len(deck.Cards) != 1 {
		t.Fatalf("expected 1 card, got %d", len(deck.Cards))
	}
	if deck.SchemaVersion != 1 {
		t.Fatalf("expected schema version inherited from manifest, got %d", deck.SchemaVersion)
	}

	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, event := range events {
		if event.Type == "content.deck_mismatch" {
			found = true
			if event.Severity != logging.SeverityWarn {
				t.Fatalf("expected warn severity, got %d", event.Severity)
			}
		}
	}
	if !found {
		t.Fatalf("expected a deck mismatch event, got %d events", len(events))
	}
}

func TestLoadDialogueStoryCachesAndCopies(t *testing.T) {
	loader, _, fetch := newTestLoader(t)
	ctx := context.Background()

	first, err := loader.LoadDialogueStory(ctx, "archivist-intro")
	if err != nil {
		t.Fatalf("expected story load to succeed, got %v", err)
	}
	if !json.Valid(first) {
		t.Fatalf("expected valid json story payload")
	}

	// Mutating the returned bytes must not corrupt the cache.
	for i := range first {
		first[i] = 'x'
	}

	second, err := loader.LoadDialogueStory(ctx, "archivist-intro")
	if err != nil {
		t.Fatalf("expected cached story load to succeed, got %v", err)
	}
	if !json.Valid(second) {
		t.Fatalf("expected cache to be unaffected by caller mutation")
	}
	if got := fetch.fetchCount("stories/archivist-intro.json"); got != 1 {
		t.Fatalf("expected exactly one story fetch, got %d", got)
	}
}

func TestLoadDialogueStoryRejectsInvalidJSON(t *testing.T) {
	loader, _, fetch := newTestLoader(t)
	fetch.set("stories/archivist-intro.json", []byte("not json"))

	if _, err := loader.LoadDialogueStory(context.Background(), "archivist-intro"); err == nil {
		t.Fatalf("expected invalid story payload to fail")
	}
}

func TestClearContentCacheDropsSecondaryCachesOnly(t *testing.T) {
	loader, src, fetch := newTestLoader(t)
	ctx := context.Background()

	if _, err := loader.LoadFlashcardDeck(ctx, "latin-basics"); err != nil {
		t.Fatalf("deck load failed: %v", err)
	}
	if _, err := loader.LoadDialogueStory(ctx, "archivist-intro"); err != nil {
		t.Fatalf("story load failed: %v", err)
	}

	loader.ClearContentCache()

	if _, err := loader.LoadFlashcardDeck(ctx, "latin-basics"); err != nil {
		t.Fatalf("deck reload failed: %v", err)
	}
	if got := fetch.fetchCount("decks/latin-basics.json"); got != 2 {
		t.Fatalf("expected deck refetch after clear, got %d fetches", got)
	}
	if got := src.loadCount(); got != 1 {
		t.Fatalf("expected manifest to survive cache clear, got %d loads", got)
	}
}

func TestReloadSwapsManifestAndDropsSecondaryCaches(t *testing.T) {
	loader, src, fetch := newTestLoader(t)
	ctx := context.Background()

	if _, err := loader.LoadFlashcardDeck(ctx, "latin-basics"); err != nil {
		t.Fatalf("deck load failed: %v", err)
	}

	src.mu.Lock()
	src.data = []byte(`{"buildId": "build-8", "rooms": [{"id": "library", "roomDataUrl": "levels/library.json"}]}`)
	src.mu.Unlock()

	if err := loader.Reload(ctx); err != nil {
		t.Fatalf("expected reload to succeed, got %v", err)
	}
	if got := loader.BuildID(); got != "build-8" {
		t.Fatalf("expected buildId build-8 after reload, got %q", got)
	}
	if _, ok := loader.FlashcardPack("latin-basics"); ok {
		t.Fatalf("expected dropped pack to miss after reload")
	}

	// The deck cache was dropped with the old manifest.
	if _, err := loader.LoadFlashcardDeck(ctx, "latin-basics"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after manifest swap, got %v", err)
	}
	if got := fetch.fetchCount("decks/latin-basics.json"); got != 1 {
		t.Fatalf("expected no deck refetch for dropped pack, got %d", got)
	}
}

func TestReloadFailureKeepsPreviousManifest(t *testing.T) {
	loader, src, _ := newTestLoader(t)
	ctx := context.Background()

	if _, err := loader.Manifest(ctx); err != nil {
		t.Fatalf("manifest load failed: %v", err)
	}

	src.mu.Lock()
	src.err = errors.New("network down")
	src.mu.Unlock()

	if err := loader.Reload(ctx); err == nil {
		t.Fatalf("expected reload to fail")
	}
	if got := loader.BuildID(); got != "build-7" {
		t.Fatalf("expected previous manifest to keep serving, got buildId %q", got)
	}
	if _, ok := loader.Room("library"); !ok {
		t.Fatalf("expected previous manifest lookups to keep working")
	}
}

func TestBuildIDBeforeManifestLoad(t *testing.T) {
	loader, _, _ := newTestLoader(t)
	if got := loader.BuildID(); got != "" {
		t.Fatalf("expected empty buildId before manifest load, got %q", got)
	}
}

func TestHTTPSourceAndFetcher(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/content/manifest.json", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, manifestFixture)
	})
	mux.HandleFunc("/content/decks/latin-basics.json", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, deckFixture)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fetch, err := HTTPFetcher(server.Client(), server.URL+"/content/")
	if err != nil {
		t.Fatalf("fetcher construction failed: %v", err)
	}
	loader := New(HTTPSource(server.Client(), server.URL+"/content/manifest.json"), WithFetcher(fetch))

	ctx := context.Background()
	if _, err := loader.Manifest(ctx); err != nil {
		t.Fatalf("manifest load over http failed: %v", err)
	}
	deck, err := loader.LoadFlashcardDeck(ctx, "latin-basics")
	if err != nil {
		t.Fatalf("deck load over http failed: %v", err)
	}
	if len(deck.Cards) != 2 {
		t.Fatalf("expected 2 cards over http, got %d", len(deck.Cards))
	}
}

func TestHTTPSourceRejectsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	loader := New(HTTPSource(server.Client(), server.URL))
	if _, err := loader.Manifest(context.Background()); err == nil {
		t.Fatalf("expected non-200 manifest fetch to fail")
	}
}
