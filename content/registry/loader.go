package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"lorehall/server/internal/telemetry"
	"lorehall/server/logging"
	loggingcontent "lorehall/server/logging/content"
)

// ErrNotFound marks load operations addressing an identifier absent from the
// manifest. Pure accessors signal absence with a boolean instead.
var ErrNotFound = errors.New("registry: not found")

// Option configures a Loader.
type Option func(*Loader)

// WithFetcher overrides the transport used for secondary resources.
func WithFetcher(fetch Fetcher) Option {
	return func(l *Loader) {
		if fetch != nil {
			l.fetch = fetch
		}
	}
}

// WithPublisher attaches a structured event publisher.
func WithPublisher(pub logging.Publisher) Option {
	return func(l *Loader) {
		l.pub = pub
	}
}

// WithMetrics attaches pipeline counters.
func WithMetrics(metrics telemetry.Metrics) Option {
	return func(l *Loader) {
		l.metrics = metrics
	}
}

// Loader fetches the content manifest once and serves typed lookups against
// it. Secondary payloads (decks, stories) are fetched lazily and cached by
// identifier. All methods are safe for concurrent use.
type Loader struct {
	src     Source
	fetch   Fetcher
	pub     logging.Publisher
	metrics telemetry.Metrics

	loadMu sync.Mutex

	mu       sync.RWMutex
	manifest *Manifest
	decks    map[string]*Deck
	stories  map[string]json.RawMessage
}

// New constructs a Loader reading the manifest from src. Secondary resources
// resolve through the local filesystem unless WithFetcher overrides it.
func New(src Source, opts ...Option) *Loader {
	l := &Loader{
		src:     src,
		fetch:   FileFetcher(""),
		decks:   make(map[string]*Deck),
		stories: make(map[string]json.RawMessage),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Manifest returns the parsed manifest, fetching it on first use. Concurrent
// callers share a single fetch; a failed fetch leaves no cached state, so a
// later call retries.
func (l *Loader) Manifest(ctx context.Context) (*Manifest, error) {
	if l == nil {
		return nil, fmt.Errorf("registry: nil loader")
	}
	if m := l.cachedManifest(); m != nil {
		return m, nil
	}

	l.loadMu.Lock()
	defer l.loadMu.Unlock()
	if m := l.cachedManifest(); m != nil {
		return m, nil
	}

	m, err := l.fetchManifest(ctx)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.manifest = m
	l.mu.Unlock()
	return m, nil
}

// Reload refetches the manifest and drops every secondary cache. The previous
// manifest keeps serving if the refetch fails.
func (l *Loader) Reload(ctx context.Context) error {
	if l == nil {
		return fmt.Errorf("registry: nil loader")
	}
	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	m, err := l.fetchManifest(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.manifest = m
	evicted := len(l.decks) + len(l.stories)
	l.decks = make(map[string]*Deck)
	l.stories = make(map[string]json.RawMessage)
	l.mu.Unlock()

	if evicted > 0 {
		loggingcontent.CacheCleared(ctx, l.pub, l.manifestRef(), loggingcontent.CacheClearedPayload{
			Scope:   "secondary",
			Evicted: evicted,
		}, nil)
	}
	return nil
}

func (l *Loader) fetchManifest(ctx context.Context) (*Manifest, error) {
	data, err := l.src.Load(ctx)
	if err != nil {
		loggingcontent.ManifestLoadFailed(ctx, l.pub, l.manifestRef(), loggingcontent.ManifestLoadFailedPayload{
			Source: l.src.Path(),
			Reason: err.Error(),
		}, nil)
		return nil, fmt.Errorf("registry: failed loading manifest %s: %w", l.src.Path(), err)
	}
	m, err := decodeManifest(data)
	if err != nil {
		loggingcontent.ManifestLoadFailed(ctx, l.pub, l.manifestRef(), loggingcontent.ManifestLoadFailedPayload{
			Source: l.src.Path(),
			Reason: err.Error(),
		}, nil)
		return nil, fmt.Errorf("registry: failed parsing manifest %s: %w", l.src.Path(), err)
	}
	l.count("registry_manifest_loads", 1)
	loggingcontent.ManifestLoaded(ctx, l.pub, l.manifestRef(), loggingcontent.ManifestLoadedPayload{
		BuildID: m.BuildID,
		Entries: m.Len(),
		Source:  l.src.Path(),
	}, nil)
	return m, nil
}

func (l *Loader) cachedManifest() *Manifest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.manifest
}

func (l *Loader) manifestRef() logging.ContentRef {
	return logging.ContentRef{ID: "manifest", Kind: logging.ContentKindManifest}
}

func (l *Loader) count(key string, delta uint64) {
	if l.metrics == nil {
		return
	}
	l.metrics.Add(key, delta)
}

// Snapshot returns the cached manifest without triggering a fetch, or nil
// when nothing has been loaded yet.
func (l *Loader) Snapshot() *Manifest {
	if l == nil {
		return nil
	}
	return l.cachedManifest()
}

// BuildID returns the manifest's build token, or "" before the manifest is
// loaded or when the manifest does not set one.
func (l *Loader) BuildID() string {
	if l == nil {
		return ""
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.manifest == nil {
		return ""
	}
	return l.manifest.BuildID
}

// Room looks up a room entry. Absence is reported with false, never an error.
func (l *Loader) Room(id string) (Room, bool) {
	if l == nil {
		return Room{}, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.manifest == nil {
		return Room{}, false
	}
	room, ok := l.manifest.Rooms[id]
	if !ok {
		return Room{}, false
	}
	room.Spawns = cloneStrings(room.Spawns)
	return room, true
}

// FlashcardPack looks up a flashcard pack entry.
func (l *Loader) FlashcardPack(id string) (FlashcardPack, bool) {
	if l == nil {
		return FlashcardPack{}, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.manifest == nil {
		return FlashcardPack{}, false
	}
	pack, ok := l.manifest.FlashcardPacks[id]
	if !ok {
		return FlashcardPack{}, false
	}
	pack.Subjects = cloneStrings(pack.Subjects)
	return pack, true
}

// DialogueStory looks up a dialogue story entry.
func (l *Loader) DialogueStory(id string) (DialogueStory, bool) {
	if l == nil {
		return DialogueStory{}, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.manifest == nil {
		return DialogueStory{}, false
	}
	story, ok := l.manifest.DialogueStories[id]
	return story, ok
}

// Sprite looks up a sprite entry.
func (l *Loader) Sprite(id string) (Sprite, bool) {
	if l == nil {
		return Sprite{}, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.manifest == nil {
		return Sprite{}, false
	}
	sprite, ok := l.manifest.Sprites[id]
	return sprite, ok
}

// Prop looks up a prop entry.
func (l *Loader) Prop(id string) (Prop, bool) {
	if l == nil {
		return Prop{}, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.manifest == nil {
		return Prop{}, false
	}
	prop, ok := l.manifest.Props[id]
	return prop, ok
}

// Outfit looks up an outfit entry.
func (l *Loader) Outfit(id string) (Outfit, bool) {
	if l == nil {
		return Outfit{}, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.manifest == nil {
		return Outfit{}, false
	}
	outfit, ok := l.manifest.Outfits[id]
	return outfit, ok
}

// LoadFlashcardDeck fetches and caches the deck payload for a pack. Repeated
// calls return the cached deck without refetching. Count and hash mismatches
// against the manifest entry are reported as warnings, not failures.
func (l *Loader) LoadFlashcardDeck(ctx context.Context, packID string) (*Deck, error) {
	if l == nil {
		return nil, fmt.Errorf("registry: nil loader")
	}
	m, err := l.Manifest(ctx)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	cached, ok := l.decks[packID]
	l.mu.RUnlock()
	if ok {
		l.count("registry_deck_cache_hits", 1)
		return cached, nil
	}

	pack, ok := m.FlashcardPacks[packID]
	if !ok {
		return nil, fmt.Errorf("registry: flashcard pack %q: %w", packID, ErrNotFound)
	}

	data, err := l.fetch.Fetch(ctx, pack.URL)
	if err != nil {
		return nil, fmt.Errorf("registry: failed loading deck %q from %s: %w", packID, pack.URL, err)
	}
	deck, err := decodeDeck(data)
	if err != nil {
		return nil, fmt.Errorf("registry: failed parsing deck %q: %w", packID, err)
	}
	if deck.SchemaVersion == 0 {
		deck.SchemaVersion = pack.SchemaVersion
	}

	ref := logging.ContentRef{ID: packID, Kind: logging.ContentKindDeck}
	gotHash := ""
	if pack.ContentHash != "" {
		sum := sha256.Sum256(data)
		gotHash = hex.EncodeToString(sum[:])
	}
	if (pack.Count > 0 && pack.Count != len(deck.Cards)) || (pack.ContentHash != "" && !hashEqual(pack.ContentHash, gotHash)) {
		loggingcontent.DeckMismatch(ctx, l.pub, ref, loggingcontent.DeckMismatchPayload{
			WantCards: pack.Count,
			GotCards:  len(deck.Cards),
			WantHash:  pack.ContentHash,
			GotHash:   gotHash,
		}, nil)
	}

	l.mu.Lock()
	if existing, ok := l.decks[packID]; ok {
		deck = existing
	} else {
		l.decks[packID] = deck
	}
	l.mu.Unlock()

	l.count("registry_deck_fetches", 1)
	loggingcontent.DeckLoaded(ctx, l.pub, ref, loggingcontent.DeckLoadedPayload{
		Cards:       len(deck.Cards),
		ContentHash: pack.ContentHash,
	}, nil)
	return deck, nil
}

// LoadDialogueStory fetches and caches the opaque story payload for a story
// entry. The returned bytes are a copy; callers may retain them.
func (l *Loader) LoadDialogueStory(ctx context.Context, storyID string) (json.RawMessage, error) {
	if l == nil {
		return nil, fmt.Errorf("registry: nil loader")
	}
	m, err := l.Manifest(ctx)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	cached, ok := l.stories[storyID]
	l.mu.RUnlock()
	if ok {
		l.count("registry_story_cache_hits", 1)
		return cloneRaw(cached), nil
	}

	story, ok := m.DialogueStories[storyID]
	if !ok {
		return nil, fmt.Errorf("registry: dialogue story %q: %w", storyID, ErrNotFound)
	}

	data, err := l.fetch.Fetch(ctx, story.URL)
	if err != nil {
		return nil, fmt.Errorf("registry: failed loading story %q from %s: %w", storyID, story.URL, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("registry: failed parsing story %q: invalid json", storyID)
	}

	l.mu.Lock()
	if existing, ok := l.stories[storyID]; ok {
		data = existing
	} else {
		l.stories[storyID] = data
	}
	l.mu.Unlock()

	l.count("registry_story_fetches", 1)
	return cloneRaw(data), nil
}

// ClearContentCache drops every secondary cache while keeping the manifest.
// Used for test isolation and forced refresh.
func (l *Loader) ClearContentCache() {
	if l == nil {
		return
	}
	l.mu.Lock()
	evicted := len(l.decks) + len(l.stories)
	l.decks = make(map[string]*Deck)
	l.stories = make(map[string]json.RawMessage)
	l.mu.Unlock()

	loggingcontent.CacheCleared(context.Background(), l.pub, l.manifestRef(), loggingcontent.CacheClearedPayload{
		Scope:   "secondary",
		Evicted: evicted,
	}, nil)
}

func hashEqual(want, got string) bool {
	if want == "" {
		return true
	}
	return want == got
}

func cloneRaw(src json.RawMessage) json.RawMessage {
	if len(src) == 0 {
		return nil
	}
	copied := make(json.RawMessage, len(src))
	copy(copied, src)
	return copied
}
