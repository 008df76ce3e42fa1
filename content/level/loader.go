package level

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"lorehall/server/content/registry"
	"lorehall/server/internal/telemetry"
	"lorehall/server/logging"
	loggingcontent "lorehall/server/logging/content"
)

// Fetcher retrieves compiled level documents by path or URL.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Option configures a Loader.
type Option func(*Loader)

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

// Loader resolves room IDs through the registry, fetches compiled level
// documents, validates them, and memoizes the result by level ID. A failed
// fetch or a rejected document leaves no cache entry.
type Loader struct {
	reg     *registry.Loader
	fetch   Fetcher
	pub     logging.Publisher
	metrics telemetry.Metrics

	mu     sync.RWMutex
	levels map[string]*CompiledLevel
}

// NewLoader constructs a level Loader on top of a registry Loader and a
// document fetcher.
func NewLoader(reg *registry.Loader, fetch Fetcher, opts ...Option) *Loader {
	l := &Loader{
		reg:    reg,
		fetch:  fetch,
		levels: make(map[string]*CompiledLevel),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the compiled level for a room ID, fetching and validating it
// on first use. Subsequent calls return the cached level without refetching.
func (l *Loader) Load(ctx context.Context, levelID string) (*CompiledLevel, error) {
	if l == nil {
		return nil, fmt.Errorf("level: nil loader")
	}
	l.mu.RLock()
	cached, ok := l.levels[levelID]
	l.mu.RUnlock()
	if ok {
		l.count("level_cache_hits", 1)
		return cached, nil
	}
	l.count("level_cache_misses", 1)

	if _, err := l.reg.Manifest(ctx); err != nil {
		return nil, err
	}
	room, ok := l.reg.Room(levelID)
	if !ok {
		return nil, fmt.Errorf("level: room %q: %w", levelID, registry.ErrNotFound)
	}

	ref := logging.ContentRef{ID: levelID, Kind: logging.ContentKindLevel}
	data, err := l.fetch.Fetch(ctx, room.RoomDataURL)
	if err != nil {
		return nil, fmt.Errorf("level: failed loading %q from %s: %w", levelID, room.RoomDataURL, err)
	}
	compiled, err := decodeLevel(data)
	if err != nil {
		return nil, fmt.Errorf("level: failed parsing %q: %w", levelID, err)
	}
	if compiled.ID == "" {
		compiled.ID = levelID
	} else if compiled.ID != levelID {
		err := schemaErr(levelID, "document id %q does not match room id", compiled.ID)
		l.publishRejected(ctx, ref, err)
		return nil, err
	}
	if err := Validate(compiled); err != nil {
		l.publishRejected(ctx, ref, err)
		return nil, err
	}

	l.mu.Lock()
	if existing, ok := l.levels[levelID]; ok {
		compiled = existing
	} else {
		l.levels[levelID] = compiled
	}
	l.mu.Unlock()

	loggingcontent.LevelLoaded(ctx, l.pub, ref, loggingcontent.LevelLoadedPayload{
		Width:    compiled.Width,
		Height:   compiled.Height,
		Layers:   4,
		Entities: len(compiled.Entities),
		Tilesets: len(compiled.Tilesets),
	}, nil)
	return compiled, nil
}

func (l *Loader) publishRejected(ctx context.Context, ref logging.ContentRef, err error) {
	loggingcontent.LevelRejected(ctx, l.pub, ref, loggingcontent.LevelRejectedPayload{
		Reason: err.Error(),
	}, nil)
}

// Cached reports whether a level is already memoized, without loading it.
func (l *Loader) Cached(levelID string) bool {
	if l == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.levels[levelID]
	return ok
}

// CachedCount reports how many levels are memoized.
func (l *Loader) CachedCount() int {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.levels)
}

// Evict drops a single cached level so the next Load refetches it.
func (l *Loader) Evict(levelID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	_, ok := l.levels[levelID]
	delete(l.levels, levelID)
	l.mu.Unlock()
	if ok {
		loggingcontent.CacheCleared(context.Background(), l.pub, logging.ContentRef{ID: levelID, Kind: logging.ContentKindLevel}, loggingcontent.CacheClearedPayload{
			Scope:   "level",
			Evicted: 1,
		}, nil)
	}
}

// ClearAll drops every cached level.
func (l *Loader) ClearAll() {
	if l == nil {
		return
	}
	l.mu.Lock()
	evicted := len(l.levels)
	l.levels = make(map[string]*CompiledLevel)
	l.mu.Unlock()
	loggingcontent.CacheCleared(context.Background(), l.pub, logging.ContentRef{ID: "levels", Kind: logging.ContentKindLevel}, loggingcontent.CacheClearedPayload{
		Scope:   "levels",
		Evicted: evicted,
	}, nil)
}

// IsSchemaViolation reports whether err carries a schema violation.
func IsSchemaViolation(err error) bool {
	var schema *SchemaError
	return errors.As(err, &schema)
}

func (l *Loader) count(key string, delta uint64) {
	if l.metrics == nil {
		return
	}
	l.metrics.Add(key, delta)
}
