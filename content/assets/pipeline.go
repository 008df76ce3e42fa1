package assets

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"lorehall/server/content/registry"
	"lorehall/server/internal/telemetry"
	"lorehall/server/logging"
	loggingassets "lorehall/server/logging/assets"
)

// Fetcher retrieves one resolved resource. What fetching means belongs to
// the implementation: an HTTP download, a texture upload, a cache warm.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) error
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context, req Request) error

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// AnimationRegistrar receives directional animation sets for freshly
// fetched sheet sprites. The pipeline calls it at most once per sheet key.
type AnimationRegistrar interface {
	RegisterAnimations(set AnimationSet)
}

// AnimationRegistrarFunc adapts a plain function to AnimationRegistrar.
type AnimationRegistrarFunc func(set AnimationSet)

// RegisterAnimations implements AnimationRegistrar.
func (f AnimationRegistrarFunc) RegisterAnimations(set AnimationSet) {
	f(set)
}

// Option adjusts pipeline construction.
type Option func(*Pipeline)

// WithPublisher routes pipeline diagnostics through the given publisher.
func WithPublisher(pub logging.Publisher) Option {
	return func(p *Pipeline) {
		p.pub = pub
	}
}

// WithMetrics wires batch and fetch counters.
func WithMetrics(metrics telemetry.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = metrics
	}
}

// WithAnimationRegistrar wires the sink for sheet animation sets.
func WithAnimationRegistrar(anims AnimationRegistrar) Option {
	return func(p *Pipeline) {
		p.anims = anims
	}
}

// Pipeline resolves sprite and prop identifiers against the registry and
// fetches the ones not already present. Batches on the same pipeline are
// serialized: a second batch never starts resolving before the previous
// one's fetches have settled. Failed fetches stay absent and are retried
// on the next batch that names them.
type Pipeline struct {
	reg     *registry.Loader
	fetch   Fetcher
	anims   AnimationRegistrar
	pub     logging.Publisher
	metrics telemetry.Metrics

	// batchMu serializes whole batches, mu guards the indexes.
	batchMu sync.Mutex
	mu      sync.Mutex

	present  map[string]struct{}
	animated map[string]struct{}
}

// NewPipeline builds a pipeline over the given registry and fetcher.
func NewPipeline(reg *registry.Loader, fetch Fetcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		reg:      reg,
		fetch:    fetch,
		present:  make(map[string]struct{}),
		animated: make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// QueueSprites fetches the named sprites that are not yet present. Sheet
// sprites with a portrait URL queue the portrait alongside the sheet, and
// freshly fetched sheets get their directional animations registered once.
func (p *Pipeline) QueueSprites(ctx context.Context, ids ...string) error {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()

	manifest, err := p.reg.Manifest(ctx)
	if err != nil {
		return fmt.Errorf("assets: sprite batch: %w", err)
	}
	buildID := manifest.BuildID

	var requests []Request
	sheets := make(map[string]registry.Sprite)
	for _, id := range ids {
		sprite, ok := p.reg.Sprite(id)
		if !ok {
			// No registry entry. The deterministic default path still
			// names a fetchable image.
			sprite = registry.Sprite{ID: id, Kind: registry.SpriteImage}
		}
		sheet := sprite.Kind == registry.SpriteSheet
		requests = append(requests, Request{
			Key:         spriteKey(id),
			ID:          id,
			Kind:        ResourceSprite,
			URL:         ResolveSpriteURL(sprite, buildID),
			Sheet:       sheet,
			FrameWidth:  sprite.FrameWidth,
			FrameHeight: sprite.FrameHeight,
		})
		if sheet {
			sheets[id] = sprite
			if portrait := ResolvePortraitURL(sprite, buildID); portrait != "" {
				requests = append(requests, Request{
					Key:  portraitKey(id),
					ID:   id,
					Kind: ResourcePortrait,
					URL:  portrait,
				})
			}
		}
	}

	fetched, failures := p.settle(ctx, "sprites", len(ids), requests)

	var sets int
	for _, req := range fetched {
		if req.Kind != ResourceSprite || !req.Sheet {
			continue
		}
		if p.markAnimated(req.ID) {
			if p.anims != nil {
				p.anims.RegisterAnimations(AnimationSetFor(sheets[req.ID]))
			}
			sets++
		}
	}
	if sets > 0 {
		p.count("assets_animation_sets", uint64(sets))
		loggingassets.AnimationsRegistered(ctx, p.pub, batchRef("sprites"), loggingassets.AnimationsRegisteredPayload{Sets: sets}, nil)
	}
	return errors.Join(failures...)
}

// QueueProps fetches the named props that are not yet present.
func (p *Pipeline) QueueProps(ctx context.Context, ids ...string) error {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()

	manifest, err := p.reg.Manifest(ctx)
	if err != nil {
		return fmt.Errorf("assets: prop batch: %w", err)
	}
	buildID := manifest.BuildID

	var requests []Request
	for _, id := range ids {
		prop, ok := p.reg.Prop(id)
		if !ok {
			prop = registry.Prop{ID: id}
		}
		requests = append(requests, Request{
			Key:  propKey(id),
			ID:   id,
			Kind: ResourceProp,
			URL:  ResolvePropURL(prop, buildID),
		})
	}

	_, failures := p.settle(ctx, "props", len(ids), requests)
	return errors.Join(failures...)
}

// settle filters out present requests, fetches the rest in order, and
// publishes the batch summary. Only successful fetches become present.
func (p *Pipeline) settle(ctx context.Context, kind string, requested int, requests []Request) ([]Request, []error) {
	var pending []Request
	skipped := 0
	p.mu.Lock()
	for _, req := range requests {
		if _, ok := p.present[req.Key]; ok {
			skipped++
			continue
		}
		pending = append(pending, req)
	}
	p.mu.Unlock()

	var fetched []Request
	var failures []error
	for _, req := range pending {
		if err := p.fetch.Fetch(ctx, req); err != nil {
			failures = append(failures, fmt.Errorf("assets: fetch %s: %w", req.URL, err))
			p.count("assets_fetch_failures", 1)
			loggingassets.FetchFailed(ctx, p.pub, resourceRef(req), loggingassets.FetchFailedPayload{
				URL:    req.URL,
				Reason: err.Error(),
			}, nil)
			continue
		}
		p.mu.Lock()
		p.present[req.Key] = struct{}{}
		p.mu.Unlock()
		fetched = append(fetched, req)
	}

	p.count("assets_batches", 1)
	p.count("assets_fetches", uint64(len(fetched)))
	loggingassets.BatchSettled(ctx, p.pub, batchRef(kind), loggingassets.BatchSettledPayload{
		Kind:      kind,
		Requested: requested,
		Fetched:   len(fetched),
		Skipped:   skipped,
		Failed:    len(failures),
	}, nil)
	return fetched, failures
}

// markAnimated records the key and reports whether it was new.
func (p *Pipeline) markAnimated(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.animated[id]; ok {
		return false
	}
	p.animated[id] = struct{}{}
	return true
}

// HasSprite reports whether the sprite has been fetched.
func (p *Pipeline) HasSprite(id string) bool {
	return p.has(spriteKey(id))
}

// HasProp reports whether the prop has been fetched.
func (p *Pipeline) HasProp(id string) bool {
	return p.has(propKey(id))
}

// HasPortrait reports whether the sprite's portrait has been fetched.
func (p *Pipeline) HasPortrait(id string) bool {
	return p.has(portraitKey(id))
}

func (p *Pipeline) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.present[key]
	return ok
}

// PresenceCount returns the number of fetched resources.
func (p *Pipeline) PresenceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.present)
}

// ClearPresence flushes the presence index so the next batch refetches
// everything it names. Registered animations stay registered; the
// registrar owns that lifetime.
func (p *Pipeline) ClearPresence(ctx context.Context) {
	p.mu.Lock()
	dropped := len(p.present)
	clear(p.present)
	p.mu.Unlock()

	p.count("assets_presence_clears", 1)
	loggingassets.PresenceCleared(ctx, p.pub, batchRef("presence"), loggingassets.PresenceClearedPayload{Dropped: dropped}, nil)
}

func (p *Pipeline) count(key string, delta uint64) {
	if p.metrics == nil {
		return
	}
	p.metrics.Add(key, delta)
}

func batchRef(id string) logging.ContentRef {
	return logging.ContentRef{ID: id, Kind: logging.ContentKindBatch}
}

func resourceRef(req Request) logging.ContentRef {
	kind := logging.ContentKindSprite
	if req.Kind == ResourceProp {
		kind = logging.ContentKindProp
	}
	return logging.ContentRef{ID: req.ID, Kind: kind}
}
