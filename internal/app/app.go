package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"lorehall/server/content/assets"
	"lorehall/server/content/level"
	"lorehall/server/content/registry"
	"lorehall/server/content/spawn"
	"lorehall/server/internal/devwatch"
	servernet "lorehall/server/internal/net"
	"lorehall/server/internal/net/ws"
	"lorehall/server/internal/observability"
	"lorehall/server/internal/telemetry"
	"lorehall/server/logging"
	logginglifecycle "lorehall/server/logging/lifecycle"
	loggingsinks "lorehall/server/logging/sinks"
)

const shutdownGrace = 5 * time.Second

// watchSettle batches change events so one save touching several files
// produces a single reload broadcast.
const watchSettle = 250 * time.Millisecond

// runtime bundles the wired pipeline for the run loop and its helpers.
type runtime struct {
	cfg     Config
	logger  telemetry.Logger
	router  *logging.Router
	metrics *logging.Metrics

	registry *registry.Loader
	levels   *level.Loader
	spawner  *spawn.Spawner
	assets   *assets.Pipeline
	reload   *ws.Broadcaster
}

// Run wires the content pipeline over cfg.ContentDir and serves it until
// ctx is cancelled or the listener fails.
func Run(ctx context.Context, cfg Config) error {
	cfg = cfg.normalized()

	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	logCfg := cfg.loggingConfig()
	named, closeSinks, err := buildSinks(logCfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	router, err := logging.NewRouter(logging.SystemClock{}, logCfg, named)
	if err != nil {
		return fmt.Errorf("app: construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			logger.Printf("close logging router: %v", cerr)
		}
	}()

	rt := build(cfg, logger, router)

	if cfg.Preflight {
		if err := rt.preflight(ctx); err != nil {
			if cfg.StrictBoot {
				return fmt.Errorf("app: preflight: %w", err)
			}
			logger.Printf("preflight: %v", err)
		}
	}

	if cfg.DevMode {
		watcher, err := devwatch.NewWatcher([]string{cfg.ContentDir})
		if err != nil {
			return fmt.Errorf("app: content watcher: %w", err)
		}
		defer watcher.Close()
		go rt.watchContent(ctx, watcher)
	}

	return rt.serve(ctx)
}

// build constructs the pipeline components over the content directory.
func build(cfg Config, logger telemetry.Logger, router *logging.Router) *runtime {
	metrics := &logging.Metrics{}
	counters := telemetry.WrapMetrics(metrics)
	fetch := registry.FileFetcher(cfg.ContentDir)

	reg := registry.New(
		registry.FileSource(filepath.Join(cfg.ContentDir, cfg.ManifestFile)),
		registry.WithFetcher(fetch),
		registry.WithPublisher(router),
		registry.WithMetrics(counters),
	)
	levels := level.NewLoader(reg, fetch,
		level.WithPublisher(router),
		level.WithMetrics(counters),
	)
	spawner := spawn.NewSpawner(
		spawn.WithPublisher(router),
		spawn.WithMetrics(counters),
	)
	pipeline := assets.NewPipeline(reg, probeFetcher(cfg.ContentDir),
		assets.WithPublisher(router),
		assets.WithMetrics(counters),
	)
	reload := ws.NewBroadcaster(ws.BroadcasterConfig{
		Logger:    logger,
		Metrics:   counters,
		Publisher: router,
		BuildID:   reg.BuildID,
	})

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		router:   router,
		metrics:  metrics,
		registry: reg,
		levels:   levels,
		spawner:  spawner,
		assets:   pipeline,
		reload:   reload,
	}
}

// buildSinks constructs the sinks the config names. The returned cleanup
// closes any opened files and must run after the router has flushed.
func buildSinks(logCfg logging.Config) ([]logging.NamedSink, func(), error) {
	var (
		named   []logging.NamedSink
		closers []io.Closer
	)
	cleanup := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}
	for _, name := range logCfg.EnabledSinks {
		switch name {
		case "console":
			named = append(named, logging.NamedSink{Name: name, Sink: loggingsinks.NewConsoleSink(os.Stdout, logCfg.Console)})
		case "json":
			file, err := os.OpenFile(logCfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("app: open log file %s: %w", logCfg.JSON.FilePath, err)
			}
			closers = append(closers, file)
			named = append(named, logging.NamedSink{Name: name, Sink: loggingsinks.NewJSON(file, logCfg.JSON)})
		case "memory":
			named = append(named, logging.NamedSink{Name: name, Sink: loggingsinks.NewMemorySink()})
		default:
			cleanup()
			return nil, nil, fmt.Errorf("app: unknown log sink %q", name)
		}
	}
	return named, cleanup, nil
}

// probeFetcher confirms a resolved resource exists under the content tree.
// Remote URLs pass through untouched; clients fetch those themselves.
func probeFetcher(contentDir string) assets.Fetcher {
	return assets.FetcherFunc(func(_ context.Context, req assets.Request) error {
		parsed, err := url.Parse(req.URL)
		if err != nil {
			return fmt.Errorf("app: asset url %q: %w", req.URL, err)
		}
		if parsed.IsAbs() {
			return nil
		}
		path := filepath.Join(contentDir, filepath.FromSlash(parsed.Path))
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("app: asset %s: %w", req.ID, err)
		}
		return nil
	})
}

// preflight loads the manifest, then loads, validates, and dry-run spawns
// every room so broken content surfaces at boot instead of on first request.
func (rt *runtime) preflight(ctx context.Context) error {
	manifest, err := rt.registry.Manifest(ctx)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	ids := make([]string, 0, len(manifest.Rooms))
	for id := range manifest.Rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var failures []error
	result := spawn.NewResult()
	for _, id := range ids {
		lvl, err := rt.levels.Load(ctx, id)
		if err != nil {
			failures = append(failures, fmt.Errorf("room %s: %w", id, err))
			continue
		}
		rt.spawner.SpawnInto(ctx, lvl, result)
		rt.logger.Printf("preflight %s: %dx%d tiles, %d entities, %d spawns, %d doors, %d npcs, %d encounters",
			id, lvl.Width, lvl.Height, len(lvl.Entities), result.SpawnCount(),
			len(result.Doors), len(result.NPCs), len(result.Encounters))
		rt.spawner.Cleanup(ctx, result)
	}
	rt.logger.Printf("preflight: build %s, %d rooms checked, %d failed",
		manifest.BuildID, len(ids), len(failures))
	logginglifecycle.PreflightCompleted(ctx, rt.router, rt.buildRef(), logginglifecycle.PreflightCompletedPayload{
		Rooms:  len(ids),
		Failed: len(failures),
	}, nil)
	return errors.Join(failures...)
}

func (rt *runtime) buildRef() logging.ContentRef {
	return logging.ContentRef{ID: rt.registry.BuildID(), Kind: logging.ContentKindManifest}
}

// watchContent applies watcher events to the caches and notifies reload
// subscribers. It returns when the watcher closes or ctx is cancelled.
func (rt *runtime) watchContent(ctx context.Context, watcher *devwatch.Watcher) {
	var pending []string
	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-watcher.Events:
			if !ok {
				return
			}
			pending = append(pending, path)
			if settle == nil {
				settle = time.After(watchSettle)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			rt.logger.Printf("content watcher: %v", err)
		case <-settle:
			rt.applyContentChange(ctx, pending)
			pending = nil
			settle = nil
		}
	}
}

// applyContentChange refreshes caches for the changed paths and broadcasts
// the reload. A manifest edit swaps the whole manifest; everything else
// clears the derived caches so the next request refetches.
func (rt *runtime) applyContentChange(ctx context.Context, changed []string) {
	manifestPath := filepath.Clean(filepath.Join(rt.cfg.ContentDir, rt.cfg.ManifestFile))
	paths := make([]string, 0, len(changed))
	reloadManifest := false
	for _, path := range changed {
		if filepath.Clean(path) == manifestPath {
			reloadManifest = true
		}
		if rel, err := filepath.Rel(rt.cfg.ContentDir, path); err == nil {
			path = rel
		}
		paths = append(paths, filepath.ToSlash(path))
	}

	if reloadManifest {
		if err := rt.registry.Reload(ctx); err != nil {
			rt.logger.Printf("manifest reload: %v", err)
		}
	}
	rt.registry.ClearContentCache()
	rt.levels.ClearAll()
	rt.assets.ClearPresence(ctx)

	delivered := rt.reload.Broadcast(ctx, paths)
	rt.logger.Printf("content change: %d paths, notified %d clients", len(paths), delivered)
}

// serve runs the HTTP surface until ctx is cancelled, then drains it.
func (rt *runtime) serve(ctx context.Context) error {
	handler := servernet.NewHTTPHandler(servernet.Dependencies{
		Registry:  rt.registry,
		Levels:    rt.levels,
		Spawner:   rt.spawner,
		Assets:    rt.assets,
		Telemetry: rt.metrics,
		Router:    rt.router,
		Reload:    rt.reload,
	}, servernet.HTTPHandlerConfig{
		ClientDir:     rt.cfg.ClientDir,
		Logger:        rt.logger,
		Observability: observability.Config{EnablePprof: rt.cfg.EnablePprof},
	})

	srv := &http.Server{Addr: rt.cfg.Addr, Handler: handler}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	rt.logger.Printf("server listening on %s", rt.cfg.Addr)
	logginglifecycle.ServerStarted(ctx, rt.router, rt.buildRef(), logginglifecycle.ServerStartedPayload{
		Addr:    rt.cfg.Addr,
		DevMode: rt.cfg.DevMode,
	}, nil)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logginglifecycle.ServerStopping(context.Background(), rt.router, rt.buildRef(), logginglifecycle.ServerStoppingPayload{
		Reason: "signal",
	}, nil)

	// Shutdown leaves hijacked websocket connections alone, so drop the
	// reload subscribers first.
	rt.reload.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: shutdown: %w", err)
	}
	return nil
}
