package net

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	nethttp "net/http"
	"strings"
	"time"

	"lorehall/server/content/assets"
	"lorehall/server/content/level"
	"lorehall/server/content/registry"
	"lorehall/server/content/spawn"
	"lorehall/server/internal/net/ws"
	"lorehall/server/internal/observability"
	"lorehall/server/internal/telemetry"
	"lorehall/server/logging"
)

// HTTPHandlerConfig tunes the HTTP surface.
type HTTPHandlerConfig struct {
	ClientDir     string
	Logger        telemetry.Logger
	Observability observability.Config
}

// Dependencies carries the pipeline pieces the HTTP surface serves. Any of
// them may be nil; the matching endpoints degrade instead of panicking.
type Dependencies struct {
	Registry  *registry.Loader
	Levels    *level.Loader
	Spawner   *spawn.Spawner
	Assets    *assets.Pipeline
	Telemetry *logging.Metrics
	Router    *logging.Router
	Reload    *ws.Broadcaster
}

// NewHTTPHandler builds the content server's HTTP surface.
func NewHTTPHandler(deps Dependencies, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}

		content := struct {
			Rooms        int `json:"rooms"`
			Flashcards   int `json:"flashcards"`
			Dialogue     int `json:"dialogue"`
			Sprites      int `json:"sprites"`
			Props        int `json:"props"`
			Outfits      int `json:"outfits"`
			CachedLevels int `json:"cachedLevels"`
			AssetsLoaded int `json:"assetsLoaded"`
		}{}
		buildID := ""
		if deps.Registry != nil {
			buildID = deps.Registry.BuildID()
			if m := deps.Registry.Snapshot(); m != nil {
				content.Rooms = len(m.Rooms)
				content.Flashcards = len(m.FlashcardPacks)
				content.Dialogue = len(m.DialogueStories)
				content.Sprites = len(m.Sprites)
				content.Props = len(m.Props)
				content.Outfits = len(m.Outfits)
			}
		}
		if deps.Levels != nil {
			content.CachedLevels = deps.Levels.CachedCount()
		}
		if deps.Assets != nil {
			content.AssetsLoaded = deps.Assets.PresenceCount()
		}

		telemetrySnapshot := map[string]uint64{}
		if deps.Telemetry != nil {
			telemetrySnapshot = deps.Telemetry.Snapshot()
		}

		logStats := struct {
			Events  uint64 `json:"events"`
			Dropped uint64 `json:"dropped"`
		}{}
		if deps.Router != nil {
			stats := deps.Router.Stats()
			logStats.Events = stats.EventsTotal
			logStats.Dropped = stats.DroppedTotal
		}

		reloadClients := 0
		if deps.Reload != nil {
			reloadClients = deps.Reload.ClientCount()
		}

		payload := struct {
			Status        string            `json:"status"`
			ServerTime    int64             `json:"serverTime"`
			BuildID       string            `json:"buildId"`
			Content       any               `json:"content"`
			Telemetry     map[string]uint64 `json:"telemetry"`
			Logging       any               `json:"logging"`
			ReloadClients int               `json:"reloadClients"`
		}{
			Status:        "ok",
			ServerTime:    time.Now().UnixMilli(),
			BuildID:       buildID,
			Content:       content,
			Telemetry:     telemetrySnapshot,
			Logging:       logStats,
			ReloadClients: reloadClients,
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/manifest", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		if deps.Registry == nil {
			httpError(w, "content registry unavailable", nethttp.StatusServiceUnavailable)
			return
		}

		m, err := deps.Registry.Manifest(r.Context())
		if err != nil {
			logger.Printf("manifest load failed: %v", err)
			httpError(w, "content unavailable", nethttp.StatusBadGateway)
			return
		}

		data, err := json.Marshal(m.Document())
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/levels/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		if deps.Levels == nil {
			httpError(w, "level loader unavailable", nethttp.StatusServiceUnavailable)
			return
		}

		levelID := strings.TrimPrefix(r.URL.Path, "/levels/")
		if levelID == "" || strings.Contains(levelID, "/") {
			httpError(w, "unknown level", nethttp.StatusNotFound)
			return
		}

		lvl, err := deps.Levels.Load(r.Context(), levelID)
		if err != nil {
			switch {
			case errors.Is(err, registry.ErrNotFound):
				httpError(w, "unknown level", nethttp.StatusNotFound)
			case level.IsSchemaViolation(err):
				logger.Printf("level %s rejected: %v", levelID, err)
				httpError(w, "level failed validation", nethttp.StatusUnprocessableEntity)
			default:
				logger.Printf("level %s load failed: %v", levelID, err)
				httpError(w, "content unavailable", nethttp.StatusBadGateway)
			}
			return
		}

		data, err := json.Marshal(lvl)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/spawn/preview", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		if deps.Levels == nil || deps.Spawner == nil {
			httpError(w, "spawner unavailable", nethttp.StatusServiceUnavailable)
			return
		}

		var req struct {
			LevelID string `json:"levelId"`
		}
		if r.Body != nil {
			defer r.Body.Close()
			decoder := json.NewDecoder(r.Body)
			if err := decoder.Decode(&req); err != nil && err != io.EOF {
				httpError(w, "invalid payload", nethttp.StatusBadRequest)
				return
			}
		}
		if req.LevelID == "" {
			httpError(w, "missing levelId", nethttp.StatusBadRequest)
			return
		}

		lvl, err := deps.Levels.Load(r.Context(), req.LevelID)
		if err != nil {
			switch {
			case errors.Is(err, registry.ErrNotFound):
				httpError(w, "unknown level", nethttp.StatusNotFound)
			case level.IsSchemaViolation(err):
				httpError(w, "level failed validation", nethttp.StatusUnprocessableEntity)
			default:
				logger.Printf("level %s load failed: %v", req.LevelID, err)
				httpError(w, "content unavailable", nethttp.StatusBadGateway)
			}
			return
		}

		result := deps.Spawner.Spawn(r.Context(), lvl)

		response := struct {
			Status       string         `json:"status"`
			LevelID      string         `json:"levelId"`
			Entities     int            `json:"entities"`
			Spawns       int            `json:"spawns"`
			DefaultSpawn any            `json:"defaultSpawn"`
			Doors        int            `json:"doors"`
			NPCs         int            `json:"npcs"`
			Encounters   int            `json:"encounters"`
			ByType       map[string]int `json:"byType"`
		}{
			Status:     "ok",
			LevelID:    result.LevelID,
			Entities:   len(result.Records),
			Spawns:     result.SpawnCount(),
			Doors:      len(result.Doors),
			NPCs:       len(result.NPCs),
			Encounters: len(result.Encounters),
			ByType:     result.Stats.ByType,
		}
		if point, ok := result.DefaultSpawn(); ok {
			response.DefaultSpawn = point
		}

		data, err := json.Marshal(response)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		deps.Spawner.Cleanup(r.Context(), result)

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/content/reload", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		if deps.Registry == nil {
			httpError(w, "content registry unavailable", nethttp.StatusServiceUnavailable)
			return
		}

		var req struct {
			Scope string   `json:"scope"`
			Paths []string `json:"paths"`
		}
		if r.Body != nil {
			defer r.Body.Close()
			decoder := json.NewDecoder(r.Body)
			if err := decoder.Decode(&req); err != nil && err != io.EOF {
				httpError(w, "invalid payload", nethttp.StatusBadRequest)
				return
			}
		}
		if req.Scope == "" {
			req.Scope = "all"
		}

		switch req.Scope {
		case "all":
			if err := deps.Registry.Reload(r.Context()); err != nil {
				logger.Printf("manifest reload failed: %v", err)
				httpError(w, "reload failed", nethttp.StatusBadGateway)
				return
			}
			if deps.Levels != nil {
				deps.Levels.ClearAll()
			}
			if deps.Assets != nil {
				deps.Assets.ClearPresence(r.Context())
			}
		case "secondary":
			deps.Registry.ClearContentCache()
		case "levels":
			if deps.Levels != nil {
				deps.Levels.ClearAll()
			}
		default:
			httpError(w, "unknown scope", nethttp.StatusBadRequest)
			return
		}

		delivered := 0
		if deps.Reload != nil {
			delivered = deps.Reload.Broadcast(r.Context(), req.Paths)
		}

		response := struct {
			Status    string `json:"status"`
			Scope     string `json:"scope"`
			BuildID   string `json:"buildId"`
			Delivered int    `json:"delivered"`
		}{
			Status:    "ok",
			Scope:     req.Scope,
			BuildID:   deps.Registry.BuildID(),
			Delivered: delivered,
		}

		data, err := json.Marshal(response)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	if deps.Reload != nil {
		mux.HandleFunc("/ws", deps.Reload.Handle)
	}

	cfg.Observability.Mount(mux)

	if cfg.ClientDir != "" {
		fs := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		mux.Handle("/", fs)
	}

	return mux
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
