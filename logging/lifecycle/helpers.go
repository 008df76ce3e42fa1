package lifecycle

import (
	"context"

	"lorehall/server/logging"
)

const (
	// EventServerStarted is emitted once the wired server starts listening.
	EventServerStarted logging.EventType = "lifecycle.server_started"
	// EventPreflightCompleted is emitted after the boot preflight walked every room.
	EventPreflightCompleted logging.EventType = "lifecycle.preflight_completed"
	// EventServerStopping is emitted when graceful shutdown begins.
	EventServerStopping logging.EventType = "lifecycle.server_stopping"
)

// ServerStartedPayload captures the listen address and mode of a boot.
type ServerStartedPayload struct {
	Addr    string `json:"addr"`
	DevMode bool   `json:"devMode,omitempty"`
}

// PreflightCompletedPayload summarizes the boot preflight.
type PreflightCompletedPayload struct {
	Rooms  int `json:"rooms"`
	Failed int `json:"failed"`
}

// ServerStoppingPayload captures why the server is shutting down.
type ServerStoppingPayload struct {
	Reason string `json:"reason"`
}

// ServerStarted publishes a boot event.
func ServerStarted(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload ServerStartedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventServerStarted,
		Subject:  subject,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// PreflightCompleted publishes the preflight summary. Any failed room raises
// the severity to warn.
func PreflightCompleted(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload PreflightCompletedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	severity := logging.SeverityInfo
	if payload.Failed > 0 {
		severity = logging.SeverityWarn
	}
	event := logging.Event{
		Type:     EventPreflightCompleted,
		Subject:  subject,
		Severity: severity,
		Category: logging.CategorySystem,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ServerStopping publishes a shutdown event.
func ServerStopping(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload ServerStoppingPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventServerStopping,
		Subject:  subject,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
