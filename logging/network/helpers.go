package network

import (
	"context"

	"lorehall/server/logging"
)

const (
	// EventClientSubscribed is emitted when a reload subscriber connects.
	EventClientSubscribed logging.EventType = "network.client_subscribed"
	// EventClientDropped is emitted when a reload subscriber disconnects or falls behind.
	EventClientDropped logging.EventType = "network.client_dropped"
	// EventReloadBroadcast is emitted after a content reload notification fans out.
	EventReloadBroadcast logging.EventType = "network.reload_broadcast"
)

// SubscriberPayload describes a subscriber registry change.
type SubscriberPayload struct {
	ClientID uint64 `json:"clientId"`
	Clients  int    `json:"clients"`
}

// DroppedPayload describes why a subscriber left the registry.
type DroppedPayload struct {
	ClientID uint64 `json:"clientId"`
	Reason   string `json:"reason"`
	Clients  int    `json:"clients"`
}

// ReloadPayload summarizes one reload fanout.
type ReloadPayload struct {
	BuildID   string   `json:"buildId"`
	Paths     []string `json:"paths,omitempty"`
	Delivered int      `json:"delivered"`
	Dropped   int      `json:"dropped"`
}

// ClientSubscribed publishes a debug event for a new reload subscriber.
func ClientSubscribed(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload SubscriberPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventClientSubscribed,
		Subject:  subject,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ClientDropped publishes a debug event when a subscriber leaves.
func ClientDropped(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload DroppedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventClientDropped,
		Subject:  subject,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ReloadBroadcast publishes a summary event after a reload fanout.
func ReloadBroadcast(ctx context.Context, pub logging.Publisher, subject logging.ContentRef, payload ReloadPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventReloadBroadcast,
		Subject:  subject,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
