package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lorehall/server/internal/net/proto"
	"lorehall/server/internal/telemetry"
	"lorehall/server/logging"
	loggingnetwork "lorehall/server/logging/network"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// BroadcasterConfig wires the reload broadcaster's collaborators.
type BroadcasterConfig struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	BuildID   func() string
}

// Broadcaster fans content reload notifications out to connected dev
// clients. A subscriber whose buffer fills up is dropped instead of
// stalling the broadcast.
type Broadcaster struct {
	logger   telemetry.Logger
	metrics  telemetry.Metrics
	pub      logging.Publisher
	buildID  func() string
	upgrader websocket.Upgrader

	mu      sync.Mutex
	nextID  uint64
	clients map[uint64]*client
}

// NewBroadcaster constructs a broadcaster with no subscribers.
func NewBroadcaster(cfg BroadcasterConfig) *Broadcaster {
	return &Broadcaster{
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		pub:     cfg.Publisher,
		buildID: cfg.BuildID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[uint64]*client),
	}
}

type client struct {
	id   uint64
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) stop() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// enqueue offers a frame without blocking. False means the client is
// stopping or its buffer is full.
func (c *client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) writePump() {
	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.stop()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Handle upgrades the request and serves the subscriber until it
// disconnects. Each subscriber immediately receives a hello frame naming
// the active build.
func (b *Broadcaster) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logf("reload subscriber upgrade failed: %v", err)
		return
	}

	c := b.register(r.Context(), conn)
	defer b.drop(c, "disconnect")
	go c.writePump()

	if frame, err := proto.EncodeHello(b.helloFrame()); err == nil {
		c.enqueue(frame)
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			b.logf("discarding malformed reload message: %v", err)
			continue
		}
		switch msg.Type {
		case proto.TypeHeartbeat:
			now := time.Now()
			var rtt int64
			if msg.SentAt > 0 && now.UnixMilli() > msg.SentAt {
				rtt = now.UnixMilli() - msg.SentAt
			}
			frame, err := proto.EncodeHeartbeat(proto.Heartbeat{
				ServerTime: now.UnixMilli(),
				ClientTime: msg.SentAt,
				RTTMillis:  rtt,
			})
			if err == nil {
				c.enqueue(frame)
			}
		case proto.TypeResync:
			if frame, err := proto.EncodeHello(b.helloFrame()); err == nil {
				c.enqueue(frame)
			}
		default:
			b.logf("unknown reload message type %q", msg.Type)
		}
	}
}

func (b *Broadcaster) helloFrame() proto.Hello {
	return proto.Hello{BuildID: b.currentBuildID(), ServerTime: time.Now().UnixMilli()}
}

func (b *Broadcaster) register(ctx context.Context, conn *websocket.Conn) *client {
	b.mu.Lock()
	b.nextID++
	c := &client{
		id:   b.nextID,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	b.clients[c.id] = c
	count := len(b.clients)
	b.mu.Unlock()

	b.count("ws_clients_total", 1)
	loggingnetwork.ClientSubscribed(ctx, b.pub, reloadRef(), loggingnetwork.SubscriberPayload{
		ClientID: c.id,
		Clients:  count,
	}, nil)
	return c
}

func (b *Broadcaster) drop(c *client, reason string) {
	b.mu.Lock()
	_, present := b.clients[c.id]
	delete(b.clients, c.id)
	count := len(b.clients)
	b.mu.Unlock()

	c.stop()
	if !present {
		return
	}
	loggingnetwork.ClientDropped(context.Background(), b.pub, reloadRef(), loggingnetwork.DroppedPayload{
		ClientID: c.id,
		Reason:   reason,
		Clients:  count,
	}, nil)
}

// Broadcast fans the reload notification out and reports how many
// subscribers received it.
func (b *Broadcaster) Broadcast(ctx context.Context, paths []string) int {
	buildID := b.currentBuildID()
	frame, err := proto.EncodeContentReload(proto.ContentReload{BuildID: buildID, Paths: paths})
	if err != nil {
		b.logf("failed to encode reload frame: %v", err)
		return 0
	}

	b.mu.Lock()
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	delivered := 0
	dropped := 0
	for _, c := range clients {
		if c.enqueue(frame) {
			delivered++
			continue
		}
		dropped++
		b.count("ws_send_drops", 1)
		b.drop(c, "slow consumer")
	}

	b.count("ws_reload_broadcasts", 1)
	loggingnetwork.ReloadBroadcast(ctx, b.pub, reloadRef(), loggingnetwork.ReloadPayload{
		BuildID:   buildID,
		Paths:     paths,
		Delivered: delivered,
		Dropped:   dropped,
	}, nil)
	return delivered
}

// ClientCount reports the number of connected subscribers.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		b.drop(c, "shutdown")
	}
}

func (b *Broadcaster) currentBuildID() string {
	if b.buildID == nil {
		return ""
	}
	return b.buildID()
}

func (b *Broadcaster) logf(format string, args ...any) {
	if b.logger == nil {
		return
	}
	b.logger.Printf(format, args...)
}

func (b *Broadcaster) count(key string, delta uint64) {
	if b.metrics == nil {
		return
	}
	b.metrics.Add(key, delta)
}

func reloadRef() logging.ContentRef {
	return logging.ContentRef{ID: "reload", Kind: logging.ContentKindBatch}
}
