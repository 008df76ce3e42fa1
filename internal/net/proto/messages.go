// Package proto defines the websocket wire format: a small JSON envelope
// with a version stamp, a type tag, and per-type fields.
package proto

import (
	"encoding/json"
	"fmt"
)

// Version is stamped on every outbound frame. Inbound frames carrying a
// different version are rejected.
const Version = 1

// Frame type tags shared with the browser client.
const (
	TypeHello         = "hello"
	TypeContentReload = "contentReload"
	TypeHeartbeat     = "heartbeat"
	TypeResync        = "resync"
)

// envelope carries the fields every outbound frame starts with.
type envelope struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
}

func stamp(frameType string) envelope {
	return envelope{Ver: Version, Type: frameType}
}

// ClientMessage is an inbound frame from the client. SentAt is the
// client's clock in unix milliseconds, used for heartbeat timing.
type ClientMessage struct {
	Ver    int    `json:"ver,omitempty"`
	Type   string `json:"type"`
	SentAt int64  `json:"sentAt,omitempty"`
}

// DecodeClientMessage parses an inbound frame. Frames without a version
// are treated as current; frames with any other version are rejected.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ClientMessage{}, err
	}
	switch msg.Ver {
	case 0:
		msg.Ver = Version
	case Version:
	default:
		return msg, fmt.Errorf("client speaks protocol %d, want %d", msg.Ver, Version)
	}
	return msg, nil
}

// Hello greets a fresh subscriber with the active content build.
type Hello struct {
	BuildID    string
	ServerTime int64
}

type helloFrame struct {
	envelope
	BuildID    string `json:"buildId"`
	ServerTime int64  `json:"serverTime"`
}

func EncodeHello(msg Hello) ([]byte, error) {
	return json.Marshal(helloFrame{
		envelope:   stamp(TypeHello),
		BuildID:    msg.BuildID,
		ServerTime: msg.ServerTime,
	})
}

// ContentReload tells subscribers to refetch content. Paths lists the
// changed files when known; an empty list means reload everything.
type ContentReload struct {
	BuildID string
	Paths   []string
}

type contentReloadFrame struct {
	envelope
	BuildID string   `json:"buildId,omitempty"`
	Paths   []string `json:"paths,omitempty"`
}

func EncodeContentReload(msg ContentReload) ([]byte, error) {
	return json.Marshal(contentReloadFrame{
		envelope: stamp(TypeContentReload),
		BuildID:  msg.BuildID,
		Paths:    msg.Paths,
	})
}

// Heartbeat echoes the client's clock back alongside the server's, so the
// client can estimate round-trip latency.
type Heartbeat struct {
	ServerTime int64
	ClientTime int64
	RTTMillis  int64
}

type heartbeatFrame struct {
	envelope
	ServerTime int64 `json:"serverTime"`
	ClientTime int64 `json:"clientTime"`
	RTTMillis  int64 `json:"rtt"`
}

func EncodeHeartbeat(msg Heartbeat) ([]byte, error) {
	return json.Marshal(heartbeatFrame{
		envelope:   stamp(TypeHeartbeat),
		ServerTime: msg.ServerTime,
		ClientTime: msg.ClientTime,
		RTTMillis:  msg.RTTMillis,
	})
}
