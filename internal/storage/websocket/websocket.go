// Package websocket implements a storage.Backend that streams sessions and
// snapshots to a history server.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RepairMe/extension/pkg/core"
	"github.com/RepairMe/extension/pkg/streaming"
)

const ackTimeout = 10 * time.Second

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams session data over WebSocket. Session start and end wait
// for an ack; snapshots are fire-and-forget.
type Backend struct {
	conn *connection
	cfg  Config

	mu     sync.Mutex
	nextID uint
	active bool
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger.With("component", "websocket")),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// Dropped is the number of messages dropped because the send queue was full.
func (b *Backend) Dropped() int64 {
	return b.conn.dropped.Load()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// StartSession assigns the session a local ID, sends it and waits for the
// server ack. The message is replayed after a reconnect.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	b.nextID++
	s.ID = b.nextID
	b.active = true
	b.mu.Unlock()

	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.NewStartSessionPayload(s))
	if err != nil {
		return err
	}
	b.conn.setReplay(data)
	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for the server ack.
func (b *Backend) EndSession(at time.Time) error {
	b.mu.Lock()
	wasActive := b.active
	b.active = false
	b.mu.Unlock()
	if !wasActive {
		return nil
	}
	defer b.conn.setReplay(nil)

	data, err := marshalEnvelope(streaming.TypeEndSession, streaming.EndSessionPayload{LogoutTime: at})
	if err != nil {
		return err
	}
	return b.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)
}

// RecordSnapshot queues a snapshot message.
func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	b.mu.Lock()
	active := b.active
	b.mu.Unlock()
	if !active {
		return core.ErrNoSession
	}
	data, err := marshalEnvelope(streaming.TypeSnapshot, streaming.NewSnapshotPayload(s))
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}
