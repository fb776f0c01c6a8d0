// Package session implements the Session Broker: one instance
// per accepted duplex connection, owning frame parsing/dispatch, asset
// streaming, and the connection's single outbound writer. Each broker
// talks to the Hub for anything cross-session rather than reaching into
// another connection directly.
package session

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamxr/core/internal/bandwidth"
	"github.com/streamxr/core/internal/config"
	"github.com/streamxr/core/internal/foveation"
	"github.com/streamxr/core/internal/hub"
	"github.com/streamxr/core/internal/metrics"
	"github.com/streamxr/core/internal/wire"
)

// Conn is the subset of *websocket.Conn the broker needs. Defined as an
// interface so tests can drive a broker with a fake connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// frame is one physical write: either a JSON value or a raw binary payload.
type frame struct {
	json   any
	binary []byte
}

// outboundItem is one or more frames written back-to-back by the writer
// without interleaving another queue item — this is how the asset_chunk
// header + binary pair stay atomic on the wire.
type outboundItem []frame

// Broker owns one session's connection.
type Broker struct {
	id     string
	conn   Conn
	hub    *hub.Hub
	cfg    *config.Config
	metrics *metrics.Metrics
	log    *slog.Logger

	roomID string
	colour string

	bw   *bandwidth.Estimator
	pose foveation.Pose

	// lastClientBps/lastClientReportAt track the most recent client-reported
	// bandwidth-metrics sample, so a server-side sample measured at the end
	// of an asset transfer can be blended 50/50 with a concurrent client
	// report instead of folded into the EMA alone.
	lastClientBps      float64
	lastClientReportAt time.Time

	renderMode string

	out     chan outboundItem
	closed  chan struct{}
	closeOnce sync.Once

	// inbound binary demultiplexing: a binary frame is only
	// meaningful in a stream context a preceding text frame established.
	// No current control message in this protocol opens an inbound binary
	// stream (asset bytes only ever flow server->client here; uploads go
	// through the HTTP admin API) — so this table stays empty and every
	// inbound binary frame is, correctly, dropped as a protocol error. The
	// mechanism is kept general (keyed by stream id) so a future inbound
	// stream (e.g. client-uploaded scan data) can register an expectation
	// without changing the demux.
	inboundMu   sync.Mutex
	inboundNext map[string]func([]byte)
}

// New creates a Broker for an accepted connection. id should already be a
// generated, opaque clientId.
func New(id string, conn Conn, h *hub.Hub, cfg *config.Config, m *metrics.Metrics) *Broker {
	b := &Broker{
		id:   id,
		conn: conn,
		hub:  h,
		cfg:  cfg,
		metrics: m,
		log:  slog.Default().With("client_id", id),
		bw: bandwidth.New(bandwidth.Config{
			SmoothingFactor:  cfg.Stream.SmoothingFactor,
			MinSamples:       cfg.Stream.MinSamples,
			HighThresholdBps: cfg.Stream.HighThresholdBps,
			LowThresholdBps:  cfg.Stream.LowThresholdBps,
		}),
		out:         make(chan outboundItem, cfg.Sessions.OutboundQueue),
		closed:      make(chan struct{}),
		inboundNext: make(map[string]func([]byte)),
	}
	return b
}

// ID implements hub.Session.
func (b *Broker) ID() string { return b.id }

// RoomID implements hub.Session.
func (b *Broker) RoomID() string { return b.roomID }

// Enqueue implements hub.Session: a non-blocking send of a single JSON
// frame. Returns false if the outbound queue is saturated — the caller's
// policy for a slow session is then to close it.
func (b *Broker) Enqueue(v any) bool {
	return b.push(outboundItem{{json: v}})
}

// enqueuePair pushes a header+binary pair as one atomic queue item.
func (b *Broker) enqueuePair(header any, payload []byte) bool {
	return b.push(outboundItem{{json: header}, {binary: payload}})
}

func (b *Broker) push(item outboundItem) bool {
	select {
	case b.out <- item:
		if b.metrics != nil {
			b.metrics.OutboundQueueDepth.WithLabelValues(b.id).Set(float64(len(b.out)))
		}
		return true
	default:
		return false
	}
}

// Close shuts the connection down; safe to call multiple times / from
// multiple goroutines.
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		close(b.closed)
		_ = b.conn.Close()
	})
}

// Run drives the session until the connection closes: starts the writer,
// performs the join handshake, then reads frames until error. It blocks
// until teardown is complete.
func (b *Broker) Run(requestedRoom string) {
	go b.writeLoop()

	b.join(requestedRoom)
	defer b.teardown()

	for {
		select {
		case <-b.closed:
			return
		default:
		}

		mt, data, err := b.conn.ReadMessage()
		if err != nil {
			return
		}

		switch mt {
		case websocket.TextMessage:
			b.handleText(data)
		case websocket.BinaryMessage:
			b.handleBinary(data)
		}
	}
}

func (b *Broker) writeLoop() {
	for {
		select {
		case item, ok := <-b.out:
			if !ok {
				return
			}
			for _, f := range item {
				if err := b.writeFrame(f); err != nil {
					b.Close()
					return
				}
			}
			if b.metrics != nil {
				b.metrics.OutboundQueueDepth.WithLabelValues(b.id).Set(float64(len(b.out)))
			}
		case <-b.closed:
			return
		}
	}
}

func (b *Broker) writeFrame(f frame) error {
	if f.binary != nil {
		return b.conn.WriteMessage(websocket.BinaryMessage, f.binary)
	}
	data, err := json.Marshal(f.json)
	if err != nil {
		return err
	}
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

func (b *Broker) handleText(data []byte) {
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.log.Warn("dropping malformed control frame", "error", err)
		return
	}
	b.dispatch(env.Type, data)
}

func (b *Broker) handleBinary(data []byte) {
	b.inboundMu.Lock()
	// No stream is ever registered today (see inboundNext's doc comment),
	// so this always drops.
	for key, cb := range b.inboundNext {
		delete(b.inboundNext, key)
		b.inboundMu.Unlock()
		cb(data)
		return
	}
	b.inboundMu.Unlock()
	b.log.Warn("dropping binary frame with no pending expectation", "bytes", len(data))
}

func (b *Broker) join(requestedRoom string) {
	roomID, peers, colour := b.hub.Rooms.Add(b.id, requestedRoom)
	b.roomID = roomID
	b.colour = colour

	hubPeers, poses := b.hub.Join(b)
	_ = hubPeers // identical to peers; hub.Join re-derives from the same registry

	positions := make(map[string]wire.UserPose, len(poses))
	for id, p := range poses {
		positions[id] = wire.UserPose{Position: p.Position, Rotation: p.Rotation, Quaternion: p.Quaternion}
	}

	b.Enqueue(wire.OutWelcome{
		Type:          "welcome",
		ID:            b.id,
		Peers:         peers,
		Color:         colour,
		UserPositions: positions,
	})

	b.hub.BroadcastRoom(b.roomID, wire.OutPeerConnected{Type: "peer-connected", PeerID: b.id, Color: colour}, b.id)
}

func (b *Broker) teardown() {
	b.hub.Leave(b.id)
	b.hub.Rooms.Remove(b.id)
	b.hub.Objects.ReleaseAllOwnedBy(b.id)
	b.hub.BroadcastRoom(b.roomID, wire.OutPeerDisconnected{Type: "peer-disconnected", PeerID: b.id}, b.id)
	b.Close()
}
