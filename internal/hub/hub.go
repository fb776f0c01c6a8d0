// Package hub implements the Hub / Router: the process-wide
// singleton holding the Asset Manager, Room Registry and Object Registry,
// and the only place broadcasts originate. Individual session brokers never
// reach into each other's write paths — they only ever talk to the Hub.
//
// A routing table (map[roomID]members, resolved and fanned out under a
// lock) maps each broadcast to the sessions that should receive it, and
// BroadcastAll publishes to every live session without blocking on any one
// of them.
package hub

import (
	"log/slog"
	"sync"

	"github.com/streamxr/core/internal/assets"
	"github.com/streamxr/core/internal/metrics"
	"github.com/streamxr/core/internal/objects"
	"github.com/streamxr/core/internal/rooms"
)

// Session is the subset of a session broker's behaviour the Hub needs in
// order to route broadcasts to it. Defined here (rather than imported from
// package session) so the two packages don't form an import cycle — the
// broker implements this interface and registers itself with Join.
type Session interface {
	ID() string
	RoomID() string
	Enqueue(v any) bool
	Close()
}

// Hub is the process-wide broker registry and routing layer.
type Hub struct {
	Assets  *assets.Manager
	Rooms   *rooms.Registry
	Objects *objects.Registry
	Metrics *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]Session
}

// New creates a Hub wired to its shared registries and starts draining the
// Object Registry's event stream into room broadcasts.
func New(a *assets.Manager, r *rooms.Registry, o *objects.Registry, m *metrics.Metrics) *Hub {
	h := &Hub{
		Assets:   a,
		Rooms:    r,
		Objects:  o,
		Metrics:  m,
		sessions: make(map[string]Session),
	}
	go h.drainObjectEvents()
	return h
}

// Join registers a session so it can receive broadcasts, and returns the
// peer ids and poses already present in its room for the welcome payload.
func (h *Hub) Join(s Session) (peers []string, poses map[string]rooms.Pose) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	h.mu.Unlock()

	peers = h.Rooms.PeersOf(s.ID())
	poses = h.Rooms.UserPositions(s.RoomID())
	return peers, poses
}

// Leave unregisters a session. The caller is responsible for the rest of
// teardown (room removal, object release)
func (h *Hub) Leave(clientID string) {
	h.mu.Lock()
	delete(h.sessions, clientID)
	h.mu.Unlock()
}

// BroadcastRoom enqueues message on every session in roomID except exclude
// (pass "" to exclude no one).
func (h *Hub) BroadcastRoom(roomID string, message any, exclude string) {
	members := h.Rooms.Members(roomID)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range members {
		if id == exclude {
			continue
		}
		if s, ok := h.sessions[id]; ok {
			if !s.Enqueue(message) {
				slog.Warn("session outbound queue saturated, closing", "client_id", id)
				s.Close()
			}
		}
	}
}

// BroadcastAll enqueues message on every live session — used for
// asset-lifecycle notifications (asset_uploaded, asset_removed).
func (h *Hub) BroadcastAll(message any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		if !s.Enqueue(message) {
			slog.Warn("session outbound queue saturated, closing", "client_id", s.ID())
			s.Close()
		}
	}
}

// SessionCount reports how many sessions are currently registered, for
// enforcing the configured session cap.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
