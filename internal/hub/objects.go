package hub

import (
	"github.com/streamxr/core/internal/objects"
	"github.com/streamxr/core/internal/wire"
)

// drainObjectEvents translates internal/objects lifecycle events into wire
// broadcasts, and is the only place that does so — individual brokers never
// broadcast object events directly.
func (h *Hub) drainObjectEvents() {
	for e := range h.Objects.Events() {
		switch e.Kind {
		case "created":
			h.BroadcastRoom(e.RoomID, wire.OutObjectCreated{Type: "object-created", Object: toWireObject(e.Object)}, "")
		case "updated":
			h.BroadcastRoom(e.RoomID, wire.OutObjectUpdated{Type: "object-updated", Object: toWireObject(e.Object)}, "")
		case "deleted":
			h.BroadcastRoom(e.RoomID, wire.OutObjectDeleted{Type: "object-deleted", ObjectID: e.ObjectID}, "")
		case "grabbed":
			h.BroadcastRoom(e.RoomID, wire.OutObjectGrabbed{Type: "object-grabbed", ObjectID: e.Object.ID, UserID: e.ActorID, Object: toWireObject(e.Object)}, "")
		case "grab_failed":
			h.notifyOne(e.ActorID, wire.OutGrabFailed{Type: "grab-failed", ObjectID: e.ObjectID, OwnedBy: e.OwnedBy})
		case "released":
			h.BroadcastRoom(e.RoomID, wire.OutObjectReleased{Type: "object-released", ObjectID: e.ObjectID, UserID: e.ActorID}, "")
		case "moved":
			h.BroadcastRoom(e.RoomID, wire.OutObjectMoved{Type: "object-moved", ObjectID: e.Object.ID, Position: e.Object.Position, Rotation: e.Object.Rotation, UserID: e.ActorID}, e.Exclude)
		}
	}
}

func (h *Hub) notifyOne(clientID string, message any) {
	h.mu.RLock()
	s, ok := h.sessions[clientID]
	h.mu.RUnlock()
	if ok {
		s.Enqueue(message)
	}
}

func toWireObject(o objects.Object) wire.Object {
	w := wire.Object{
		ID:        o.ID,
		Kind:      o.Kind,
		Position:  o.Position,
		Rotation:  o.Rotation,
		Scale:     o.Scale,
		Colour:    o.Colour,
		CreatedBy: o.CreatedBy,
		CreatedAt: o.CreatedAt.UnixMilli(),
		UpdatedAt: o.UpdatedAt.UnixMilli(),
		OwnedBy:   o.OwnedBy,
	}
	if !o.OwnershipExpiresAt.IsZero() {
		w.OwnershipExpiresAt = o.OwnershipExpiresAt.UnixMilli()
	}
	return w
}
