// Package objects implements the Object Registry: per-room
// shared objects with single-owner grab semantics and an idle-timeout
// auto-release. Idle releases are swept by a single background ticker
// across all rooms rather than one timer per object, the same way a
// cleanup loop can sweep many independently-expiring entries on one
// ticker instead of per-entry timers.
package objects

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Object is a shared, jointly-manipulable scene object.
type Object struct {
	ID                 string
	RoomID             string
	Kind               string
	Position           [3]float64
	Rotation           [4]float64
	Scale              [3]float64
	Colour             string
	CreatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	OwnedBy            string
	OwnershipExpiresAt time.Time
}

func (o Object) isOwned() bool { return o.OwnedBy != "" }

// Event is a broadcast-worthy change to room object state.
type Event struct {
	Kind     string // created|updated|deleted|grabbed|grab_failed|released|moved
	RoomID   string
	Object   Object
	ObjectID string
	ActorID  string
	OwnedBy  string // populated for grab_failed
	Exclude  string // clientID to exclude from the broadcast, if any
}

// Registry holds every room's object map and runs the idle-ownership sweep.
type Registry struct {
	mu               sync.Mutex
	rooms            map[string]map[string]*Object
	ownershipTimeout time.Duration
	counter          atomic.Uint64
	events           chan Event
	stop             chan struct{}
}

// New creates a Registry and starts its idle-ownership sweep at the given
// interval.
func New(ownershipTimeout, sweepInterval time.Duration) *Registry {
	r := &Registry{
		rooms:            make(map[string]map[string]*Object),
		ownershipTimeout: ownershipTimeout,
		events:           make(chan Event, 256),
		stop:             make(chan struct{}),
	}
	go r.sweepLoop(sweepInterval)
	return r
}

// Events returns the channel of broadcast-worthy events. The Hub is
// expected to drain this continuously.
func (r *Registry) Events() <-chan Event { return r.events }

// Close stops the background sweep.
func (r *Registry) Close() { close(r.stop) }

func (r *Registry) emit(e Event) {
	select {
	case r.events <- e:
	default:
		// Event consumer (the Hub) fell behind; dropping a broadcast event
		// is acceptable ("broadcasts of pose/position updates
		// are best-effort"), and object lifecycle events are rare enough
		// that this branch is not expected to trigger in practice.
	}
}

func (r *Registry) nextObjectID(roomID string) string {
	n := r.counter.Add(1)
	return fmt.Sprintf("%s-%d-%d", roomID, n, time.Now().UnixNano())
}

func (r *Registry) roomMap(roomID string) map[string]*Object {
	m, ok := r.rooms[roomID]
	if !ok {
		m = make(map[string]*Object)
		r.rooms[roomID] = m
	}
	return m
}

// Create inserts a new object and broadcasts object-created to the whole
// room, including the creator.
func (r *Registry) Create(roomID, kind string, position [3]float64, rotation [4]float64, scale [3]float64, colour, createdBy string) Object {
	r.mu.Lock()
	now := time.Now()
	obj := &Object{
		ID:        r.nextObjectID(roomID),
		RoomID:    roomID,
		Kind:      kind,
		Position:  position,
		Rotation:  rotation,
		Scale:     scale,
		Colour:    colour,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.roomMap(roomID)[obj.ID] = obj
	snapshot := *obj
	r.mu.Unlock()

	r.emit(Event{Kind: "created", RoomID: roomID, Object: snapshot})
	return snapshot
}

// Get returns a snapshot of one object.
func (r *Registry) Get(roomID, objectID string) (Object, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.roomMap(roomID)[objectID]
	if !ok {
		return Object{}, false
	}
	return *obj, true
}

// List returns a snapshot of every object in roomID.
func (r *Registry) List(roomID string) []Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.roomMap(roomID)
	out := make([]Object, 0, len(m))
	for _, o := range m {
		out = append(out, *o)
	}
	return out
}

// Update merges permitted fields (position/rotation/scale/colour). If the
// object is owned by someone other than requesterID, the update is silently
// ignored
func (r *Registry) Update(roomID, objectID, requesterID string, position *[3]float64, rotation *[4]float64, scale *[3]float64, colour *string) (Object, bool) {
	r.mu.Lock()
	obj, ok := r.roomMap(roomID)[objectID]
	if !ok {
		r.mu.Unlock()
		return Object{}, false
	}
	if obj.isOwned() && obj.OwnedBy != requesterID {
		r.mu.Unlock()
		return Object{}, false
	}
	if position != nil {
		obj.Position = *position
	}
	if rotation != nil {
		obj.Rotation = *rotation
	}
	if scale != nil {
		obj.Scale = *scale
	}
	if colour != nil {
		obj.Colour = *colour
	}
	obj.UpdatedAt = time.Now()
	snapshot := *obj
	r.mu.Unlock()

	r.emit(Event{Kind: "updated", RoomID: roomID, Object: snapshot})
	return snapshot, true
}

// Delete removes an object and broadcasts object-deleted.
func (r *Registry) Delete(roomID, objectID string) bool {
	r.mu.Lock()
	m := r.roomMap(roomID)
	if _, ok := m[objectID]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(m, objectID)
	r.mu.Unlock()

	r.emit(Event{Kind: "deleted", RoomID: roomID, ObjectID: objectID})
	return true
}

// Grab attempts to claim ownership. Success arms the idle timer and
// broadcasts object-grabbed to the whole room; failure notifies only the
// requester with grab-failed.
func (r *Registry) Grab(roomID, objectID, clientID string) (Object, bool, string) {
	r.mu.Lock()
	obj, ok := r.roomMap(roomID)[objectID]
	if !ok {
		r.mu.Unlock()
		return Object{}, false, ""
	}
	if obj.isOwned() && obj.OwnedBy != clientID {
		owner := obj.OwnedBy
		r.mu.Unlock()
		r.emit(Event{Kind: "grab_failed", RoomID: roomID, ObjectID: objectID, ActorID: clientID, OwnedBy: owner})
		return Object{}, false, owner
	}
	obj.OwnedBy = clientID
	obj.UpdatedAt = time.Now()
	obj.OwnershipExpiresAt = obj.UpdatedAt.Add(r.ownershipTimeout)
	snapshot := *obj
	r.mu.Unlock()

	r.emit(Event{Kind: "grabbed", RoomID: roomID, Object: snapshot, ActorID: clientID})
	return snapshot, true, ""
}

// Release clears ownership if clientID currently holds it, broadcasting
// object-released.
func (r *Registry) Release(roomID, objectID, clientID string) bool {
	r.mu.Lock()
	obj, ok := r.roomMap(roomID)[objectID]
	if !ok || obj.OwnedBy != clientID {
		r.mu.Unlock()
		return false
	}
	obj.OwnedBy = ""
	obj.OwnershipExpiresAt = time.Time{}
	obj.UpdatedAt = time.Now()
	r.mu.Unlock()

	r.emit(Event{Kind: "released", RoomID: roomID, ObjectID: objectID, ActorID: clientID})
	return true
}

// Move is the hot-path owner-driven position/rotation update: same
// authorisation as Update, but additionally re-arms the idle timer.
// Broadcasts object-moved to every room member except the mover.
func (r *Registry) Move(roomID, objectID, clientID string, position [3]float64, rotation [4]float64) bool {
	r.mu.Lock()
	obj, ok := r.roomMap(roomID)[objectID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if obj.isOwned() && obj.OwnedBy != clientID {
		r.mu.Unlock()
		return false
	}
	obj.Position = position
	obj.Rotation = rotation
	obj.UpdatedAt = time.Now()
	if obj.isOwned() {
		obj.OwnershipExpiresAt = obj.UpdatedAt.Add(r.ownershipTimeout)
	}
	snapshot := *obj
	r.mu.Unlock()

	r.emit(Event{Kind: "moved", RoomID: roomID, Object: snapshot, ActorID: clientID, Exclude: clientID})
	return true
}

// ReleaseAllOwnedBy unconditionally releases every object owned by clientID,
// across every room, on session teardown.
func (r *Registry) ReleaseAllOwnedBy(clientID string) {
	r.mu.Lock()
	var released []Event
	for roomID, m := range r.rooms {
		for id, obj := range m {
			if obj.OwnedBy == clientID {
				obj.OwnedBy = ""
				obj.OwnershipExpiresAt = time.Time{}
				obj.UpdatedAt = time.Now()
				released = append(released, Event{Kind: "released", RoomID: roomID, ObjectID: id, ActorID: clientID})
			}
		}
	}
	r.mu.Unlock()

	for _, e := range released {
		r.emit(e)
	}
}

// sweepLoop fires Release-equivalent events for every object whose
// ownership has expired, every interval.
func (r *Registry) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweepOnce()
		case <-r.stop:
			return
		}
	}
}

func (r *Registry) sweepOnce() {
	now := time.Now()
	r.mu.Lock()
	var expired []Event
	for roomID, m := range r.rooms {
		for id, obj := range m {
			if obj.isOwned() && !obj.OwnershipExpiresAt.IsZero() && now.After(obj.OwnershipExpiresAt) {
				owner := obj.OwnedBy
				obj.OwnedBy = ""
				obj.OwnershipExpiresAt = time.Time{}
				obj.UpdatedAt = now
				expired = append(expired, Event{Kind: "released", RoomID: roomID, ObjectID: id, ActorID: owner})
			}
		}
	}
	r.mu.Unlock()

	for _, e := range expired {
		r.emit(e)
	}
}
