// Package rooms implements the Room Registry: assigns clients to
// rooms, tracks membership and per-user pose/colour, and enforces that a
// client belongs to exactly one room between Add and Remove. One mutex
// guards the whole registry — membership changes are infrequent compared to
// per-room object operations.
package rooms

import (
	"math/rand"
	"sync"
)

// Palette is the fixed set of colours picked from at random to distinguish
// concurrent users
var Palette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
}

// Pose is the last-known head/body pose for a member, used for broadcast
// and for the foveated selector.
type Pose struct {
	Position   [3]float64
	Rotation   [3]float64
	Quaternion [4]float64
}

type member struct {
	clientID string
	colour   string
	pose     Pose
	hasPose  bool
}

// Room is a logical grouping of members.
type Room struct {
	ID      string
	members map[string]*member
}

// Registry is the process-wide room membership table.
type Registry struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	clientRoom  map[string]string
	defaultRoom string
}

// New creates a Registry whose default room is defaultRoom ("default" if
// unset).
func New(defaultRoom string) *Registry {
	if defaultRoom == "" {
		defaultRoom = "default"
	}
	return &Registry{
		rooms:      make(map[string]*Room),
		clientRoom: make(map[string]string),
		defaultRoom: defaultRoom,
	}
}

// Add assigns clientID to roomID (or the default room when empty), returns
// the room id, the existing peer ids, and the colour assigned to clientID.
func (r *Registry) Add(clientID, roomID string) (assignedRoom string, peers []string, colour string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if roomID == "" {
		roomID = r.defaultRoom
	}

	room, ok := r.rooms[roomID]
	if !ok {
		room = &Room{ID: roomID, members: make(map[string]*member)}
		r.rooms[roomID] = room
	}

	peers = make([]string, 0, len(room.members))
	for id := range room.members {
		peers = append(peers, id)
	}

	colour = Palette[rand.Intn(len(Palette))]
	room.members[clientID] = &member{clientID: clientID, colour: colour}
	r.clientRoom[clientID] = roomID

	return roomID, peers, colour
}

// Remove detaches clientID from its room, dropping the room if it becomes
// empty.
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.clientRoom[clientID]
	if !ok {
		return
	}
	delete(r.clientRoom, clientID)

	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(room.members, clientID)
	if len(room.members) == 0 {
		delete(r.rooms, roomID)
	}
}

// UpdatePose snapshots the latest pose for clientID.
func (r *Registry) UpdatePose(clientID string, pose Pose) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.clientRoom[clientID]
	if !ok {
		return
	}
	room := r.rooms[roomID]
	if room == nil {
		return
	}
	if m, ok := room.members[clientID]; ok {
		m.pose = pose
		m.hasPose = true
	}
}

// Pose returns the last snapshot for clientID, if any.
func (r *Registry) Pose(clientID string) (Pose, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.clientRoom[clientID]
	if !ok {
		return Pose{}, false
	}
	room := r.rooms[roomID]
	if room == nil {
		return Pose{}, false
	}
	m, ok := room.members[clientID]
	if !ok || !m.hasPose {
		return Pose{}, false
	}
	return m.pose, true
}

// RoomOf returns the room a client currently belongs to.
func (r *Registry) RoomOf(clientID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.clientRoom[clientID]
	return roomID, ok
}

// PeersOf returns the other members of clientID's room.
func (r *Registry) PeersOf(clientID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.clientRoom[clientID]
	if !ok {
		return nil
	}
	room := r.rooms[roomID]
	if room == nil {
		return nil
	}
	peers := make([]string, 0, len(room.members))
	for id := range room.members {
		if id != clientID {
			peers = append(peers, id)
		}
	}
	return peers
}

// Members returns every clientID currently in roomID.
func (r *Registry) Members(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[roomID]
	if room == nil {
		return nil
	}
	out := make([]string, 0, len(room.members))
	for id := range room.members {
		out = append(out, id)
	}
	return out
}

// UserPositions returns a snapshot of every known pose in roomID, keyed by
// clientID, for inclusion in the welcome payload.
func (r *Registry) UserPositions(roomID string) map[string]Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[roomID]
	if room == nil {
		return nil
	}
	out := make(map[string]Pose, len(room.members))
	for id, m := range room.members {
		if m.hasPose {
			out[id] = m.pose
		}
	}
	return out
}
