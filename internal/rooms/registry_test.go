package rooms

import "testing"

func TestAddAssignsDefaultRoomWhenEmpty(t *testing.T) {
	r := New("")
	roomID, peers, colour := r.Add("alice", "")
	if roomID != "default" {
		t.Fatalf("expected default room, got %q", roomID)
	}
	if len(peers) != 0 {
		t.Fatalf("first member should have no peers, got %v", peers)
	}
	if colour == "" {
		t.Fatalf("expected a colour to be assigned")
	}
}

func TestAddReturnsExistingPeers(t *testing.T) {
	r := New("lobby")
	r.Add("alice", "room1")
	_, peers, _ := r.Add("bob", "room1")
	if len(peers) != 1 || peers[0] != "alice" {
		t.Fatalf("expected [alice] as existing peers, got %v", peers)
	}
}

func TestRemoveDropsEmptyRoom(t *testing.T) {
	r := New("lobby")
	r.Add("alice", "room1")
	r.Remove("alice")

	if _, ok := r.RoomOf("alice"); ok {
		t.Fatalf("alice should no longer belong to a room")
	}
	if members := r.Members("room1"); len(members) != 0 {
		t.Fatalf("room should be empty after last member leaves, got %v", members)
	}
}

func TestRemoveKeepsRoomAliveForRemainingMembers(t *testing.T) {
	r := New("lobby")
	r.Add("alice", "room1")
	r.Add("bob", "room1")
	r.Remove("alice")

	members := r.Members("room1")
	if len(members) != 1 || members[0] != "bob" {
		t.Fatalf("expected [bob] to remain, got %v", members)
	}
}

func TestPoseRoundTrip(t *testing.T) {
	r := New("lobby")
	r.Add("alice", "room1")

	if _, ok := r.Pose("alice"); ok {
		t.Fatalf("no pose should be reported before UpdatePose is called")
	}

	pose := Pose{Position: [3]float64{1, 2, 3}, Rotation: [3]float64{0, 0, 0}, Quaternion: [4]float64{0, 0, 0, 1}}
	r.UpdatePose("alice", pose)

	got, ok := r.Pose("alice")
	if !ok || got != pose {
		t.Fatalf("pose did not round-trip: got %+v", got)
	}
}

func TestUpdatePoseForUnknownClientIsNoop(t *testing.T) {
	r := New("lobby")
	r.UpdatePose("ghost", Pose{Position: [3]float64{1, 1, 1}})
	if _, ok := r.Pose("ghost"); ok {
		t.Fatalf("unknown client should never produce a pose")
	}
}

func TestPeersOfExcludesSelf(t *testing.T) {
	r := New("lobby")
	r.Add("alice", "room1")
	r.Add("bob", "room1")
	r.Add("carol", "room1")

	peers := r.PeersOf("alice")
	if len(peers) != 2 {
		t.Fatalf("expected 2 peers, got %v", peers)
	}
	for _, p := range peers {
		if p == "alice" {
			t.Fatalf("PeersOf should exclude the caller itself")
		}
	}
}

func TestUserPositionsOnlyIncludesKnownPoses(t *testing.T) {
	r := New("lobby")
	r.Add("alice", "room1")
	r.Add("bob", "room1")
	r.UpdatePose("alice", Pose{Position: [3]float64{5, 5, 5}})

	positions := r.UserPositions("room1")
	if len(positions) != 1 {
		t.Fatalf("expected exactly one known pose, got %d", len(positions))
	}
	if _, ok := positions["alice"]; !ok {
		t.Fatalf("expected alice's pose to be present")
	}
}

func TestMembersOfUnknownRoomIsEmpty(t *testing.T) {
	r := New("lobby")
	if members := r.Members("nonexistent"); members != nil {
		t.Fatalf("expected nil for an unknown room, got %v", members)
	}
}
