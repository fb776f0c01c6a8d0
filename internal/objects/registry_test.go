package objects

import (
	"testing"
	"time"
)

func drain(t *testing.T, r *Registry, want string) Event {
	t.Helper()
	select {
	case e := <-r.Events():
		if e.Kind != want {
			t.Fatalf("got event kind %q, want %q", e.Kind, want)
		}
		return e
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %q event", want)
	}
	return Event{}
}

func TestCreateGetList(t *testing.T) {
	r := New(5*time.Second, 50*time.Millisecond)
	defer r.Close()

	obj := r.Create("room1", "cube", [3]float64{1, 2, 3}, [4]float64{0, 0, 0, 1}, [3]float64{1, 1, 1}, "#fff", "alice")
	drain(t, r, "created")

	got, ok := r.Get("room1", obj.ID)
	if !ok || got.ID != obj.ID {
		t.Fatalf("Get did not return the created object")
	}

	list := r.List("room1")
	if len(list) != 1 {
		t.Fatalf("expected 1 object in room, got %d", len(list))
	}
}

func TestGrabExclusivityAndContention(t *testing.T) {
	r := New(5*time.Second, 50*time.Millisecond)
	defer r.Close()

	obj := r.Create("room1", "cube", [3]float64{}, [4]float64{}, [3]float64{1, 1, 1}, "#fff", "alice")
	drain(t, r, "created")

	_, ok, _ := r.Grab("room1", obj.ID, "alice")
	if !ok {
		t.Fatalf("first grab should succeed")
	}
	drain(t, r, "grabbed")

	_, ok, owner := r.Grab("room1", obj.ID, "bob")
	if ok {
		t.Fatalf("second grab by a different client should fail")
	}
	if owner != "alice" {
		t.Fatalf("contended grab should report the current owner, got %q", owner)
	}
	ev := drain(t, r, "grab_failed")
	if ev.ActorID != "bob" || ev.OwnedBy != "alice" {
		t.Fatalf("grab_failed event mismatch: %+v", ev)
	}

	// Re-grabbing by the current owner is idempotent, not contended.
	_, ok, _ = r.Grab("room1", obj.ID, "alice")
	if !ok {
		t.Fatalf("re-grab by current owner should succeed")
	}
	drain(t, r, "grabbed")
}

func TestReleaseByNonOwnerIsNoop(t *testing.T) {
	r := New(5*time.Second, 50*time.Millisecond)
	defer r.Close()

	obj := r.Create("room1", "cube", [3]float64{}, [4]float64{}, [3]float64{1, 1, 1}, "#fff", "alice")
	drain(t, r, "created")
	r.Grab("room1", obj.ID, "alice")
	drain(t, r, "grabbed")

	if r.Release("room1", obj.ID, "bob") {
		t.Fatalf("release by non-owner should fail")
	}
	if !r.Release("room1", obj.ID, "alice") {
		t.Fatalf("release by owner should succeed")
	}
	drain(t, r, "released")
}

func TestUpdateSilentlyIgnoredWhenOwnedByAnother(t *testing.T) {
	r := New(5*time.Second, 50*time.Millisecond)
	defer r.Close()

	obj := r.Create("room1", "cube", [3]float64{}, [4]float64{}, [3]float64{1, 1, 1}, "#fff", "alice")
	drain(t, r, "created")
	r.Grab("room1", obj.ID, "alice")
	drain(t, r, "grabbed")

	newPos := [3]float64{9, 9, 9}
	_, ok := r.Update("room1", obj.ID, "bob", &newPos, nil, nil, nil)
	if ok {
		t.Fatalf("update by non-owner should be rejected")
	}

	got, _ := r.Get("room1", obj.ID)
	if got.Position == newPos {
		t.Fatalf("object position should not have changed")
	}
}

func TestIdleOwnershipSweepReleases(t *testing.T) {
	r := New(30*time.Millisecond, 10*time.Millisecond)
	defer r.Close()

	obj := r.Create("room1", "cube", [3]float64{}, [4]float64{}, [3]float64{1, 1, 1}, "#fff", "alice")
	drain(t, r, "created")
	r.Grab("room1", obj.ID, "alice")
	drain(t, r, "grabbed")

	ev := drain(t, r, "released")
	if ev.ObjectID != obj.ID || ev.ActorID != "alice" {
		t.Fatalf("unexpected sweep-released event: %+v", ev)
	}

	got, _ := r.Get("room1", obj.ID)
	if got.OwnedBy != "" {
		t.Fatalf("object should be unowned after idle sweep")
	}
}

func TestMoveReArmsIdleTimerAndExcludesMover(t *testing.T) {
	r := New(5*time.Second, 50*time.Millisecond)
	defer r.Close()

	obj := r.Create("room1", "cube", [3]float64{}, [4]float64{}, [3]float64{1, 1, 1}, "#fff", "alice")
	drain(t, r, "created")
	r.Grab("room1", obj.ID, "alice")
	drain(t, r, "grabbed")

	if !r.Move("room1", obj.ID, "alice", [3]float64{1, 1, 1}, [4]float64{0, 0, 0, 1}) {
		t.Fatalf("move by owner should succeed")
	}
	ev := drain(t, r, "moved")
	if ev.Exclude != "alice" {
		t.Fatalf("moved event should exclude the mover, got %q", ev.Exclude)
	}
}

func TestReleaseAllOwnedByCoversEveryRoom(t *testing.T) {
	r := New(5*time.Second, 50*time.Millisecond)
	defer r.Close()

	a := r.Create("room1", "cube", [3]float64{}, [4]float64{}, [3]float64{1, 1, 1}, "#fff", "alice")
	drain(t, r, "created")
	b := r.Create("room2", "cube", [3]float64{}, [4]float64{}, [3]float64{1, 1, 1}, "#fff", "alice")
	drain(t, r, "created")

	r.Grab("room1", a.ID, "alice")
	drain(t, r, "grabbed")
	r.Grab("room2", b.ID, "alice")
	drain(t, r, "grabbed")

	r.ReleaseAllOwnedBy("alice")
	drain(t, r, "released")
	drain(t, r, "released")

	ga, _ := r.Get("room1", a.ID)
	gb, _ := r.Get("room2", b.ID)
	if ga.OwnedBy != "" || gb.OwnedBy != "" {
		t.Fatalf("both objects should be released across rooms")
	}
}
