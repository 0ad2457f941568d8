package server

import "testing"

func TestRegistryLastWriteWins(t *testing.T) {
	r := NewRegistry()

	first := &Session{Username: "alice"}
	second := &Session{Username: "alice"}

	if prev := r.Register(first); prev != nil {
		t.Fatalf("Expected no superseded session, got %v", prev)
	}
	prev := r.Register(second)
	if prev != first {
		t.Fatalf("Expected first session to be superseded")
	}

	if r.Len() != 1 {
		t.Errorf("Expected exactly one session for alice, got %d", r.Len())
	}
	snapshot := r.Snapshot()
	if len(snapshot) != 1 || snapshot[0] != second {
		t.Errorf("Expected snapshot to hold the newest session")
	}
}

func TestRegistryUnregisterIsCompareAndDelete(t *testing.T) {
	r := NewRegistry()

	stale := &Session{Username: "alice"}
	current := &Session{Username: "alice"}

	r.Register(stale)
	r.Register(current)

	// A handler finalizing its superseded session must not remove the new one.
	if r.Unregister(stale) {
		t.Error("Expected stale unregister to be a no-op")
	}
	if !r.IsOnline("alice") {
		t.Error("Expected alice to remain online")
	}

	if !r.Unregister(current) {
		t.Error("Expected current unregister to remove the mapping")
	}
	if r.IsOnline("alice") {
		t.Error("Expected alice to be offline")
	}

	// Unregistering twice is a no-op.
	if r.Unregister(current) {
		t.Error("Expected repeated unregister to be a no-op")
	}
}

func TestRegistryOnlineSet(t *testing.T) {
	r := NewRegistry()

	r.Register(&Session{Username: "alice"})
	r.Register(&Session{Username: "bob"})

	online := r.OnlineSet()
	if len(online) != 2 {
		t.Fatalf("Expected 2 online users, got %d", len(online))
	}
	for _, username := range []string{"alice", "bob"} {
		if _, ok := online[username]; !ok {
			t.Errorf("Expected %s in online set", username)
		}
	}

	// The set is a copy, not a live view.
	r.Register(&Session{Username: "carol"})
	if _, ok := online["carol"]; ok {
		t.Error("Expected snapshot set to be unaffected by later registration")
	}
}
