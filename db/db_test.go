package db

import (
	"os"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	tmpfile, err := os.CreateTemp("", "relay-test-*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpfile.Close()
	os.Remove(tmpfile.Name()) // SQLite recreates it

	store, err := New(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
		os.Remove(tmpfile.Name())
	})

	return store
}

func TestRegisterUserIdempotent(t *testing.T) {
	store := setupTestStore(t)

	for i := 0; i < 3; i++ {
		if err := store.RegisterUser("alice"); err != nil {
			t.Fatalf("RegisterUser failed on attempt %d: %v", i, err)
		}
	}

	users, err := store.ListRegisteredUsers()
	if err != nil {
		t.Fatalf("ListRegisteredUsers failed: %v", err)
	}
	if len(users) != 1 || users[0] != "alice" {
		t.Errorf("Expected [alice], got %v", users)
	}
}

func TestStoreMessageAssignsMonotonicIDs(t *testing.T) {
	store := setupTestStore(t)

	first, err := store.StoreMessage("alice", "bob", "one")
	if err != nil {
		t.Fatalf("StoreMessage failed: %v", err)
	}
	second, err := store.StoreMessage("alice", "bob", "two")
	if err != nil {
		t.Fatalf("StoreMessage failed: %v", err)
	}

	if second.ID <= first.ID {
		t.Errorf("Expected monotonic ids, got %d then %d", first.ID, second.ID)
	}
}

func TestFetchUndeliveredOrdering(t *testing.T) {
	store := setupTestStore(t)

	contents := []string{"one", "two", "three"}
	for _, content := range contents {
		if _, err := store.StoreMessage("alice", "bob", content); err != nil {
			t.Fatalf("StoreMessage failed: %v", err)
		}
	}
	if _, err := store.StoreMessage("alice", "carol", "other recipient"); err != nil {
		t.Fatalf("StoreMessage failed: %v", err)
	}

	messages, err := store.FetchUndelivered("bob")
	if err != nil {
		t.Fatalf("FetchUndelivered failed: %v", err)
	}

	if len(messages) != len(contents) {
		t.Fatalf("Expected %d messages, got %d", len(contents), len(messages))
	}
	for i, m := range messages {
		if m.Content != contents[i] {
			t.Errorf("Message %d: expected %q, got %q", i, contents[i], m.Content)
		}
		if m.Sender != "alice" || m.Recipient != "bob" {
			t.Errorf("Message %d: unexpected addressing %s -> %s", i, m.Sender, m.Recipient)
		}
		if i > 0 && messages[i].ID <= messages[i-1].ID {
			t.Errorf("Messages out of id order: %d after %d", messages[i].ID, messages[i-1].ID)
		}
	}
}

func TestMarkDeliveredFlipsOnlyGivenIDs(t *testing.T) {
	store := setupTestStore(t)

	first, _ := store.StoreMessage("alice", "bob", "one")
	second, _ := store.StoreMessage("alice", "bob", "two")
	other, _ := store.StoreMessage("alice", "carol", "three")

	if err := store.MarkDelivered([]int64{first.ID}); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}

	bobPending, err := store.FetchUndelivered("bob")
	if err != nil {
		t.Fatalf("FetchUndelivered failed: %v", err)
	}
	if len(bobPending) != 1 || bobPending[0].ID != second.ID {
		t.Errorf("Expected only id %d pending for bob, got %v", second.ID, bobPending)
	}

	carolPending, err := store.FetchUndelivered("carol")
	if err != nil {
		t.Fatalf("FetchUndelivered failed: %v", err)
	}
	if len(carolPending) != 1 || carolPending[0].ID != other.ID {
		t.Errorf("Expected carol's message untouched, got %v", carolPending)
	}
}

func TestMarkDeliveredEmptySetIsNoOp(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.StoreMessage("alice", "bob", "pending"); err != nil {
		t.Fatalf("StoreMessage failed: %v", err)
	}

	if err := store.MarkDelivered(nil); err != nil {
		t.Fatalf("MarkDelivered(nil) failed: %v", err)
	}
	if err := store.MarkDelivered([]int64{}); err != nil {
		t.Fatalf("MarkDelivered(empty) failed: %v", err)
	}

	pending, err := store.FetchUndelivered("bob")
	if err != nil {
		t.Fatalf("FetchUndelivered failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Expected 1 pending message, got %d", len(pending))
	}
}

func TestAuthenticate(t *testing.T) {
	store := setupTestStore(t)

	// Unknown users are accepted; they get registered on login.
	ok, err := store.Authenticate("newcomer", "anything")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !ok {
		t.Error("Expected unknown user to be accepted")
	}

	// Users without a stored password are accepted regardless.
	if err := store.RegisterUser("open"); err != nil {
		t.Fatalf("RegisterUser failed: %v", err)
	}
	ok, err = store.Authenticate("open", "whatever")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !ok {
		t.Error("Expected password-less user to be accepted")
	}

	// A stored password is enforced.
	if err := store.SetPassword("alice", "secret"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	ok, err = store.Authenticate("alice", "secret")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !ok {
		t.Error("Expected correct password to be accepted")
	}
	ok, err = store.Authenticate("alice", "wrong")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if ok {
		t.Error("Expected wrong password to be rejected")
	}
}

func TestCountUndelivered(t *testing.T) {
	store := setupTestStore(t)

	first, _ := store.StoreMessage("alice", "bob", "one")
	store.StoreMessage("alice", "carol", "two")

	count, err := store.CountUndelivered()
	if err != nil {
		t.Fatalf("CountUndelivered failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 pending, got %d", count)
	}

	if err := store.MarkDelivered([]int64{first.ID}); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}

	count, err = store.CountUndelivered()
	if err != nil {
		t.Fatalf("CountUndelivered failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 pending, got %d", count)
	}
}
