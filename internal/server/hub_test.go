package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/minicanvas/ws-backend/internal/store"
)

func newTestClient(identity string) *Client {
	return NewClient(nil, nil, identity, "127.0.0.1:0")
}

func receivePayload(t *testing.T, c *Client, timeout time.Duration) []byte {
	t.Helper()
	select {
	case payload := <-c.GetSendChan():
		return payload
	case <-time.After(timeout):
		t.Fatalf("Timed out waiting for payload on client %s", c.Identity())
		return nil
	}
}

func expectNoPayload(t *testing.T, c *Client, timeout time.Duration) {
	t.Helper()
	select {
	case payload := <-c.GetSendChan():
		t.Fatalf("Expected no payload for client %s, got %s", c.Identity(), payload)
	case <-time.After(timeout):
	}
}

// failingStore rejects every append, for exercising the
// persistence-failure policy.
type failingStore struct{}

func (failingStore) Append(context.Context, store.Event) error {
	return errors.New("store unavailable")
}

func (failingStore) Close(context.Context) error { return nil }

// TestAdmitAndDrop verifies that an entry exists in the registry iff the
// client was admitted and not since dropped, and that dropping twice is
// safe.
func TestAdmitAndDrop(t *testing.T) {
	h := NewHub()
	c := newTestClient("user-1")

	if !h.admit(c) {
		t.Fatal("admit returned false for a new client")
	}
	if c.Identity() != "user-1" {
		t.Errorf("Expected identity user-1, got %q", c.Identity())
	}
	if h.admit(c) {
		t.Error("admit returned true for an already-admitted client")
	}

	h.joinRoom(c, "42")
	if got := len(h.MembersOf("42")); got != 1 {
		t.Fatalf("Expected 1 member of room 42, got %d", got)
	}

	h.drop(c)
	if got := len(h.MembersOf("42")); got != 0 {
		t.Errorf("Expected 0 members of room 42 after drop, got %d", got)
	}

	// Second drop must be a no-op; a double close of the send channel
	// would panic here.
	h.drop(c)
}

// TestAdmitNilClient verifies the defensive nil guard.
func TestAdmitNilClient(t *testing.T) {
	h := NewHub()
	if h.admit(nil) {
		t.Error("admit accepted a nil client")
	}
}

// TestJoinRoomIdempotent verifies that joining the same room twice yields
// membership exactly once.
func TestJoinRoomIdempotent(t *testing.T) {
	h := NewHub()
	c := newTestClient("user-1")
	h.admit(c)

	h.joinRoom(c, "42")
	h.joinRoom(c, "42")

	if got := len(h.MembersOf("42")); got != 1 {
		t.Errorf("Expected membership exactly once, got %d entries", got)
	}
}

// TestLeaveRoomNotJoined verifies that leaving a room that was never
// joined is a no-op.
func TestLeaveRoomNotJoined(t *testing.T) {
	h := NewHub()
	c := newTestClient("user-1")
	h.admit(c)
	h.joinRoom(c, "42")

	h.leaveRoom(c, "7")

	if got := len(h.MembersOf("42")); got != 1 {
		t.Errorf("Leaving an unjoined room disturbed other memberships: got %d", got)
	}
}

// TestJoinRoomAfterDropIgnored verifies that membership mutations from a
// connection that already tore down do not resurrect registry state.
func TestJoinRoomAfterDropIgnored(t *testing.T) {
	h := NewHub()
	c := newTestClient("user-1")
	h.admit(c)
	h.drop(c)

	h.joinRoom(c, "42")

	if got := len(h.MembersOf("42")); got != 0 {
		t.Errorf("Expected no members after post-drop join, got %d", got)
	}
}

// TestMembersOfFiltersByRoom verifies that membership queries return only
// the clients subscribed to the requested room.
func TestMembersOfFiltersByRoom(t *testing.T) {
	h := NewHub()
	c1 := newTestClient("user-1")
	c2 := newTestClient("user-2")
	c3 := newTestClient("user-3")
	for _, c := range []*Client{c1, c2, c3} {
		h.admit(c)
	}
	h.joinRoom(c1, "42")
	h.joinRoom(c2, "42")
	h.joinRoom(c2, "7")
	h.joinRoom(c3, "7")

	members := h.MembersOf("42")
	if len(members) != 2 {
		t.Fatalf("Expected 2 members of room 42, got %d", len(members))
	}
	for _, m := range members {
		if m == c3 {
			t.Error("Client subscribed only to room 7 appeared in room 42")
		}
	}
}

// TestHandleBroadcastTargetsRoomMembers verifies fan-out reaches every
// member of the target room and nobody else, sender included.
func TestHandleBroadcastTargetsRoomMembers(t *testing.T) {
	h := NewHub()
	sender := newTestClient("user-1")
	member := newTestClient("user-2")
	outsider := newTestClient("user-3")
	for _, c := range []*Client{sender, member, outsider} {
		h.admit(c)
	}
	h.joinRoom(sender, "42")
	h.joinRoom(member, "42")
	h.joinRoom(outsider, "7")

	h.handleBroadcast(BroadcastMessage{RoomID: "42", Payload: []byte("hello")})

	if got := receivePayload(t, sender, time.Second); string(got) != "hello" {
		t.Errorf("Sender echo: expected %q, got %q", "hello", got)
	}
	if got := receivePayload(t, member, time.Second); string(got) != "hello" {
		t.Errorf("Member delivery: expected %q, got %q", "hello", got)
	}
	expectNoPayload(t, outsider, 50*time.Millisecond)
}

// TestHandleBroadcastIsolatesFailedRecipient verifies that one recipient
// with a full send buffer neither blocks nor aborts delivery to the rest,
// and is removed from the registry.
func TestHandleBroadcastIsolatesFailedRecipient(t *testing.T) {
	h := NewHub()
	stalled := newTestClient("user-1")
	healthy := newTestClient("user-2")
	h.admit(stalled)
	h.admit(healthy)
	h.joinRoom(stalled, "42")
	h.joinRoom(healthy, "42")

	for i := 0; i < cap(stalled.send); i++ {
		stalled.send <- []byte("backlog")
	}

	h.handleBroadcast(BroadcastMessage{RoomID: "42", Payload: []byte("hello")})

	drained := false
	for !drained {
		select {
		case payload := <-healthy.send:
			if string(payload) == "hello" {
				drained = true
			}
		case <-time.After(time.Second):
			t.Fatal("Healthy recipient never received the broadcast")
		}
	}

	if got := len(h.MembersOf("42")); got != 1 {
		t.Errorf("Expected stalled client to be removed, room has %d members", got)
	}
}

// TestPublishPersistsThenBroadcasts verifies the publish path: the event
// is appended to the store and the frame is delivered to room members.
func TestPublishPersistsThenBroadcasts(t *testing.T) {
	h := NewHub()
	mem := store.NewMemoryStore()
	h.UseStore(mem)

	c1 := newTestClient("user-1")
	c2 := newTestClient("user-2")
	h.admit(c1)
	h.admit(c2)
	h.joinRoom(c1, "42")
	h.joinRoom(c2, "42")

	go h.Run()
	defer func() { _ = h.Shutdown(time.Second) }()

	h.Publish("42", "hello", "user-1")

	expected := `{"type":"chat","message":"hello","roomId":"42"}`
	if got := receivePayload(t, c2, time.Second); string(got) != expected {
		t.Errorf("Expected frame %s, got %s", expected, got)
	}
	if got := receivePayload(t, c1, time.Second); string(got) != expected {
		t.Errorf("Expected sender echo %s, got %s", expected, got)
	}

	events := mem.Events("42")
	if len(events) != 1 {
		t.Fatalf("Expected 1 persisted event, got %d", len(events))
	}
	if events[0].SenderID != "user-1" || events[0].Message != "hello" {
		t.Errorf("Persisted event mismatch: %+v", events[0])
	}
}

// TestPublishContinuesOnPersistFailure verifies the availability-first
// policy: a failing append is logged and the broadcast still goes out.
func TestPublishContinuesOnPersistFailure(t *testing.T) {
	h := NewHub()
	h.UseStore(failingStore{})

	c := newTestClient("user-1")
	h.admit(c)
	h.joinRoom(c, "42")

	go h.Run()
	defer func() { _ = h.Shutdown(time.Second) }()

	h.Publish("42", "hello", "user-1")

	if got := receivePayload(t, c, time.Second); len(got) == 0 {
		t.Error("Expected broadcast despite persistence failure")
	}
}

// TestDroppedClientReceivesNothing verifies that after removal a former
// member no longer appears in MembersOf and no delivery is attempted.
func TestDroppedClientReceivesNothing(t *testing.T) {
	h := NewHub()
	c1 := newTestClient("user-1")
	c2 := newTestClient("user-2")
	h.admit(c1)
	h.admit(c2)
	h.joinRoom(c1, "42")
	h.joinRoom(c2, "42")

	h.drop(c2)
	h.handleBroadcast(BroadcastMessage{RoomID: "42", Payload: []byte("hello")})

	if got := receivePayload(t, c1, time.Second); string(got) != "hello" {
		t.Errorf("Remaining member should still receive: got %q", got)
	}
	for _, m := range h.MembersOf("42") {
		if m == c2 {
			t.Error("Dropped client still present in MembersOf")
		}
	}
}
