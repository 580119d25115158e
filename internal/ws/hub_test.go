package ws

import (
	"encoding/json"
	"testing"
)

type fakeSource map[string][]string

func (f fakeSource) ActiveChatIDs(userID string) ([]string, error) {
	return f[userID], nil
}

func newTestClient(h *Hub, userID string) *Client {
	return &Client{hub: h, send: make(chan []byte, sendBuffer), userID: userID}
}

func register(t *testing.T, h *Hub, userID string) *Client {
	t.Helper()
	c := newTestClient(h, userID)
	if err := h.register(c); err != nil {
		t.Fatalf("Failed to register %s: %v", userID, err)
	}
	return c
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("Failed to decode event: %v", err)
		}
		return ev
	default:
		t.Fatal("Expected a pending event, got none")
		return Event{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if ok {
			t.Fatalf("Expected no delivery, got %s", data)
		}
	default:
	}
}

func TestRegisterJoinsActiveChats(t *testing.T) {
	h := NewHub(fakeSource{"alice": {"c1", "c2"}}, nil)
	alice := register(t, h, "alice")

	h.Broadcast("c1", EventMessageNew, "one")
	h.Broadcast("c2", EventMessageNew, "two")
	h.Broadcast("c3", EventMessageNew, "stray")

	if ev := receive(t, alice); ev.ChatID != "c1" {
		t.Errorf("Expected event for c1, got %s", ev.ChatID)
	}
	if ev := receive(t, alice); ev.ChatID != "c2" {
		t.Errorf("Expected event for c2, got %s", ev.ChatID)
	}
	assertSilent(t, alice)
}

func TestBroadcastReachesAllSessionsInRoom(t *testing.T) {
	h := NewHub(fakeSource{"alice": {"c1"}, "bob": {"c1"}}, nil)
	alice := register(t, h, "alice")
	aliceTab := register(t, h, "alice")
	bob := register(t, h, "bob")

	h.Broadcast("c1", EventMessageNew, map[string]string{"content": "hi"})

	for _, c := range []*Client{alice, aliceTab, bob} {
		ev := receive(t, c)
		if ev.Type != EventMessageNew || ev.ChatID != "c1" {
			t.Errorf("Expected %s for c1, got %+v", EventMessageNew, ev)
		}
	}
}

func TestSubscribeUser(t *testing.T) {
	h := NewHub(fakeSource{}, nil)
	alice := register(t, h, "alice")

	h.Broadcast("c1", EventMessageNew, nil)
	assertSilent(t, alice)

	h.SubscribeUser("alice", "c1")
	h.Broadcast("c1", EventMessageNew, nil)
	if ev := receive(t, alice); ev.ChatID != "c1" {
		t.Errorf("Expected event for c1 after subscribe, got %+v", ev)
	}
}

func TestEvictUserStopsDelivery(t *testing.T) {
	h := NewHub(fakeSource{"alice": {"c1"}, "bob": {"c1"}}, nil)
	alice := register(t, h, "alice")
	aliceTab := register(t, h, "alice")
	bob := register(t, h, "bob")

	h.EvictUser("alice", "c1")
	h.Broadcast("c1", EventMemberRemoved, nil)

	assertSilent(t, alice)
	assertSilent(t, aliceTab)
	if ev := receive(t, bob); ev.Type != EventMemberRemoved {
		t.Errorf("Expected bob to still receive events, got %+v", ev)
	}
}

func TestSendToUserIgnoresRooms(t *testing.T) {
	h := NewHub(fakeSource{}, nil)
	alice := register(t, h, "alice")
	bob := register(t, h, "bob")

	h.SendToUser("alice", EventChatNew, "c9", map[string]string{"name": "bob"})

	ev := receive(t, alice)
	if ev.Type != EventChatNew || ev.ChatID != "c9" {
		t.Errorf("Expected %s for c9, got %+v", EventChatNew, ev)
	}
	assertSilent(t, bob)
}

func TestUnregisterLeavesAllRooms(t *testing.T) {
	h := NewHub(fakeSource{"alice": {"c1"}, "bob": {"c1"}}, nil)
	alice := register(t, h, "alice")
	bob := register(t, h, "bob")

	h.unregister(alice)

	if _, ok := <-alice.send; ok {
		t.Error("Expected the session's channel to be closed")
	}
	h.Broadcast("c1", EventMessageNew, nil)
	if ev := receive(t, bob); ev.Type != EventMessageNew {
		t.Errorf("Expected bob unaffected, got %+v", ev)
	}
}

func TestBroadcastDropsBackloggedSession(t *testing.T) {
	h := NewHub(fakeSource{"alice": {"c1"}}, nil)
	alice := register(t, h, "alice")

	for i := 0; i <= sendBuffer; i++ {
		h.Broadcast("c1", EventMessageNew, i)
	}

	// The overflowing broadcast dropped the session instead of blocking.
	drained := 0
	for range alice.send {
		drained++
	}
	if drained != sendBuffer {
		t.Errorf("Expected %d buffered events then close, got %d", sendBuffer, drained)
	}
}

func TestShutdownRefusesNewSessions(t *testing.T) {
	h := NewHub(fakeSource{}, nil)
	alice := register(t, h, "alice")

	h.Shutdown()

	if _, ok := <-alice.send; ok {
		t.Error("Expected existing sessions to be drained")
	}
	if err := h.register(newTestClient(h, "bob")); err == nil {
		t.Error("Expected registration after shutdown to fail")
	}
}

// gatedSource holds its single ActiveChatIDs call until released and signals
// when the call has started, so tests can land an eviction while a
// registration is mid-flight on a snapshot that predates the removal.
type gatedSource struct {
	entered chan struct{}
	gate    chan struct{}
	ids     []string
}

func (g *gatedSource) ActiveChatIDs(string) ([]string, error) {
	close(g.entered)
	<-g.gate
	return g.ids, nil
}

func TestEvictionDuringRegistration(t *testing.T) {
	source := &gatedSource{
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
		ids:     []string{"c1"},
	}
	h := NewHub(source, nil)
	c := newTestClient(h, "mallory")

	registered := make(chan error, 1)
	go func() { registered <- h.register(c) }()
	<-source.entered

	// The registration is now resolving its room set; the eviction must not
	// be able to slip in between that read and the joins.
	evicted := make(chan struct{})
	go func() {
		h.EvictUser("mallory", "c1")
		close(evicted)
	}()

	close(source.gate)
	if err := <-registered; err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	<-evicted

	h.Broadcast("c1", EventMessageNew, "after removal")
	assertSilent(t, c)
}

type countingPresence struct {
	connected, disconnected int
}

func (p *countingPresence) Connected(string)    { p.connected++ }
func (p *countingPresence) Heartbeat(string)    {}
func (p *countingPresence) Disconnected(string) { p.disconnected++ }

func TestPresenceLifecycle(t *testing.T) {
	p := &countingPresence{}
	h := NewHub(fakeSource{}, p)
	alice := register(t, h, "alice")
	h.unregister(alice)

	if p.connected != 1 || p.disconnected != 1 {
		t.Errorf("Expected one connect and one disconnect, got %d and %d", p.connected, p.disconnected)
	}
}
