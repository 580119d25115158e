package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
)

// Event is the wire shape of everything the server pushes. Delivery is
// at-most-once: sessions that are offline at broadcast time re-fetch state
// over HTTP on reconnect; the store is the source of truth.
type Event struct {
	Type    string      `json:"type"`
	ChatID  string      `json:"chat_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

const (
	EventMessageNew    = "message:new"
	EventMemberAdded   = "member:added"
	EventMemberRemoved = "member:removed"
	EventAdminToggled  = "admin:toggled"
	EventChatNew       = "chat:new"
	EventChatUpdated   = "chat:updated"
)

// RoomSource computes the room set for a connecting session.
type RoomSource interface {
	ActiveChatIDs(userID string) ([]string, error)
}

// Presence is notified of session lifecycle. Optional; a nil tracker is a
// no-op.
type Presence interface {
	Connected(userID string)
	Heartbeat(userID string)
	Disconnected(userID string)
}

// Hub is the room registry: one room per chat, holding the live sessions
// that should receive its events. All mutations and broadcasts take the same
// lock, so an eviction is fully applied before any broadcast issued after it
// delivers anything.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[*Client]bool
	users  map[string]map[*Client]bool
	closed bool

	source   RoomSource
	presence Presence
}

func NewHub(source RoomSource, presence Presence) *Hub {
	return &Hub{
		rooms:    make(map[string]map[*Client]bool),
		users:    make(map[string]map[*Client]bool),
		source:   source,
		presence: presence,
	}
}

// register subscribes a freshly authenticated session to one room per chat
// the user is an active member of, computed from the store. A reconnect
// carries no state over; the room set is always recomputed here.
//
// The membership read and the joins form one critical section under the
// registry lock. An eviction is therefore ordered either before the read,
// in which case the snapshot no longer contains the chat, or after the
// joins, in which case it removes this session. A snapshot from before a
// removal can never be joined after the matching eviction has run.
func (h *Hub) register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("hub is shut down")
	}

	chatIDs, err := h.source.ActiveChatIDs(c.userID)
	if err != nil {
		return err
	}

	if h.users[c.userID] == nil {
		h.users[c.userID] = make(map[*Client]bool)
	}
	h.users[c.userID][c] = true

	for _, id := range chatIDs {
		h.join(id, c)
	}

	if h.presence != nil {
		h.presence.Connected(c.userID)
	}
	return nil
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(c)
	if h.presence != nil {
		h.presence.Disconnected(c.userID)
	}
}

// join and drop run with h.mu held.
func (h *Hub) join(chatID string, c *Client) {
	if h.rooms[chatID] == nil {
		h.rooms[chatID] = make(map[*Client]bool)
	}
	h.rooms[chatID][c] = true
}

func (h *Hub) drop(c *Client) {
	if sessions, ok := h.users[c.userID]; ok && sessions[c] {
		delete(sessions, c)
		if len(sessions) == 0 {
			delete(h.users, c.userID)
		}
		close(c.send)
	}
	for chatID, room := range h.rooms {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, chatID)
		}
	}
}

// SubscribeUser adds every live session of the user to the chat's room.
func (h *Hub) SubscribeUser(userID, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.users[userID] {
		h.join(chatID, c)
	}
}

// EvictUser removes every live session of the user from the chat's room.
// Synchronous: once this returns, no later broadcast for the chat reaches
// the user.
func (h *Hub) EvictUser(userID, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[chatID]
	for c := range h.users[userID] {
		delete(room, c)
	}
	if len(room) == 0 {
		delete(h.rooms, chatID)
	}
}

// Broadcast fans an event out to every session currently in the chat's room.
// A session whose send buffer is full is dropped rather than blocking the
// registry.
func (h *Hub) Broadcast(chatID, eventType string, payload interface{}) {
	data, err := json.Marshal(Event{Type: eventType, ChatID: chatID, Payload: payload})
	if err != nil {
		log.Printf("ws: marshal %s event: %v", eventType, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[chatID] {
		select {
		case c.send <- data:
		default:
			h.drop(c)
		}
	}
}

// SendToUser delivers an event to every live session of one user,
// independent of rooms (e.g. chat:new for a DM counterpart).
func (h *Hub) SendToUser(userID, eventType, chatID string, payload interface{}) {
	data, err := json.Marshal(Event{Type: eventType, ChatID: chatID, Payload: payload})
	if err != nil {
		log.Printf("ws: marshal %s event: %v", eventType, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.users[userID] {
		select {
		case c.send <- data:
		default:
			h.drop(c)
		}
	}
}

// Shutdown drains every session and refuses new registrations.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, sessions := range h.users {
		for c := range sessions {
			close(c.send)
		}
	}
	h.users = make(map[string]map[*Client]bool)
	h.rooms = make(map[string]map[*Client]bool)
}
