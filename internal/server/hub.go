// Package server coordinates client registration, room membership, and
// event fan-out for the relay via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/minicanvas/ws-backend/internal/logging"
	"github.com/minicanvas/ws-backend/internal/store"
)

const persistTimeout = 5 * time.Second

// Hub is the single owner of all live connection entries. It tracks which
// client belongs to which rooms, persists published events, and fans each
// event out to the current members of its target room. All registry
// mutations are serialized either through the run loop or under the hub
// mutex.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan BroadcastMessage
	register   chan *Client
	unregister chan *Client
	store      store.EventStore
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub instance. Events are persisted
// to an in-memory store until UseStore installs a durable one.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan BroadcastMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		store:      store.NewMemoryStore(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// UseStore installs the event store used by Publish.
func (h *Hub) UseStore(st store.EventStore) {
	if st == nil {
		return
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.store = st
}

func (h *Hub) eventStore() store.EventStore {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.store
}

// admit inserts the client into the registry. A nil client or one that
// was already admitted is a defensive no-op.
func (h *Hub) admit(client *Client) bool {
	if client == nil {
		logging.Warnf("Received nil client registration; skipping")
		return false
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.clients[client] {
		return false
	}
	client.closed = false
	h.clients[client] = true
	logging.Infof("Client %s registered for user %s from %s. Total clients: %d",
		client.id, client.identity, client.addr, len(h.clients))
	return true
}

// drop removes the client's entry and closes its send channel exactly
// once. Dropping an unknown client is a no-op, which guards double-close
// races between the read and write pumps.
func (h *Hub) drop(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	logging.Infof("Client %s for user %s unregistered. Total clients: %d",
		client.id, client.identity, clientCount)
}

// joinRoom adds the room to the client's subscription set. Duplicate
// joins are tolerated. Called synchronously from the client's read pump
// so a join is always visible before any later publish from the same
// connection.
func (h *Hub) joinRoom(client *Client, room RoomID) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	client.rooms[room] = struct{}{}
}

// leaveRoom removes the room from the client's subscription set. Leaving
// a room that was never joined is a no-op.
func (h *Hub) leaveRoom(client *Client, room RoomID) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(client.rooms, room)
}

// MembersOf returns the clients currently subscribed to the given room,
// evaluated at call time. Expected room sizes are small, so a live scan
// over the registry is preferred over an incrementally maintained index.
func (h *Hub) MembersOf(room RoomID) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var members []*Client
	for client := range h.clients {
		if _, ok := client.rooms[room]; ok {
			members = append(members, client)
		}
	}
	return members
}

// Publish appends the event to the store and hands it to the run loop for
// fan-out. Persistence failures are logged and do not block delivery:
// live fan-out is the primary value of the relay and a transient storage
// hiccup must not freeze the room.
func (h *Hub) Publish(room RoomID, message, senderID string) {
	// Snapshot the store reference first; the registry lock is never
	// held across the blocking append.
	st := h.eventStore()
	ctx, cancel := context.WithTimeout(h.ctx, persistTimeout)
	defer cancel()
	if err := st.Append(ctx, store.Event{
		RoomID:    string(room),
		Message:   message,
		SenderID:  senderID,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		logging.Errorf("Failed to persist event for room %s: %v; broadcasting anyway", room, err)
	}

	payload, err := json.Marshal(ChatFrame{Type: MessageTypeChat, Message: message, RoomID: room})
	if err != nil {
		logging.Errorf("Failed to encode chat frame for room %s: %v", room, err)
		return
	}

	select {
	case h.broadcast <- BroadcastMessage{RoomID: room, Payload: payload}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	// Queue without blocking; a full queue marks the client for removal.
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, and room fan-out. This method should be called in a
// separate goroutine as it runs indefinitely.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if !h.admit(client) {
				continue
			}

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.drop(client)

		case broadcastMsg := <-h.broadcast:
			h.handleBroadcast(broadcastMsg)
		}
	}
}

var hub = NewHub()

// handleBroadcast delivers one event to every current member of its room.
// A failed delivery to one member never aborts delivery to the rest.
func (h *Hub) handleBroadcast(broadcastMsg BroadcastMessage) {
	members := h.MembersOf(broadcastMsg.RoomID)
	logging.Debugf("Broadcasting to %d members of room %s", len(members), broadcastMsg.RoomID)

	var clientsToRemove []*Client
	for _, client := range members {
		if !h.safeSend(client, broadcastMsg.Payload) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}
	h.removeFailedClients(clientsToRemove)
}

// removeFailedClients removes clients whose outbound queues overflowed
// and closes their channels.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			logging.Warnf("Client %s for user %s removed due to full send buffer", client.id, client.identity)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock.
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients gracefully closes all active client connections.
func (h *Hub) shutdownClients() {
	logging.Infof("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					logging.Errorf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	logging.Infof("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	logging.Infof("Initiating hub shutdown...")

	// Signal shutdown
	h.cancel()

	// Wait for Run() to complete
	<-h.done

	// Wait for all client goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Infof("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		logging.Warnf("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
