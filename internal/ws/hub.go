package ws

import (
	"sync"

	"social-realtime/internal/logging"
	"social-realtime/internal/models"
	"social-realtime/internal/observability"
)

// Hub maintains live connections, room membership and presence.
type Hub struct {
	conns     map[string]Conn
	rooms     map[string]map[string]struct{}
	connRooms map[string]map[string]struct{}
	presence  *Presence
	mu        sync.RWMutex
	// presenceMu orders presence changes with their online_users fan-out, so the
	// last snapshot every connection receives matches the registry.
	presenceMu sync.Mutex
}

// NewHub creates an empty hub backed by presence.
func NewHub(presence *Presence) *Hub {
	if presence == nil {
		presence = NewPresence()
	}
	return &Hub{
		conns:     make(map[string]Conn),
		rooms:     make(map[string]map[string]struct{}),
		connRooms: make(map[string]map[string]struct{}),
		presence:  presence,
	}
}

// Connect registers conn, makes it the live connection of its user and broadcasts the online list.
func (h *Hub) Connect(conn Conn) {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	h.mu.Lock()
	h.conns[conn.ID()] = conn
	replaced, ok := h.presence.Register(conn.UserID(), conn.ID())
	h.mu.Unlock()

	log := logging.With().Str("user_id", conn.UserID()).Str("conn_id", conn.ID()).Logger()
	if ok {
		log.Info().Str("replaced_conn_id", replaced).Msg("user connected, replacing previous connection")
	} else {
		log.Info().Msg("user connected")
	}

	observability.SetOnlineUsers(h.presence.Len())
	h.Broadcast(models.OnlineUsersEvent(h.presence.Online()))
}

// Disconnect drops conn from the hub and its rooms. When conn was still the user's live connection the user goes
// offline and the change is broadcast; it reports whether that happened.
func (h *Hub) Disconnect(conn Conn) bool {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	h.mu.Lock()
	if _, ok := h.conns[conn.ID()]; !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.conns, conn.ID())
	for roomID := range h.connRooms[conn.ID()] {
		h.removeFromRoomLocked(roomID, conn.ID())
	}
	delete(h.connRooms, conn.ID())
	offline := h.presence.Unregister(conn.UserID(), conn.ID())
	h.mu.Unlock()

	logging.Info().Str("user_id", conn.UserID()).Str("conn_id", conn.ID()).Bool("offline", offline).Msg("user disconnected")
	if !offline {
		return false
	}

	observability.SetOnlineUsers(h.presence.Len())
	h.Broadcast(models.UserDisconnectedEvent(conn.UserID()))
	h.Broadcast(models.OnlineUsersEvent(h.presence.Online()))
	return true
}

// Join adds conn to roomID. Joining twice is a no-op; unknown connections are ignored.
func (h *Hub) Join(conn Conn, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn.ID()]; !ok {
		return false
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]struct{})
	}
	h.rooms[roomID][conn.ID()] = struct{}{}
	if _, ok := h.connRooms[conn.ID()]; !ok {
		h.connRooms[conn.ID()] = make(map[string]struct{})
	}
	h.connRooms[conn.ID()][roomID] = struct{}{}
	return true
}

func (h *Hub) removeFromRoomLocked(roomID, connID string) {
	if members, ok := h.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// RoomConns returns the live connections in roomID.
func (h *Hub) RoomConns(roomID string) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.rooms[roomID]
	out := make([]Conn, 0, len(members))
	for connID := range members {
		if conn, ok := h.conns[connID]; ok {
			out = append(out, conn)
		}
	}
	return out
}

// Lookup returns the live connection registered for userID.
func (h *Hub) Lookup(userID string) (Conn, bool) {
	connID, ok := h.presence.Lookup(userID)
	if !ok {
		return nil, false
	}
	return h.Conn(connID)
}

func (h *Hub) Conn(connID string) (Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.conns[connID]
	return conn, ok
}

// Broadcast sends event to every connection and returns how many accepted it. Conn.Send must not block.
func (h *Hub) Broadcast(event models.Event) int {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	sent := 0
	for _, conn := range targets {
		if conn.Send(event) {
			sent++
		}
	}
	return sent
}

func (h *Hub) OnlineUsers() []string {
	return h.presence.Online()
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
