package ws

import (
	"sort"
	"sync"

	"chat-server/internal/models"
	"chat-server/pkg/logger"
)

// Registry is the process-wide map from room id to the set of live
// connections currently watching it. A connection watches at most one room
// at a time; joining a new room implicitly leaves the previous one.
//
// Construct one Registry at process start and inject it everywhere; the
// per-room sets are the only shared mutable state in the gateway.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[*Client]struct{}),
	}
}

// Join moves the connection into the target room and broadcasts fresh
// presence snapshots for both the vacated and the entered room.
func (r *Registry) Join(c *Client, roomID string) {
	r.mu.Lock()
	previous := c.room()
	if previous == roomID {
		r.mu.Unlock()
		return
	}
	r.removeLocked(c, previous)
	set, ok := r.rooms[roomID]
	if !ok {
		set = make(map[*Client]struct{})
		r.rooms[roomID] = set
	}
	set[c] = struct{}{}
	c.setRoom(roomID)
	r.mu.Unlock()

	if previous != "" {
		r.broadcastPresence(previous)
		logger.Debug("connection %s switched room %s -> %s", c.identity.Name, previous, roomID)
	} else {
		logger.Debug("connection %s joined room %s", c.identity.Name, roomID)
	}
	r.broadcastPresence(roomID)
}

// Leave removes the connection from whatever room it watches. It is a no-op
// for connections that never joined a room and is safe to call repeatedly,
// so every disconnect path can funnel through it.
func (r *Registry) Leave(c *Client) {
	r.mu.Lock()
	roomID := c.room()
	if roomID == "" {
		r.mu.Unlock()
		return
	}
	r.removeLocked(c, roomID)
	c.setRoom("")
	r.mu.Unlock()

	r.broadcastPresence(roomID)
	logger.Debug("connection %s left room %s", c.identity.Name, roomID)
}

func (r *Registry) removeLocked(c *Client, roomID string) {
	if roomID == "" {
		return
	}
	if set, ok := r.rooms[roomID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// Broadcast fans the payload out to every live connection in the room,
// except the optionally excluded one. A room with no watchers is a no-op:
// fan-out is best-effort by design, members not connected to the room rely
// on history fetch.
func (r *Registry) Broadcast(roomID string, payload []byte, exclude *Client) {
	if payload == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.rooms[roomID] {
		if c == exclude {
			continue
		}
		c.enqueue(payload)
	}
}

// Snapshot returns the identities currently watching the room, sorted by
// name for stable presence payloads.
func (r *Registry) Snapshot(roomID string) []models.Identity {
	r.mu.RLock()
	online := make([]models.Identity, 0, len(r.rooms[roomID]))
	for c := range r.rooms[roomID] {
		online = append(online, c.identity)
	}
	r.mu.RUnlock()

	sort.Slice(online, func(i, j int) bool { return online[i].Name < online[j].Name })
	return online
}

func (r *Registry) broadcastPresence(roomID string) {
	frame := PresenceFrame{
		Type:   FramePresence,
		RoomID: roomID,
		Online: r.Snapshot(roomID),
	}
	r.Broadcast(roomID, marshalFrame(frame), nil)
}
