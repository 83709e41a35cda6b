package ws

import (
	"context"
	"fmt"
	"strings"

	"chat-server/internal/database"
	"chat-server/internal/models"
)

// Relay validates room traffic against the durable store and fans confirmed
// payloads out via the registry. Messages are persisted strictly before they
// are broadcast, so anything delivered live can also be fetched as history.
type Relay struct {
	store    database.Store
	registry *Registry

	// maxMessageLen bounds the text of a single message in runes.
	maxMessageLen int
}

func NewRelay(store database.Store, registry *Registry, maxMessageLen int) *Relay {
	return &Relay{
		store:         store,
		registry:      registry,
		maxMessageLen: maxMessageLen,
	}
}

// Join verifies room access for the connection's identity and moves the
// connection into the room. Membership in public group rooms is created
// lazily; private and direct rooms require an existing membership record.
func (rl *Relay) Join(ctx context.Context, c *Client, roomID string) error {
	if err := rl.ensureMember(ctx, c.identity, roomID); err != nil {
		return err
	}
	rl.registry.Join(c, roomID)
	return nil
}

// Send validates, persists and broadcasts one message. Empty text is
// silently dropped. The roomID argument is optional; it defaults to the
// connection's current room, and naming a room the connection has not
// joined yet performs the join implicitly.
func (rl *Relay) Send(ctx context.Context, c *Client, roomID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len([]rune(text)) > rl.maxMessageLen {
		return ErrMessageTooLong
	}

	target := strings.TrimSpace(roomID)
	if target == "" {
		target = c.room()
	}
	if target == "" {
		return ErrNoRoom
	}

	// Membership may have lapsed since join (room deleted, member removed),
	// and other connections interleave across the persistence call below,
	// so it is re-checked here rather than trusted from an earlier frame.
	if err := rl.ensureMember(ctx, c.identity, target); err != nil {
		return err
	}
	if c.room() != target {
		rl.registry.Join(c, target)
	}

	msg, err := rl.store.CreateMessage(ctx, target, c.identity.ID, c.identity.Name, text)
	if err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}

	// Only after the durable ack does the message go out.
	rl.registry.Broadcast(target, marshalFrame(MessageFrame{Type: FrameMessage, Message: msg}), nil)
	return nil
}

// Typing relays an ephemeral typing signal to every other watcher of the
// room. Nothing is persisted and validation failures drop the signal; a
// stale "is typing" clears client-side via an inactivity timeout.
func (rl *Relay) Typing(ctx context.Context, c *Client, roomID string, isTyping bool) {
	target := strings.TrimSpace(roomID)
	if target == "" {
		target = c.room()
	}
	if target == "" {
		return
	}
	if err := rl.ensureMember(ctx, c.identity, target); err != nil {
		return
	}

	frame := TypingFrame{
		Type:     FrameTyping,
		RoomID:   target,
		Name:     c.identity.Name,
		IsTyping: isTyping,
	}
	rl.registry.Broadcast(target, marshalFrame(frame), c)
}

func (rl *Relay) ensureMember(ctx context.Context, identity models.Identity, roomID string) error {
	room, err := rl.store.FindRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to load room: %w", err)
	}
	if room == nil {
		return ErrRoomNotFound
	}

	isMember, err := rl.store.IsMember(ctx, roomID, identity.ID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if isMember {
		return nil
	}

	// Self-service join for public group rooms.
	if room.IsPublic() {
		if err := rl.store.UpsertMembership(ctx, roomID, identity.ID, models.RoleMember); err != nil {
			return fmt.Errorf("failed to create membership: %w", err)
		}
		return nil
	}

	if room.Kind == models.RoomKindGroup {
		return ErrRoomPrivate
	}
	return ErrNotAMember
}
