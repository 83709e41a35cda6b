package ws

import (
	"context"
	"strings"
	"testing"
	"time"

	"chat-server/internal/database"
	"chat-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T) (*Relay, *Registry, database.Store) {
	t.Helper()
	store, err := database.NewBuntStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	registry := NewRegistry()
	return NewRelay(store, registry, 2000), registry, store
}

func createRoom(t *testing.T, store database.Store, name string, visibility models.Visibility) *models.Room {
	t.Helper()
	room := &models.Room{Kind: models.RoomKindGroup, Name: name, Visibility: visibility}
	require.NoError(t, store.CreateRoom(context.Background(), room))
	return room
}

func TestJoinPublicRoomCreatesMembership(t *testing.T) {
	relay, _, store := newTestRelay(t)
	ctx := context.Background()
	room := createRoom(t, store, "general", models.VisibilityPublic)
	c := newTestClient("alice")

	require.NoError(t, relay.Join(ctx, c, room.ID))
	assert.Equal(t, room.ID, c.room())

	isMember, err := store.IsMember(ctx, room.ID, c.identity.ID)
	require.NoError(t, err)
	assert.True(t, isMember, "joining a public room enrolls the user")
}

func TestJoinPrivateRoomRequiresMembership(t *testing.T) {
	relay, _, store := newTestRelay(t)
	ctx := context.Background()
	room := createRoom(t, store, "secret", models.VisibilityPrivate)

	stranger := newTestClient("stranger")
	assert.ErrorIs(t, relay.Join(ctx, stranger, room.ID), ErrRoomPrivate)
	assert.Empty(t, stranger.room())

	member := newTestClient("member")
	require.NoError(t, store.UpsertMembership(ctx, room.ID, member.identity.ID, models.RoleMember))
	require.NoError(t, relay.Join(ctx, member, room.ID))
	assert.Equal(t, room.ID, member.room())
}

func TestJoinUnknownRoom(t *testing.T) {
	relay, _, _ := newTestRelay(t)
	c := newTestClient("alice")
	assert.ErrorIs(t, relay.Join(context.Background(), c, "no-such-room"), ErrRoomNotFound)
}

func TestJoinDirectRoomNonParticipant(t *testing.T) {
	relay, _, store := newTestRelay(t)
	ctx := context.Background()

	room := &models.Room{
		Kind:       models.RoomKindDirect,
		Visibility: models.VisibilityPrivate,
		DirectKey:  models.DirectKeyFor("u1", "u2"),
	}
	require.NoError(t, store.CreateRoom(ctx, room))

	c := newTestClient("outsider")
	assert.ErrorIs(t, relay.Join(ctx, c, room.ID), ErrNotAMember)
}

func TestSendPersistsThenBroadcasts(t *testing.T) {
	relay, _, store := newTestRelay(t)
	ctx := context.Background()
	room := createRoom(t, store, "general", models.VisibilityPublic)

	alice := newTestClient("alice")
	bob := newTestClient("bob")
	require.NoError(t, relay.Join(ctx, alice, room.ID))
	require.NoError(t, relay.Join(ctx, bob, room.ID))
	drainFrames(t, alice)
	drainFrames(t, bob)

	require.NoError(t, relay.Send(ctx, alice, "", "hello"))

	stored, err := store.ListMessages(ctx, room.ID, time.Time{}, nil, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	// the broadcast payload carries the stored message, id included, and the
	// sender receives its own message like everyone else
	for _, c := range []*Client{alice, bob} {
		frame := frameOfType(drainFrames(t, c), "message")
		require.NotNil(t, frame, "%s should receive the message", c.identity.Name)
		msg := frame["message"].(map[string]interface{})
		assert.Equal(t, stored[0].ID, msg["id"])
		assert.Equal(t, "hello", msg["text"])
		assert.Equal(t, "alice", msg["senderName"])
	}
}

func TestSendEmptyTextDropped(t *testing.T) {
	relay, _, store := newTestRelay(t)
	ctx := context.Background()
	room := createRoom(t, store, "general", models.VisibilityPublic)

	alice := newTestClient("alice")
	require.NoError(t, relay.Join(ctx, alice, room.ID))
	drainFrames(t, alice)

	require.NoError(t, relay.Send(ctx, alice, "", "   "))

	stored, err := store.ListMessages(ctx, room.ID, time.Time{}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, stored, "whitespace-only text must not be persisted")
	assert.Empty(t, drainFrames(t, alice))
}

func TestSendTooLong(t *testing.T) {
	relay, _, store := newTestRelay(t)
	ctx := context.Background()
	room := createRoom(t, store, "general", models.VisibilityPublic)

	alice := newTestClient("alice")
	require.NoError(t, relay.Join(ctx, alice, room.ID))

	err := relay.Send(ctx, alice, "", strings.Repeat("a", 2001))
	assert.ErrorIs(t, err, ErrMessageTooLong)

	// exactly at the limit is fine
	assert.NoError(t, relay.Send(ctx, alice, "", strings.Repeat("a", 2000)))
}

func TestSendWithoutRoom(t *testing.T) {
	relay, _, _ := newTestRelay(t)
	c := newTestClient("alice")
	assert.ErrorIs(t, relay.Send(context.Background(), c, "", "hello"), ErrNoRoom)
}

func TestSendTargetRoomJoinsImplicitly(t *testing.T) {
	relay, _, store := newTestRelay(t)
	ctx := context.Background()
	room := createRoom(t, store, "general", models.VisibilityPublic)

	alice := newTestClient("alice")
	require.NoError(t, relay.Send(ctx, alice, room.ID, "hello"))
	assert.Equal(t, room.ID, alice.room(), "naming a room in send joins it")

	frame := frameOfType(drainFrames(t, alice), "message")
	require.NotNil(t, frame)
}

func TestSendToDeletedRoom(t *testing.T) {
	relay, _, store := newTestRelay(t)
	ctx := context.Background()
	room := createRoom(t, store, "general", models.VisibilityPublic)

	alice := newTestClient("alice")
	require.NoError(t, relay.Join(ctx, alice, room.ID))
	require.NoError(t, store.DeleteRoom(ctx, room.ID))

	assert.ErrorIs(t, relay.Send(ctx, alice, "", "hello"), ErrRoomNotFound)
}

func TestTypingExcludesSender(t *testing.T) {
	relay, _, store := newTestRelay(t)
	ctx := context.Background()
	room := createRoom(t, store, "general", models.VisibilityPublic)

	alice := newTestClient("alice")
	bob := newTestClient("bob")
	require.NoError(t, relay.Join(ctx, alice, room.ID))
	require.NoError(t, relay.Join(ctx, bob, room.ID))
	drainFrames(t, alice)
	drainFrames(t, bob)

	relay.Typing(ctx, alice, "", true)

	frame := frameOfType(drainFrames(t, bob), "typing")
	require.NotNil(t, frame)
	assert.Equal(t, "alice", frame["name"])
	assert.Equal(t, true, frame["isTyping"])
	assert.Nil(t, frameOfType(drainFrames(t, alice), "typing"), "sender must not hear itself typing")
}

func TestTypingInvalidDroppedSilently(t *testing.T) {
	relay, _, store := newTestRelay(t)
	ctx := context.Background()
	room := createRoom(t, store, "secret", models.VisibilityPrivate)

	member := newTestClient("member")
	require.NoError(t, store.UpsertMembership(ctx, room.ID, member.identity.ID, models.RoleMember))
	require.NoError(t, relay.Join(ctx, member, room.ID))
	drainFrames(t, member)

	outsider := newTestClient("outsider")
	relay.Typing(ctx, outsider, room.ID, true)
	relay.Typing(ctx, outsider, "no-such-room", true)

	assert.Empty(t, drainFrames(t, member))
	assert.Empty(t, drainFrames(t, outsider), "no error frame for dropped typing signals")
}
