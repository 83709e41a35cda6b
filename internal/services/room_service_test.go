package services

import (
	"context"
	"testing"
	"time"

	"chat-server/internal/database"
	"chat-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*RoomService, database.Store) {
	t.Helper()
	store, err := database.NewBuntStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewRoomService(store), store
}

func createUser(t *testing.T, store database.Store, name string) *models.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), name, name+"@example.com", "hash")
	require.NoError(t, err)
	return user
}

func TestPrivateRoomPassword(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	owner := createUser(t, store, "owner")
	joiner := createUser(t, store, "joiner")

	room, err := svc.CreateGroupRoom(ctx, owner.ID, &models.CreateRoomRequest{
		Name:       "secret club",
		Visibility: models.VisibilityPrivate,
		Password:   "abcd",
	})
	require.NoError(t, err)

	_, err = svc.JoinRoom(ctx, joiner.ID, room.ID, "wrong")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = svc.JoinRoom(ctx, joiner.ID, room.ID, "")
	assert.Error(t, err)

	_, err = svc.JoinRoom(ctx, joiner.ID, room.ID, "abcd")
	require.NoError(t, err)

	isMember, err := store.IsMember(ctx, room.ID, joiner.ID)
	require.NoError(t, err)
	assert.True(t, isMember)
}

func TestCreateRoomValidation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	owner := createUser(t, store, "owner")

	_, err := svc.CreateGroupRoom(ctx, owner.ID, &models.CreateRoomRequest{Name: "x"})
	assert.Error(t, err)

	_, err = svc.CreateGroupRoom(ctx, owner.ID, &models.CreateRoomRequest{
		Name:       "private",
		Visibility: models.VisibilityPrivate,
		Password:   "abc",
	})
	assert.Error(t, err, "short private room password must be rejected")
}

func TestDirectRoomIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")

	room1, err := svc.OpenDirectRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	room2, err := svc.OpenDirectRoom(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, room1.ID, room2.ID, "both directions must resolve to one room")

	for _, uid := range []string{alice.ID, bob.ID} {
		isMember, err := store.IsMember(ctx, room1.ID, uid)
		require.NoError(t, err)
		assert.True(t, isMember)
	}

	_, err = svc.OpenDirectRoom(ctx, alice.ID, alice.ID)
	assert.Error(t, err, "cannot DM yourself")
}

func TestOwnerCannotLeave(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	owner := createUser(t, store, "owner")
	member := createUser(t, store, "member")

	room, err := svc.CreateGroupRoom(ctx, owner.ID, &models.CreateRoomRequest{Name: "general"})
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, member.ID, room.ID, "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.LeaveRoom(ctx, owner.ID, room.ID), ErrForbidden)
	assert.NoError(t, svc.LeaveRoom(ctx, member.ID, room.ID))

	isMember, err := store.IsMember(ctx, room.ID, member.ID)
	require.NoError(t, err)
	assert.False(t, isMember)
}

func TestDeleteRoomOwnerOnly(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	owner := createUser(t, store, "owner")
	member := createUser(t, store, "member")

	room, err := svc.CreateGroupRoom(ctx, owner.ID, &models.CreateRoomRequest{Name: "general"})
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, member.ID, room.ID, "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteRoom(ctx, member.ID, room.ID), ErrForbidden)
	require.NoError(t, svc.DeleteRoom(ctx, owner.ID, room.ID))

	found, err := store.FindRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestClearHistoryPerMember(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")

	room, err := svc.CreateGroupRoom(ctx, alice.ID, &models.CreateRoomRequest{Name: "general"})
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, bob.ID, room.ID, "")
	require.NoError(t, err)

	for _, text := range []string{"one", "two"} {
		_, err := store.CreateMessage(ctx, room.ID, alice.ID, "alice", text)
		require.NoError(t, err)
	}

	_, err = svc.ClearHistory(ctx, alice.ID, room.ID)
	require.NoError(t, err)

	aliceView, err := svc.ListMessages(ctx, alice.ID, room.ID, nil, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, aliceView.Messages, "cleared member sees nothing")

	bobView, err := svc.ListMessages(ctx, bob.ID, room.ID, nil, 0, 100)
	require.NoError(t, err)
	assert.Len(t, bobView.Messages, 2, "clear must not affect other members")
}

func TestListMessagesPagination(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")

	room, err := svc.CreateGroupRoom(ctx, alice.ID, &models.CreateRoomRequest{Name: "general"})
	require.NoError(t, err)

	for _, text := range []string{"m1", "m2", "m3"} {
		_, err := store.CreateMessage(ctx, room.ID, alice.ID, "alice", text)
		require.NoError(t, err)
	}

	page1, err := svc.ListMessages(ctx, alice.ID, room.ID, nil, 2, 100)
	require.NoError(t, err)
	require.Len(t, page1.Messages, 2)
	assert.Equal(t, "m3", page1.Messages[1].Text)
	require.NotNil(t, page1.NextBefore)

	page2, err := svc.ListMessages(ctx, alice.ID, room.ID, page1.NextBefore, 2, 100)
	require.NoError(t, err)
	require.Len(t, page2.Messages, 1)
	assert.Equal(t, "m1", page2.Messages[0].Text)
}

func TestListMessagesRequiresMembership(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")
	stranger := createUser(t, store, "stranger")

	room, err := svc.CreateGroupRoom(ctx, alice.ID, &models.CreateRoomRequest{Name: "general"})
	require.NoError(t, err)

	_, err = svc.ListMessages(ctx, stranger.ID, room.ID, nil, 0, 100)
	assert.ErrorIs(t, err, ErrNotAMember)
}

func TestListRooms(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")

	general, err := svc.CreateGroupRoom(ctx, alice.ID, &models.CreateRoomRequest{Name: "general"})
	require.NoError(t, err)
	_, err = svc.CreateGroupRoom(ctx, bob.ID, &models.CreateRoomRequest{Name: "bob's room"})
	require.NoError(t, err)
	dm, err := svc.OpenDirectRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = store.CreateMessage(ctx, dm.ID, bob.ID, "bob", "hey")
	require.NoError(t, err)

	resp, err := svc.ListRooms(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, resp.Rooms, 2)

	// DM has the latest activity, so it sorts first and carries the other
	// participant's name
	assert.Equal(t, dm.ID, resp.Rooms[0].ID)
	assert.Equal(t, "bob", resp.Rooms[0].Title)
	assert.Equal(t, general.ID, resp.Rooms[1].ID)
	assert.Equal(t, models.RoleOwner, resp.Rooms[1].Role)

	// bob's public room is discoverable but not joined
	require.Len(t, resp.Discover, 1)
	assert.Equal(t, "bob's room", resp.Discover[0].Title)
	assert.False(t, resp.Discover[0].Joined)
}

func TestClearHistoryTimestamp(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")

	room, err := svc.CreateGroupRoom(ctx, alice.ID, &models.CreateRoomRequest{Name: "general"})
	require.NoError(t, err)

	before := time.Now().UTC().Add(-time.Second)
	mark, err := svc.ClearHistory(ctx, alice.ID, room.ID)
	require.NoError(t, err)
	assert.True(t, mark.After(before))

	_, err = svc.ClearHistory(ctx, alice.ID, "no-such-room")
	assert.ErrorIs(t, err, ErrNotAMember)
}
