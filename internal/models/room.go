package models

import (
	"sort"
	"strings"
	"time"
)

type RoomKind string

const (
	RoomKindGroup  RoomKind = "group"
	RoomKindDirect RoomKind = "direct"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

type Room struct {
	ID         string     `json:"id"`
	Kind       RoomKind   `json:"kind"`
	Name       string     `json:"name,omitempty"`
	Visibility Visibility `json:"visibility,omitempty"`
	OwnerID    string     `json:"owner_id,omitempty"`
	PassHash   string     `json:"-"`
	DirectKey  string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsPublic reports whether the room may be joined without a password.
// Direct rooms are never joinable; membership comes from DM creation.
func (r *Room) IsPublic() bool {
	return r.Kind == RoomKindGroup && r.Visibility != VisibilityPrivate
}

// DirectKeyFor builds the uniqueness key for a direct-message pair.
// The two user ids are sorted so (a,b) and (b,a) map to the same room.
func DirectKeyFor(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

type Membership struct {
	RoomID        string    `json:"room_id"`
	UserID        string    `json:"user_id"`
	UserName      string    `json:"user_name,omitempty"`
	Role          Role      `json:"role"`
	ClearedBefore time.Time `json:"cleared_before"`
	JoinedAt      time.Time `json:"joined_at"`
}

type CreateRoomRequest struct {
	Name       string     `json:"name"`
	Visibility Visibility `json:"visibility"`
	Password   string     `json:"password"`
}

type JoinRoomRequest struct {
	Password string `json:"password"`
}

type DirectRoomRequest struct {
	UserID string `json:"userId"`
}

// RoomSummary is what the room list endpoint returns per room.
type RoomSummary struct {
	ID            string     `json:"id"`
	Kind          RoomKind   `json:"kind"`
	Title         string     `json:"title"`
	Joined        bool       `json:"joined"`
	Visibility    Visibility `json:"visibility,omitempty"`
	Role          Role       `json:"role,omitempty"`
	ClearedBefore time.Time  `json:"clearedBefore,omitzero"`
	LastMessage   *Message   `json:"lastMessage,omitempty"`
}

type RoomListResponse struct {
	Rooms    []*RoomSummary `json:"rooms"`
	Discover []*RoomSummary `json:"discover"`
}
