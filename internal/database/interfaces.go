package database

import (
	"context"
	"errors"
	"time"

	"chat-server/internal/models"
)

// ErrNotFound is returned by lookups when the record does not exist.
var ErrNotFound = errors.New("not found")

type UserRepository interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
}

type RoomRepository interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	// FindRoom returns (nil, nil) when the room does not exist.
	FindRoom(ctx context.Context, id string) (*models.Room, error)
	FindDirectRoom(ctx context.Context, directKey string) (*models.Room, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]*models.Room, error)
	ListPublicRooms(ctx context.Context) ([]*models.Room, error)
	// DeleteRoom removes the room together with its messages and memberships.
	DeleteRoom(ctx context.Context, roomID string) error
}

type MembershipRepository interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	// UpsertMembership creates the membership if absent; an existing record
	// keeps its role and watermark.
	UpsertMembership(ctx context.Context, roomID, userID string, role models.Role) error
	RemoveMembership(ctx context.Context, roomID, userID string) error
	GetMembership(ctx context.Context, roomID, userID string) (*models.Membership, error)
	ListMembers(ctx context.Context, roomID string) ([]*models.Membership, error)
	// SetClearedBefore advances the per-member watermark; it never moves backwards.
	SetClearedBefore(ctx context.Context, roomID, userID string, t time.Time) error
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, roomID, senderID, senderName, text string) (*models.Message, error)
	// ListMessages returns messages with created_at > afterWatermark and,
	// when before is non-nil, created_at < before. The newest matching page
	// is selected and returned oldest-first, capped at limit.
	ListMessages(ctx context.Context, roomID string, afterWatermark time.Time, before *time.Time, limit int) ([]*models.Message, error)
	// LastMessage returns (nil, nil) when the room has no visible messages.
	LastMessage(ctx context.Context, roomID string, afterWatermark time.Time) (*models.Message, error)
}

type Store interface {
	UserRepository
	RoomRepository
	MembershipRepository
	MessageRepository
	Close() error
}
