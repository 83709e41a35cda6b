package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"chat-server/internal/database"
	"chat-server/internal/models"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotAMember      = errors.New("not a member of this room")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidPassword = errors.New("invalid room password")
)

// ValidationError carries a user-facing message for a bad request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, v ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, v...)}
}

type RoomService struct {
	db database.Store
}

func NewRoomService(db database.Store) *RoomService {
	return &RoomService{db: db}
}

// CreateGroupRoom creates a group room and makes the creator its owner.
// Private rooms require a password which is stored bcrypt-hashed and never
// serialized outward.
func (s *RoomService) CreateGroupRoom(ctx context.Context, ownerID string, req *models.CreateRoomRequest) (*models.Room, error) {
	name := strings.TrimSpace(req.Name)
	if len(name) < 2 {
		return nil, validationErrorf("room name min 2 chars")
	}

	visibility := models.VisibilityPublic
	passHash := ""
	if req.Visibility == models.VisibilityPrivate {
		visibility = models.VisibilityPrivate
		password := strings.TrimSpace(req.Password)
		if len(password) < 4 {
			return nil, validationErrorf("private room password min 4 chars")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash room password: %w", err)
		}
		passHash = string(hash)
	}

	room := &models.Room{
		Kind:       models.RoomKindGroup,
		Name:       name,
		Visibility: visibility,
		OwnerID:    ownerID,
		PassHash:   passHash,
	}
	if err := s.db.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	if err := s.db.UpsertMembership(ctx, room.ID, ownerID, models.RoleOwner); err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	return room, nil
}

// OpenDirectRoom returns the direct-message room for the caller and the
// other user, creating it on first use. The sorted participant pair is the
// uniqueness key, so both directions resolve to the same room.
func (s *RoomService) OpenDirectRoom(ctx context.Context, userID, otherID string) (*models.Room, error) {
	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return nil, validationErrorf("userId required")
	}
	if otherID == userID {
		return nil, validationErrorf("cannot DM yourself")
	}
	if _, err := s.db.GetUserByID(ctx, otherID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, validationErrorf("user not found")
		}
		return nil, err
	}

	key := models.DirectKeyFor(userID, otherID)
	room, err := s.db.FindDirectRoom(ctx, key)
	if err != nil {
		return nil, err
	}
	if room == nil {
		room = &models.Room{
			Kind:       models.RoomKindDirect,
			Visibility: models.VisibilityPrivate,
			DirectKey:  key,
		}
		if err := s.db.CreateRoom(ctx, room); err != nil {
			return nil, fmt.Errorf("failed to create direct room: %w", err)
		}
	}

	for _, uid := range []string{userID, otherID} {
		if err := s.db.UpsertMembership(ctx, room.ID, uid, models.RoleMember); err != nil {
			return nil, fmt.Errorf("failed to create membership: %w", err)
		}
	}

	return room, nil
}

// JoinRoom adds the user to a group room. Private rooms require the correct
// password; joining a room the user already belongs to is a no-op.
func (s *RoomService) JoinRoom(ctx context.Context, userID, roomID, password string) (*models.Room, error) {
	room, err := s.db.FindRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if room.Kind != models.RoomKindGroup {
		return nil, validationErrorf("only group rooms can be joined")
	}

	if room.Visibility == models.VisibilityPrivate {
		password = strings.TrimSpace(password)
		if password == "" {
			return nil, validationErrorf("password required for private room")
		}
		if room.PassHash == "" || bcrypt.CompareHashAndPassword([]byte(room.PassHash), []byte(password)) != nil {
			return nil, ErrInvalidPassword
		}
	}

	if err := s.db.UpsertMembership(ctx, roomID, userID, models.RoleMember); err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	return room, nil
}

// LeaveRoom removes the user's membership. The owner of a group room cannot
// leave it, only delete it.
func (s *RoomService) LeaveRoom(ctx context.Context, userID, roomID string) error {
	room, err := s.db.FindRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrRoomNotFound
	}

	m, err := s.db.GetMembership(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return err
	}
	if room.Kind == models.RoomKindGroup && m.Role == models.RoleOwner {
		return ErrForbidden
	}

	return s.db.RemoveMembership(ctx, roomID, userID)
}

// DeleteRoom destroys a group room together with all of its messages and
// memberships. Owner only.
func (s *RoomService) DeleteRoom(ctx context.Context, userID, roomID string) error {
	room, err := s.db.FindRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrRoomNotFound
	}
	if room.Kind != models.RoomKindGroup {
		return ErrForbidden
	}

	m, err := s.db.GetMembership(ctx, roomID, userID)
	if err != nil || m.Role != models.RoleOwner {
		return ErrForbidden
	}

	return s.db.DeleteRoom(ctx, roomID)
}

// ListRooms returns the caller's joined rooms, newest activity first, plus
// discoverable public rooms the caller has not joined.
func (s *RoomService) ListRooms(ctx context.Context, userID string) (*models.RoomListResponse, error) {
	rooms, err := s.db.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	joined := make(map[string]struct{}, len(rooms))
	summaries := make([]*models.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		joined[room.ID] = struct{}{}

		m, err := s.db.GetMembership(ctx, room.ID, userID)
		if err != nil {
			return nil, err
		}

		title := room.Name
		if room.Kind == models.RoomKindDirect {
			title = s.directTitle(ctx, room, userID)
		}
		if title == "" {
			title = "Room"
		}

		last, err := s.db.LastMessage(ctx, room.ID, m.ClearedBefore)
		if err != nil {
			return nil, err
		}

		summary := &models.RoomSummary{
			ID:            room.ID,
			Kind:          room.Kind,
			Title:         title,
			Joined:        true,
			Role:          m.Role,
			ClearedBefore: m.ClearedBefore,
			LastMessage:   last,
		}
		if room.Kind == models.RoomKindGroup {
			summary.Visibility = room.Visibility
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		ti, tj := time.Time{}, time.Time{}
		if summaries[i].LastMessage != nil {
			ti = summaries[i].LastMessage.CreatedAt
		}
		if summaries[j].LastMessage != nil {
			tj = summaries[j].LastMessage.CreatedAt
		}
		return ti.After(tj)
	})

	public, err := s.db.ListPublicRooms(ctx)
	if err != nil {
		return nil, err
	}
	discover := make([]*models.RoomSummary, 0)
	for _, room := range public {
		if _, ok := joined[room.ID]; ok {
			continue
		}
		discover = append(discover, &models.RoomSummary{
			ID:     room.ID,
			Kind:   room.Kind,
			Title:  room.Name,
			Joined: false,
		})
	}
	sort.Slice(discover, func(i, j int) bool { return discover[i].Title < discover[j].Title })

	return &models.RoomListResponse{Rooms: summaries, Discover: discover}, nil
}

func (s *RoomService) directTitle(ctx context.Context, room *models.Room, userID string) string {
	members, err := s.db.ListMembers(ctx, room.ID)
	if err != nil {
		return "DM"
	}
	for _, m := range members {
		if m.UserID != userID && m.UserName != "" {
			return m.UserName
		}
	}
	return "DM"
}

// ListMessages pages through a room's history for one member. Only messages
// strictly after the member's cleared-before watermark and strictly before
// the optional cursor are returned.
func (s *RoomService) ListMessages(ctx context.Context, userID, roomID string, before *time.Time, limit, maxLimit int) (*models.MessagesResponse, error) {
	m, err := s.db.GetMembership(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotAMember
		}
		return nil, err
	}

	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	messages, err := s.db.ListMessages(ctx, roomID, m.ClearedBefore, before, limit)
	if err != nil {
		return nil, err
	}

	resp := &models.MessagesResponse{Messages: messages}
	if len(messages) > 0 {
		resp.NextBefore = &messages[0].CreatedAt
	}
	return resp, nil
}

// ClearHistory advances the caller's watermark to now. Underlying messages
// are untouched; other members' views do not change.
func (s *RoomService) ClearHistory(ctx context.Context, userID, roomID string) (time.Time, error) {
	now := time.Now().UTC()
	err := s.db.SetClearedBefore(ctx, roomID, userID, now)
	if errors.Is(err, database.ErrNotFound) {
		return time.Time{}, ErrNotAMember
	}
	if err != nil {
		return time.Time{}, err
	}
	return now, nil
}
