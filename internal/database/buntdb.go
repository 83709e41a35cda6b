package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat-server/internal/models"

	"github.com/google/uuid"
	"github.com/tidwall/buntdb"
)

// BuntStore is an embedded implementation of Store on top of buntdb.
// It backs the development mode (no postgres required) and the tests.
type BuntStore struct {
	db *buntdb.DB

	mu          sync.Mutex
	lastMsgTime time.Time
}

func NewBuntStore(path string) (*BuntStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}
	return &BuntStore{db: db}, nil
}

func (s *BuntStore) Close() error {
	return s.db.Close()
}

func userKey(id string) string            { return "user:" + id }
func emailKey(email string) string        { return "useremail:" + email }
func roomKey(id string) string            { return "room:" + id }
func dmKey(directKey string) string       { return "dm:" + directKey }
func memberKey(roomID, uid string) string { return "member:" + roomID + ":" + uid }

// Message keys embed a zero-padded UnixNano so lexicographic key order is
// chronological order within a room.
func messageKey(roomID string, t time.Time, id string) string {
	return fmt.Sprintf("msg:%s:%020d:%s", roomID, t.UnixNano(), id)
}

func setJSON(tx *buntdb.Tx, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _, err = tx.Set(key, string(data), nil)
	return err
}

func getJSON(tx *buntdb.Tx, key string, v interface{}) error {
	data, err := tx.Get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), v)
}

// User Repository Implementation
func (s *BuntStore) CreateUser(_ context.Context, name, email, passwordHash string) (*models.User, error) {
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	err := s.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(emailKey(email)); err == nil {
			return fmt.Errorf("email already registered")
		}
		if err := setJSON(tx, userKey(user.ID), user); err != nil {
			return err
		}
		_, _, err := tx.Set(emailKey(email), user.ID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *BuntStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var id string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(emailKey(email))
		if err != nil {
			return err
		}
		id = v
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

func (s *BuntStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	user := &models.User{}
	err := s.db.View(func(tx *buntdb.Tx) error {
		return getJSON(tx, userKey(id), user)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *BuntStore) ListUsers(_ context.Context) ([]*models.User, error) {
	var users []*models.User
	err := s.db.View(func(tx *buntdb.Tx) error {
		var inner error
		tx.AscendKeys("user:*", func(_, value string) bool {
			user := &models.User{}
			if err := json.Unmarshal([]byte(value), user); err != nil {
				inner = err
				return false
			}
			users = append(users, user)
			return true
		})
		return inner
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Room Repository Implementation
func (s *BuntStore) CreateRoom(_ context.Context, room *models.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		if room.DirectKey != "" {
			if _, err := tx.Get(dmKey(room.DirectKey)); err == nil {
				return fmt.Errorf("direct room already exists")
			}
			if _, _, err := tx.Set(dmKey(room.DirectKey), room.ID, nil); err != nil {
				return err
			}
		}
		return setJSON(tx, roomKey(room.ID), room)
	})
}

func (s *BuntStore) FindRoom(_ context.Context, id string) (*models.Room, error) {
	room := &models.Room{}
	err := s.db.View(func(tx *buntdb.Tx) error {
		return getJSON(tx, roomKey(id), room)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (s *BuntStore) FindDirectRoom(ctx context.Context, directKey string) (*models.Room, error) {
	var id string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(dmKey(directKey))
		if err != nil {
			return err
		}
		id = v
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.FindRoom(ctx, id)
}

func (s *BuntStore) ListRoomsForUser(ctx context.Context, userID string) ([]*models.Room, error) {
	var roomIDs []string
	suffix := ":" + userID
	err := s.db.View(func(tx *buntdb.Tx) error {
		var inner error
		tx.AscendKeys("member:*", func(key, value string) bool {
			if len(key) < len(suffix) || key[len(key)-len(suffix):] != suffix {
				return true
			}
			m := &models.Membership{}
			if err := json.Unmarshal([]byte(value), m); err != nil {
				inner = err
				return false
			}
			roomIDs = append(roomIDs, m.RoomID)
			return true
		})
		return inner
	})
	if err != nil {
		return nil, err
	}

	rooms := make([]*models.Room, 0, len(roomIDs))
	for _, id := range roomIDs {
		room, err := s.FindRoom(ctx, id)
		if err != nil {
			return nil, err
		}
		if room != nil {
			rooms = append(rooms, room)
		}
	}
	return rooms, nil
}

func (s *BuntStore) ListPublicRooms(_ context.Context) ([]*models.Room, error) {
	var rooms []*models.Room
	err := s.db.View(func(tx *buntdb.Tx) error {
		var inner error
		tx.AscendKeys("room:*", func(_, value string) bool {
			room := &models.Room{}
			if err := json.Unmarshal([]byte(value), room); err != nil {
				inner = err
				return false
			}
			if room.IsPublic() {
				rooms = append(rooms, room)
			}
			return true
		})
		return inner
	})
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (s *BuntStore) DeleteRoom(_ context.Context, roomID string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		room := &models.Room{}
		if err := getJSON(tx, roomKey(roomID), room); err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return nil
			}
			return err
		}

		var stale []string
		tx.AscendKeys("msg:"+roomID+":*", func(key, _ string) bool {
			stale = append(stale, key)
			return true
		})
		tx.AscendKeys("member:"+roomID+":*", func(key, _ string) bool {
			stale = append(stale, key)
			return true
		})
		for _, key := range stale {
			if _, err := tx.Delete(key); err != nil {
				return err
			}
		}
		if room.DirectKey != "" {
			if _, err := tx.Delete(dmKey(room.DirectKey)); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		_, err := tx.Delete(roomKey(roomID))
		return err
	})
}

// Membership Repository Implementation
func (s *BuntStore) IsMember(_ context.Context, roomID, userID string) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(memberKey(roomID, userID))
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

func (s *BuntStore) UpsertMembership(_ context.Context, roomID, userID string, role models.Role) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(memberKey(roomID, userID)); err == nil {
			return nil // existing record keeps its role and watermark
		}
		m := &models.Membership{
			RoomID:   roomID,
			UserID:   userID,
			Role:     role,
			JoinedAt: time.Now().UTC(),
		}
		return setJSON(tx, memberKey(roomID, userID), m)
	})
}

func (s *BuntStore) RemoveMembership(_ context.Context, roomID, userID string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(memberKey(roomID, userID))
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		return err
	})
}

func (s *BuntStore) GetMembership(_ context.Context, roomID, userID string) (*models.Membership, error) {
	m := &models.Membership{}
	err := s.db.View(func(tx *buntdb.Tx) error {
		return getJSON(tx, memberKey(roomID, userID), m)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *BuntStore) ListMembers(ctx context.Context, roomID string) ([]*models.Membership, error) {
	var members []*models.Membership
	err := s.db.View(func(tx *buntdb.Tx) error {
		var inner error
		tx.AscendKeys("member:"+roomID+":*", func(_, value string) bool {
			m := &models.Membership{}
			if err := json.Unmarshal([]byte(value), m); err != nil {
				inner = err
				return false
			}
			members = append(members, m)
			return true
		})
		return inner
	})
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if user, err := s.GetUserByID(ctx, m.UserID); err == nil {
			m.UserName = user.Name
		}
	}
	return members, nil
}

func (s *BuntStore) SetClearedBefore(_ context.Context, roomID, userID string, t time.Time) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		m := &models.Membership{}
		if err := getJSON(tx, memberKey(roomID, userID), m); err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if t.After(m.ClearedBefore) {
			m.ClearedBefore = t
		}
		return setJSON(tx, memberKey(roomID, userID), m)
	})
}

// Message Repository Implementation
func (s *BuntStore) CreateMessage(_ context.Context, roomID, senderID, senderName, text string) (*models.Message, error) {
	// Creation timestamps must never move backwards within the store since
	// they are the ordering and pagination key.
	s.mu.Lock()
	now := time.Now().UTC()
	if !now.After(s.lastMsgTime) {
		now = s.lastMsgTime.Add(time.Microsecond)
	}
	s.lastMsgTime = now
	s.mu.Unlock()

	msg := &models.Message{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
		CreatedAt:  now,
	}
	err := s.db.Update(func(tx *buntdb.Tx) error {
		return setJSON(tx, messageKey(roomID, msg.CreatedAt, msg.ID), msg)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *BuntStore) ListMessages(_ context.Context, roomID string, afterWatermark time.Time, before *time.Time, limit int) ([]*models.Message, error) {
	var messages []*models.Message
	err := s.db.View(func(tx *buntdb.Tx) error {
		var inner error
		tx.DescendKeys("msg:"+roomID+":*", func(_, value string) bool {
			msg := &models.Message{}
			if err := json.Unmarshal([]byte(value), msg); err != nil {
				inner = err
				return false
			}
			if before != nil && !msg.CreatedAt.Before(*before) {
				return true
			}
			if !msg.CreatedAt.After(afterWatermark) {
				return false // older than the watermark, stop descending
			}
			messages = append(messages, msg)
			return len(messages) < limit
		})
		return inner
	})
	if err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (s *BuntStore) LastMessage(_ context.Context, roomID string, afterWatermark time.Time) (*models.Message, error) {
	var last *models.Message
	err := s.db.View(func(tx *buntdb.Tx) error {
		var inner error
		tx.DescendKeys("msg:"+roomID+":*", func(_, value string) bool {
			msg := &models.Message{}
			if err := json.Unmarshal([]byte(value), msg); err != nil {
				inner = err
				return false
			}
			if msg.CreatedAt.After(afterWatermark) {
				last = msg
			}
			return false
		})
		return inner
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}
