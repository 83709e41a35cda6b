package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-server/internal/models"
	"chat-server/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &PostgresDB{pool: pool}
	if err := db.ensureSchema(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Info("Connected to database successfully")
	return db, nil
}

func (db *PostgresDB) ensureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS rooms (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'public',
		owner_id   TEXT NOT NULL DEFAULT '',
		pass_hash  TEXT NOT NULL DEFAULT '',
		direct_key TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE UNIQUE INDEX IF NOT EXISTS rooms_direct_key ON rooms (direct_key) WHERE direct_key IS NOT NULL;
	CREATE TABLE IF NOT EXISTS memberships (
		room_id        TEXT NOT NULL,
		user_id        TEXT NOT NULL,
		role           TEXT NOT NULL DEFAULT 'member',
		cleared_before TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
		joined_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (room_id, user_id)
	);
	CREATE TABLE IF NOT EXISTS messages (
		id          TEXT PRIMARY KEY,
		room_id     TEXT NOT NULL,
		sender_id   TEXT NOT NULL,
		sender_name TEXT NOT NULL,
		text        TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS messages_room_created ON messages (room_id, created_at);`

	_, err := db.pool.Exec(ctx, schema)
	return err
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// User Repository Implementation
func (db *PostgresDB) CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, name, email, created_at`

	user := &models.User{PasswordHash: passwordHash}
	err := db.pool.QueryRow(ctx, query, uuid.NewString(), name, email, passwordHash).Scan(
		&user.ID, &user.Name, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, name, email, password_hash, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, name, email, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Name, &user.Email, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) ListUsers(ctx context.Context) ([]*models.User, error) {
	query := `SELECT id, name, email, created_at FROM users ORDER BY name`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// Room Repository Implementation
func (db *PostgresDB) CreateRoom(ctx context.Context, room *models.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	query := `
		INSERT INTO rooms (id, kind, name, visibility, owner_id, pass_hash, direct_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NOW())
		RETURNING created_at`

	return db.pool.QueryRow(ctx, query,
		room.ID, room.Kind, room.Name, room.Visibility, room.OwnerID, room.PassHash, room.DirectKey,
	).Scan(&room.CreatedAt)
}

func (db *PostgresDB) FindRoom(ctx context.Context, id string) (*models.Room, error) {
	query := `SELECT id, kind, name, visibility, owner_id, pass_hash, COALESCE(direct_key, ''), created_at FROM rooms WHERE id = $1`

	room := &models.Room{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&room.ID, &room.Kind, &room.Name, &room.Visibility, &room.OwnerID, &room.PassHash, &room.DirectKey, &room.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return room, nil
}

func (db *PostgresDB) FindDirectRoom(ctx context.Context, directKey string) (*models.Room, error) {
	query := `SELECT id, kind, name, visibility, owner_id, pass_hash, COALESCE(direct_key, ''), created_at FROM rooms WHERE direct_key = $1`

	room := &models.Room{}
	err := db.pool.QueryRow(ctx, query, directKey).Scan(
		&room.ID, &room.Kind, &room.Name, &room.Visibility, &room.OwnerID, &room.PassHash, &room.DirectKey, &room.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return room, nil
}

func (db *PostgresDB) ListRoomsForUser(ctx context.Context, userID string) ([]*models.Room, error) {
	query := `
		SELECT r.id, r.kind, r.name, r.visibility, r.owner_id, r.pass_hash, COALESCE(r.direct_key, ''), r.created_at
		FROM rooms r
		JOIN memberships m ON r.id = m.room_id
		WHERE m.user_id = $1
		ORDER BY r.created_at`

	return db.queryRooms(ctx, query, userID)
}

func (db *PostgresDB) ListPublicRooms(ctx context.Context) ([]*models.Room, error) {
	query := `
		SELECT id, kind, name, visibility, owner_id, pass_hash, COALESCE(direct_key, ''), created_at
		FROM rooms
		WHERE kind = 'group' AND visibility = 'public'
		ORDER BY name`

	return db.queryRooms(ctx, query)
}

func (db *PostgresDB) queryRooms(ctx context.Context, query string, args ...interface{}) ([]*models.Room, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room := &models.Room{}
		if err := rows.Scan(&room.ID, &room.Kind, &room.Name, &room.Visibility, &room.OwnerID, &room.PassHash, &room.DirectKey, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PostgresDB) DeleteRoom(ctx context.Context, roomID string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM messages WHERE room_id = $1", roomID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM memberships WHERE room_id = $1", roomID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM rooms WHERE id = $1", roomID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Membership Repository Implementation
func (db *PostgresDB) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM memberships WHERE room_id = $1 AND user_id = $2)`

	var exists bool
	err := db.pool.QueryRow(ctx, query, roomID, userID).Scan(&exists)
	return exists, err
}

func (db *PostgresDB) UpsertMembership(ctx context.Context, roomID, userID string, role models.Role) error {
	query := `
		INSERT INTO memberships (room_id, user_id, role, joined_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (room_id, user_id) DO NOTHING`

	_, err := db.pool.Exec(ctx, query, roomID, userID, role)
	return err
}

func (db *PostgresDB) RemoveMembership(ctx context.Context, roomID, userID string) error {
	query := `DELETE FROM memberships WHERE room_id = $1 AND user_id = $2`
	_, err := db.pool.Exec(ctx, query, roomID, userID)
	return err
}

func (db *PostgresDB) GetMembership(ctx context.Context, roomID, userID string) (*models.Membership, error) {
	query := `SELECT room_id, user_id, role, cleared_before, joined_at FROM memberships WHERE room_id = $1 AND user_id = $2`

	m := &models.Membership{}
	err := db.pool.QueryRow(ctx, query, roomID, userID).Scan(
		&m.RoomID, &m.UserID, &m.Role, &m.ClearedBefore, &m.JoinedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (db *PostgresDB) ListMembers(ctx context.Context, roomID string) ([]*models.Membership, error) {
	query := `
		SELECT m.room_id, m.user_id, u.name, m.role, m.cleared_before, m.joined_at
		FROM memberships m
		JOIN users u ON m.user_id = u.id
		WHERE m.room_id = $1
		ORDER BY u.name`

	rows, err := db.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.Membership
	for rows.Next() {
		m := &models.Membership{}
		if err := rows.Scan(&m.RoomID, &m.UserID, &m.UserName, &m.Role, &m.ClearedBefore, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

func (db *PostgresDB) SetClearedBefore(ctx context.Context, roomID, userID string, t time.Time) error {
	query := `
		UPDATE memberships SET cleared_before = GREATEST(cleared_before, $3)
		WHERE room_id = $1 AND user_id = $2`

	tag, err := db.pool.Exec(ctx, query, roomID, userID, t)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Message Repository Implementation
func (db *PostgresDB) CreateMessage(ctx context.Context, roomID, senderID, senderName, text string) (*models.Message, error) {
	query := `
		INSERT INTO messages (id, room_id, sender_id, sender_name, text, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at`

	msg := &models.Message{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
	}
	if err := db.pool.QueryRow(ctx, query, msg.ID, roomID, senderID, senderName, text).Scan(&msg.CreatedAt); err != nil {
		return nil, err
	}

	return msg, nil
}

func (db *PostgresDB) ListMessages(ctx context.Context, roomID string, afterWatermark time.Time, before *time.Time, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, room_id, sender_id, sender_name, text, created_at
		FROM messages
		WHERE room_id = $1 AND created_at > $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4`

	upper := time.Now().Add(time.Hour)
	if before != nil {
		upper = *before
	}

	rows, err := db.pool.Query(ctx, query, roomID, afterWatermark, upper, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.SenderName, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (db *PostgresDB) LastMessage(ctx context.Context, roomID string, afterWatermark time.Time) (*models.Message, error) {
	query := `
		SELECT id, room_id, sender_id, sender_name, text, created_at
		FROM messages
		WHERE room_id = $1 AND created_at > $2
		ORDER BY created_at DESC
		LIMIT 1`

	msg := &models.Message{}
	err := db.pool.QueryRow(ctx, query, roomID, afterWatermark).Scan(
		&msg.ID, &msg.RoomID, &msg.SenderID, &msg.SenderName, &msg.Text, &msg.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return msg, nil
}
