package ws

import (
	"encoding/json"

	"chat-server/internal/models"
)

type FrameType string

const (
	// inbound
	FrameJoin   FrameType = "join"
	FrameSend   FrameType = "send"
	FrameTyping FrameType = "typing"

	// outbound
	FrameReady    FrameType = "ready"
	FrameJoined   FrameType = "joined"
	FramePresence FrameType = "presence"
	FrameMessage  FrameType = "message"
	FrameError    FrameType = "error"
)

// ClientFrame is the envelope for every inbound frame. Unused fields stay
// at their zero value depending on the frame type.
type ClientFrame struct {
	Type     FrameType `json:"type"`
	RoomID   string    `json:"roomId,omitempty"`
	Text     string    `json:"text,omitempty"`
	IsTyping bool      `json:"isTyping,omitempty"`
}

type ReadyFrame struct {
	Type FrameType       `json:"type"`
	User models.Identity `json:"user"`
}

type JoinedFrame struct {
	Type   FrameType `json:"type"`
	RoomID string    `json:"roomId"`
}

type PresenceFrame struct {
	Type   FrameType         `json:"type"`
	RoomID string            `json:"roomId"`
	Online []models.Identity `json:"online"`
}

type TypingFrame struct {
	Type     FrameType `json:"type"`
	RoomID   string    `json:"roomId"`
	Name     string    `json:"name"`
	IsTyping bool      `json:"isTyping"`
}

type MessageFrame struct {
	Type    FrameType       `json:"type"`
	Message *models.Message `json:"message"`
}

type ErrorFrame struct {
	Type    FrameType `json:"type"`
	Message string    `json:"message"`
}

func marshalFrame(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
