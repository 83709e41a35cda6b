package models

import "time"

type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

type MessagesResponse struct {
	Messages   []*Message `json:"messages"`
	NextBefore *time.Time `json:"nextBefore"`
}
