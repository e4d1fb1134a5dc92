package model

import "time"

// Message is a private note from one user to another.
// ReadAt is nil until the recipient opens their inbox.
type Message struct {
	ID             string     `json:"id"`
	SenderID       string     `json:"sender_id"`
	SenderUsername string     `json:"sender"`
	RecipientID    string     `json:"recipient_id"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

// Unread reports whether the recipient has not opened the message yet.
func (m *Message) Unread() bool {
	return m.ReadAt == nil
}
