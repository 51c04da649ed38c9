package models

import "time"

// TimestampLayout is the canonical text form of every timestamp sent to clients.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout, converting to UTC first.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Message is a persisted direct message between two users.
type Message struct {
	ID         string    `db:"id" json:"id"`
	Seq        int64     `db:"seq" json:"-"`
	SenderID   string    `db:"sender_id" json:"sender_id"`
	ReceiverID string    `db:"receiver_id" json:"receiver_id"`
	Content    string    `db:"content" json:"content"`
	Read       bool      `db:"read" json:"read"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// MessageView is the normalized message sent over the wire.
type MessageView struct {
	ID              string       `json:"id"`
	SenderID        string       `json:"sender_id"`
	ReceiverID      string       `json:"receiver_id"`
	Content         string       `json:"content"`
	Read            bool         `json:"read"`
	CreatedAt       string       `json:"created_at"`
	ClientTimestamp string       `json:"client_timestamp,omitempty"`
	Sender          *UserSummary `json:"sender,omitempty"`
	Receiver        *UserSummary `json:"receiver,omitempty"`
}

// NewMessageView normalizes msg. users supplies display fields by id; missing entries are left empty.
func NewMessageView(msg Message, users map[string]User) MessageView {
	view := MessageView{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		Read:       msg.Read,
		CreatedAt:  FormatTimestamp(msg.CreatedAt),
	}
	if u, ok := users[msg.SenderID]; ok {
		summary := u.Summary()
		view.Sender = &summary
	}
	if u, ok := users[msg.ReceiverID]; ok {
		summary := u.Summary()
		view.Receiver = &summary
	}
	return view
}

// ChatSummary is one entry of a user's chat list.
type ChatSummary struct {
	CounterpartID string       `json:"counterpart_id"`
	Counterpart   *UserSummary `json:"counterpart,omitempty"`
	LastMessage   MessageView  `json:"last_message"`
	UnreadCount   int          `json:"unread_count"`
}

// ChatRow is the store projection behind ChatSummary.
type ChatRow struct {
	CounterpartID string `db:"counterpart_id"`
	UnreadCount   int    `db:"unread_count"`
	Message
}
