package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"social-realtime/internal/models"
)

// MessageRepository is the durable store of direct messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, senderID, receiverID, content string) (models.Message, error)
	ListConversation(ctx context.Context, userID, otherID string) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, senderID, receiverID string) (int64, error)
	ListChats(ctx context.Context, userID string) ([]models.ChatRow, error)
	CountMessages(ctx context.Context) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage appends a message. The store assigns id, sequence and creation time.
func (r *MessageRepo) CreateMessage(ctx context.Context, senderID, receiverID, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, receiver_id, content) VALUES ($1, $2, $3)
        RETURNING id, seq, sender_id, receiver_id, content, read, created_at`, senderID, receiverID, content).
		StructScan(&msg)
	return msg, err
}

// ListConversation returns every message exchanged between the two users, oldest first.
func (r *MessageRepo) ListConversation(ctx context.Context, userID, otherID string) ([]models.Message, error) {
	query := `SELECT id, seq, sender_id, receiver_id, content, read, created_at
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC, seq ASC`
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, query, userID, otherID)
	return msgs, err
}

// MarkConversationRead flags unread messages from senderID to receiverID as read.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET read = TRUE WHERE sender_id=$1 AND receiver_id=$2 AND read = FALSE`, senderID, receiverID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListChats returns the latest message per counterpart together with the unread count, newest first.
func (r *MessageRepo) ListChats(ctx context.Context, userID string) ([]models.ChatRow, error) {
	query := `WITH latest AS (
            SELECT DISTINCT ON (counterpart_id)
                CASE WHEN sender_id=$1 THEN receiver_id ELSE sender_id END AS counterpart_id,
                id, seq, sender_id, receiver_id, content, read, created_at
            FROM messages
            WHERE sender_id=$1 OR receiver_id=$1
            ORDER BY counterpart_id, created_at DESC, seq DESC
        ), unread AS (
            SELECT sender_id AS counterpart_id, COUNT(*) AS unread_count
            FROM messages
            WHERE receiver_id=$1 AND read = FALSE
            GROUP BY sender_id
        )
        SELECT l.counterpart_id, COALESCE(u.unread_count, 0) AS unread_count,
            l.id, l.seq, l.sender_id, l.receiver_id, l.content, l.read, l.created_at
        FROM latest l
        LEFT JOIN unread u ON u.counterpart_id = l.counterpart_id
        ORDER BY l.created_at DESC, l.seq DESC`
	rows := []models.ChatRow{}
	err := r.db.SelectContext(ctx, &rows, query, userID)
	return rows, err
}

// CountMessages returns the number of stored messages.
func (r *MessageRepo) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages`)
	return count, err
}
