package ws

import (
	"context"
	"strings"

	"social-realtime/internal/chaterrors"
	"social-realtime/internal/logging"
	"social-realtime/internal/models"
	"social-realtime/internal/repositories"
)

// HistoryFetcher loads the conversation between two users.
type HistoryFetcher struct {
	messages repositories.MessageRepository
	users    repositories.UserRepository
}

func NewHistoryFetcher(messages repositories.MessageRepository, users repositories.UserRepository) *HistoryFetcher {
	return &HistoryFetcher{messages: messages, users: users}
}

// Load returns the messages exchanged by requesterID and otherID, oldest first, with display fields attached.
// A counterpart missing from the directory yields an empty history. Messages sent to requesterID are marked read
// afterwards; a failure to do so is logged only.
func (f *HistoryFetcher) Load(ctx context.Context, requesterID, otherID string) ([]models.MessageView, error) {
	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return nil, chaterrors.Validation("user_id is required")
	}

	users, err := f.users.BulkUsers(ctx, distinct(requesterID, otherID))
	if err != nil {
		return nil, chaterrors.New(chaterrors.ErrDirectoryFailed, "failed to load user info", err)
	}
	byID := models.UsersByID(users)
	if _, ok := byID[otherID]; !ok {
		return []models.MessageView{}, nil
	}

	msgs, err := f.messages.ListConversation(ctx, requesterID, otherID)
	if err != nil {
		return nil, chaterrors.New(chaterrors.ErrPersistenceFailed, "failed to load chat history", err)
	}

	views := make([]models.MessageView, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, models.NewMessageView(msg, byID))
	}

	if marked, err := f.messages.MarkConversationRead(ctx, otherID, requesterID); err != nil {
		logging.Warn().Err(err).Str("user_id", requesterID).Str("other_id", otherID).Msg("failed to mark messages read")
	} else if marked > 0 {
		logging.Debug().Str("user_id", requesterID).Str("other_id", otherID).Int64("marked", marked).Msg("messages marked read")
	}

	return views, nil
}

// Fetch loads the history for conn's user and answers with one chat_history event, or an error event.
func (f *HistoryFetcher) Fetch(ctx context.Context, conn Conn, otherID string) {
	views, err := f.Load(ctx, conn.UserID(), otherID)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", conn.UserID()).Str("conn_id", conn.ID()).Msg("chat history failed")
		conn.Send(models.ErrorEvent(chaterrors.Payload(err)))
		return
	}
	conn.Send(models.ChatHistoryEvent(views))
}
