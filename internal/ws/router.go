package ws

import (
	"context"
	"strings"

	"social-realtime/internal/chaterrors"
	"social-realtime/internal/logging"
	"social-realtime/internal/models"
	"social-realtime/internal/observability"
	"social-realtime/internal/ratelimit"
	"social-realtime/internal/repositories"
)

// Router persists submitted messages and fans them out to live connections.
type Router struct {
	hub      *Hub
	messages repositories.MessageRepository
	users    repositories.UserRepository
	limiter  ratelimit.Limiter
}

// NewRouter builds a Router. limiter may be nil to disable send limits.
func NewRouter(hub *Hub, messages repositories.MessageRepository, users repositories.UserRepository, limiter ratelimit.Limiter) *Router {
	return &Router{hub: hub, messages: messages, users: users, limiter: limiter}
}

// Route validates, stores and delivers a message from senderID. origin is the submitting connection and may be nil
// for submissions that did not arrive over a websocket. Nothing is persisted or delivered when an error is returned.
func (r *Router) Route(ctx context.Context, senderID string, origin Conn, req models.SendMessageRequest) (models.MessageView, error) {
	receiverID := strings.TrimSpace(req.ReceiverID)
	if receiverID == "" {
		return models.MessageView{}, chaterrors.Validation("receiver_id is required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return models.MessageView{}, chaterrors.Validation("content must not be empty")
	}

	log := logging.With().Str("user_id", senderID).Str("receiver_id", receiverID).Logger()

	if r.limiter != nil {
		allowed, err := r.limiter.Allow(ctx, senderID)
		if err != nil {
			log.Warn().Err(err).Msg("send rate limiter unavailable")
		}
		if !allowed {
			return models.MessageView{}, chaterrors.New(chaterrors.ErrRateLimited, "too many messages, slow down", nil)
		}
	}

	users, err := r.users.BulkUsers(ctx, distinct(senderID, receiverID))
	if err != nil {
		return models.MessageView{}, chaterrors.New(chaterrors.ErrDirectoryFailed, "failed to load user info", err)
	}
	byID := models.UsersByID(users)
	if _, ok := byID[receiverID]; !ok {
		return models.MessageView{}, chaterrors.Validation("receiver not found")
	}

	msg, err := r.messages.CreateMessage(ctx, senderID, receiverID, req.Content)
	if err != nil {
		log.Error().Err(err).Msg("failed to persist message")
		return models.MessageView{}, chaterrors.New(chaterrors.ErrPersistenceFailed, "failed to save message", err)
	}
	observability.IncMessagePersisted()

	view := models.NewMessageView(msg, byID)
	if req.Timestamp != nil {
		view.ClientTimestamp = models.FormatTimestamp(*req.Timestamp)
	}

	roomID := RoomID(senderID, receiverID)
	delivered := r.deliver(origin, roomID, senderID, receiverID, models.NewMessageEvent(view))
	log.Debug().Str("message_id", view.ID).Str("room_id", roomID).Int("deliveries", delivered).Msg("message routed")

	observability.PublishMessageSent(ctx, observability.MessageSent{
		MessageID:  view.ID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		RoomID:     roomID,
		Deliveries: delivered,
		CreatedAt:  view.CreatedAt,
	}, nil)

	return view, nil
}

type deliveryTarget struct {
	conn Conn
	path string
}

// deliver sends event once to each distinct connection among the origin, the room members and the registered
// connections of both participants. Connections that refuse the event are skipped.
func (r *Router) deliver(origin Conn, roomID, senderID, receiverID string, event models.Event) int {
	seen := make(map[string]struct{})
	targets := make([]deliveryTarget, 0, 4)
	add := func(conn Conn, path string) {
		if conn == nil {
			return
		}
		if _, ok := seen[conn.ID()]; ok {
			return
		}
		seen[conn.ID()] = struct{}{}
		targets = append(targets, deliveryTarget{conn: conn, path: path})
	}

	add(origin, observability.DeliveryOrigin)
	for _, conn := range r.hub.RoomConns(roomID) {
		add(conn, observability.DeliveryRoom)
	}
	if conn, ok := r.hub.Lookup(senderID); ok {
		add(conn, observability.DeliverySender)
	}
	if conn, ok := r.hub.Lookup(receiverID); ok {
		add(conn, observability.DeliveryReceiver)
	}

	delivered := 0
	for _, target := range targets {
		if !target.conn.Send(event) {
			observability.IncMessageDelivery(observability.DeliveryDropped)
			continue
		}
		observability.IncMessageDelivery(target.path)
		delivered++
	}
	return delivered
}
