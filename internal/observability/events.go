package observability

import (
	"context"
	"sync"
	"time"
)

// Routing keys for domain events.
const (
	RoutingKeyWSChats  = "ws_events.chats"
	RoutingKeyMessages = "chat_events.messages"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

var (
	publisherMu      sync.RWMutex
	defaultPublisher Publisher
)

func SetPublisher(publisher Publisher) {
	publisherMu.Lock()
	defer publisherMu.Unlock()
	defaultPublisher = publisher
}

func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	publisherMu.RLock()
	publisher := defaultPublisher
	publisherMu.RUnlock()
	if publisher == nil {
		return nil
	}

	err := publisher.Publish(ctx, routingKey, message, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// WSIdentity describes the peer of a websocket connection.
type WSIdentity struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// WSLifecycle is the payload of ws_connect, ws_disconnect and ws_error events.
type WSLifecycle struct {
	Kind       string `json:"kind"`
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason"`
}

type wsPayload struct {
	WS       WSLifecycle `json:"ws"`
	Identity WSIdentity  `json:"identity"`
}

// PublishWSEvent records a websocket lifecycle event as a metric and on the broker.
func PublishWSEvent(ctx context.Context, event WSLifecycle, identity WSIdentity, connectedAt time.Time, headers map[string]string) {
	if !connectedAt.IsZero() {
		event.DurationMS = time.Since(connectedAt).Milliseconds()
	}
	IncWSEvent(event.Kind, event.Event)
	_ = PublishEvent(ctx, RoutingKeyWSChats, EventEnvelope{
		EventType: "ws_events",
		EventName: event.Event,
		Payload:   wsPayload{WS: event, Identity: identity},
	}, headers)
}

// MessageSent is the payload of message_sent events.
type MessageSent struct {
	MessageID  string `json:"message_id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	RoomID     string `json:"room_id"`
	Deliveries int    `json:"deliveries"`
	CreatedAt  string `json:"created_at"`
}

func PublishMessageSent(ctx context.Context, payload MessageSent, headers map[string]string) {
	_ = PublishEvent(ctx, RoutingKeyMessages, EventEnvelope{
		EventType: "chat_events",
		EventName: "message_sent",
		Payload:   payload,
	}, headers)
}
