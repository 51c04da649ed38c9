package ws

import (
	"time"

	"social-realtime/internal/models"
)

// Conn is a live client connection as seen by the hub.
type Conn interface {
	ID() string
	UserID() string
	// Send queues event for delivery and reports whether it was accepted.
	Send(event models.Event) bool
}

type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
