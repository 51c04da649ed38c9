package ws

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"social-realtime/internal/chaterrors"
	"social-realtime/internal/logging"
	"social-realtime/internal/models"
	"social-realtime/internal/observability"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Session dispatches the inbound events of one connection. Events are handled one at a time in arrival order.
type Session struct {
	conn    Conn
	hub     *Hub
	router  *Router
	history *HistoryFetcher
	ctx     context.Context
	timeout time.Duration
}

// NewSession binds a dispatcher to conn. Store calls run under ctx bounded by timeout per event.
func NewSession(ctx context.Context, conn Conn, hub *Hub, router *Router, history *HistoryFetcher, timeout time.Duration) *Session {
	return &Session{
		conn:    conn,
		hub:     hub,
		router:  router,
		history: history,
		ctx:     ctx,
		timeout: timeout,
	}
}

// Handle processes one raw client frame.
func (s *Session) Handle(raw []byte) {
	var in models.InboundEvent
	if err := json.Unmarshal(raw, &in); err != nil || in.Type == "" {
		observability.IncInboundEvent("invalid")
		s.fail(chaterrors.New(chaterrors.ErrValidationFailed, "invalid event", err))
		return
	}

	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
	}

	switch in.Type {
	case models.EventJoinChat:
		observability.IncInboundEvent(in.Type)
		var req models.JoinChatRequest
		if err := decode(in.Data, &req); err != nil {
			s.fail(err)
			return
		}
		other := strings.TrimSpace(req.UserID)
		if other == "" {
			s.fail(chaterrors.Validation("user_id is required"))
			return
		}
		roomID := RoomID(s.conn.UserID(), other)
		s.hub.Join(s.conn, roomID)
		logging.Debug().Str("user_id", s.conn.UserID()).Str("conn_id", s.conn.ID()).Str("room_id", roomID).Msg("joined chat")

	case models.EventGetChatHistory:
		observability.IncInboundEvent(in.Type)
		var req models.ChatHistoryRequest
		if err := decode(in.Data, &req); err != nil {
			s.fail(err)
			return
		}
		s.history.Fetch(ctx, s.conn, req.UserID)

	case models.EventSendMessage:
		observability.IncInboundEvent(in.Type)
		var req models.SendMessageRequest
		if err := decode(in.Data, &req); err != nil {
			s.fail(err)
			return
		}
		if _, err := s.router.Route(ctx, s.conn.UserID(), s.conn, req); err != nil {
			s.fail(err)
		}

	case models.EventPing:
		observability.IncInboundEvent(in.Type)
		s.conn.Send(models.Event{Type: models.EventPong})

	default:
		observability.IncInboundEvent("unknown")
		s.fail(chaterrors.Validation("unknown event type: " + in.Type))
	}
}

func (s *Session) fail(err error) {
	logging.Debug().Err(err).Str("user_id", s.conn.UserID()).Str("conn_id", s.conn.ID()).Msg("event rejected")
	s.conn.Send(models.ErrorEvent(chaterrors.Payload(err)))
}

func decode(data []byte, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return chaterrors.New(chaterrors.ErrValidationFailed, "invalid payload", err)
	}
	if err := validate.Struct(dst); err != nil {
		return chaterrors.Validation(validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Tag() == "required" {
			return fe.Field() + " is required"
		}
		return fe.Field() + " failed " + fe.Tag() + " validation"
	}
	return err.Error()
}
