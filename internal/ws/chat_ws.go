package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"social-realtime/internal/auth"
	"social-realtime/internal/logging"
	"social-realtime/internal/observability"
)

const wsKind = "chat"

// HandlerOptions tunes the chat websocket endpoint.
type HandlerOptions struct {
	// OperationTimeout bounds the store work of a single inbound event.
	OperationTimeout time.Duration
	// AllowedOrigins restricts browser origins; empty allows any.
	AllowedOrigins []string
}

// ChatWebSocketHandler handles chat websocket connections.
type ChatWebSocketHandler struct {
	hub      *Hub
	router   *Router
	history  *HistoryFetcher
	tokens   *auth.Manager
	upgrader websocket.Upgrader
	timeout  time.Duration
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, router *Router, history *HistoryFetcher, tokens *auth.Manager, opts HandlerOptions) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{
		hub:     hub,
		router:  router,
		history: history,
		tokens:  tokens,
		timeout: opts.OperationTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(opts.AllowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Handle authenticates the handshake, upgrades the connection and serves it until it closes.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("social-realtime/ws").Start(c.Request.Context(), "ws.handshake", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	credential := c.GetHeader("Authorization")
	if credential == "" {
		credential = c.Query("token")
	}

	userID, err := h.tokens.VerifyCredential(credential)
	if err != nil {
		reason := auth.Reason(err)
		observability.IncAuthRejection("ws", reason)
		span.SetStatus(codes.Error, reason)
		logging.Info().Str("reason", reason).Str("ip", observability.IPFromRequest(c.Request)).Msg("websocket handshake rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "reason": reason})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	span.SetAttributes(attribute.String("user.id", userID))
	var traceID string
	if sc := span.SpanContext(); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)

	connCtx := context.WithoutCancel(ctx)
	h.hub.Connect(client)
	observability.IncWSActive(wsKind)
	observability.PublishWSEvent(connCtx, observability.WSLifecycle{
		Kind:   wsKind,
		Event:  "ws_connect",
		ConnID: info.ConnID,
	}, identity(info), time.Time{}, observability.BuildHeaders(requestID, traceID))

	go client.WritePump()
	go h.serve(connCtx, client)
}

func (h *ChatWebSocketHandler) serve(ctx context.Context, client *Client) {
	info := client.Info()
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	session := NewSession(ctx, client, h.hub, h.router, h.history, h.timeout)

	err := client.ReadPump(session.Handle)

	closeReason := ""
	if err != nil {
		closeReason = err.Error()
	}
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		observability.PublishWSEvent(ctx, observability.WSLifecycle{
			Kind:   wsKind,
			Event:  "ws_error",
			ConnID: info.ConnID,
			Reason: closeReason,
		}, identity(info), info.ConnectedAt, headers)
	}

	h.hub.Disconnect(client)
	client.Close()
	observability.DecWSActive(wsKind)
	observability.PublishWSEvent(ctx, observability.WSLifecycle{
		Kind:   wsKind,
		Event:  "ws_disconnect",
		ConnID: info.ConnID,
		Reason: closeReason,
	}, identity(info), info.ConnectedAt, headers)
}

func identity(info ConnInfo) observability.WSIdentity {
	return observability.WSIdentity{
		UserID:   info.UserID,
		DeviceID: info.DeviceID,
		IP:       info.IP,
	}
}
