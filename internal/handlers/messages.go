package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"social-realtime/internal/chaterrors"
	"social-realtime/internal/models"
	"social-realtime/internal/repositories"
	"social-realtime/internal/telemetry"
	"social-realtime/internal/ws"
)

// MessageHandler serves the direct message REST endpoints.
type MessageHandler struct {
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	router      *ws.Router
	history     *ws.HistoryFetcher
	audit       *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, router *ws.Router, history *ws.HistoryFetcher, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		router:      router,
		history:     history,
		audit:       audit,
	}
}

// ListChats returns one entry per counterpart with the latest message and the unread count, newest first.
func (h *MessageHandler) ListChats(c *gin.Context) {
	userID := c.GetString("userID")

	rows, err := h.messageRepo.ListChats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	ids := make([]string, 0, len(rows)+1)
	seen := map[string]struct{}{userID: {}}
	ids = append(ids, userID)
	for _, row := range rows {
		if _, ok := seen[row.CounterpartID]; !ok {
			seen[row.CounterpartID] = struct{}{}
			ids = append(ids, row.CounterpartID)
		}
	}

	users, err := h.userRepo.BulkUsers(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user info"})
		return
	}
	byID := models.UsersByID(users)

	chats := make([]models.ChatSummary, 0, len(rows))
	for _, row := range rows {
		summary := models.ChatSummary{
			CounterpartID: row.CounterpartID,
			LastMessage:   models.NewMessageView(row.Message, byID),
			UnreadCount:   row.UnreadCount,
		}
		if u, ok := byID[row.CounterpartID]; ok {
			counterpart := u.Summary()
			summary.Counterpart = &counterpart
		}
		chats = append(chats, summary)
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetConversation returns the conversation with :user_id and marks the counterpart's messages read.
func (h *MessageHandler) GetConversation(c *gin.Context) {
	userID := c.GetString("userID")

	views, err := h.history.Load(c.Request.Context(), userID, c.Param("user_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": views})
}

// SendMessage stores a message to a mutual follower and pushes it to live connections.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req struct {
		ReceiverID string `json:"receiver_id" binding:"required"`
		Content    string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	mutual, err := h.userRepo.AreMutualFollowers(c.Request.Context(), userID, req.ReceiverID)
	if err != nil {
		h.respondError(c, chaterrors.New(chaterrors.ErrDirectoryFailed, "failed to validate follow relationship", err))
		return
	}
	if !mutual {
		h.emitAudit(c, "WARN", "message rejected: users do not follow each other")
		h.respondError(c, chaterrors.New(chaterrors.ErrForbidden, "you can only message users who follow you back", nil))
		return
	}

	view, err := h.router.Route(c.Request.Context(), userID, nil, models.SendMessageRequest{
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

func (h *MessageHandler) respondError(c *gin.Context, err error) {
	status := chaterrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.emitAudit(c, "ERROR", err.Error())
	}
	payload := chaterrors.Payload(err)
	body := gin.H{"error": payload.Message}
	if payload.Details != "" {
		body["details"] = payload.Details
	}
	c.JSON(status, body)
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
