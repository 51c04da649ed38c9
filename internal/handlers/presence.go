package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"social-realtime/internal/ws"
)

type PresenceHandler struct {
	hub *ws.Hub
}

func NewPresenceHandler(hub *ws.Hub) *PresenceHandler {
	return &PresenceHandler{hub: hub}
}

// Online lists the users that currently have a live connection.
func (h *PresenceHandler) Online(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online":      h.hub.OnlineUsers(),
		"connections": h.hub.Count(),
	})
}
