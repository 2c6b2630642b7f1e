package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Tavern/internal/service"
)

type NotificationHandler struct {
	notificationService service.INotificationService
}

func NewNotificationHandler(notificationService service.INotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

func (h *NotificationHandler) List(c *gin.Context) {
	_, email, ok := caller(c)
	if !ok {
		return
	}
	respond(c, h.notificationService.ListReceived(c.Request.Context(), email))
}

func (h *NotificationHandler) MarkSeen(c *gin.Context) {
	_, email, ok := caller(c)
	if !ok {
		return
	}
	respond(c, h.notificationService.MarkSeen(c.Request.Context(), email, c.Param("id")))
}
