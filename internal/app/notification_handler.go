package app

import (
	"net/http"

	"storyloom/internal/service"
	"storyloom/internal/util"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notificationService service.NotificationService
}

func NewNotificationHandler(notificationService service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// GetNotifications returns the caller's notifications, newest first
// GET /api/v1/notifications
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	limit, offset := paginationParams(c)

	notifications, err := h.notificationService.GetNotificationsByUserID(c.GetString("userID"), limit, offset)
	if err != nil {
		util.ErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve notifications", nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Notifications retrieved successfully", notifications)
}

// GetUnreadCount returns the caller's unread notification count
// GET /api/v1/notifications/unread/count
func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	count, err := h.notificationService.GetUnreadCount(c.GetString("userID"))
	if err != nil {
		util.ErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve unread count", nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Unread count retrieved successfully", gin.H{"count": count})
}

// MarkAsRead marks one notification as read
// PUT /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	if err := h.notificationService.MarkAsRead(c.Param("id"), c.GetString("userID")); err != nil {
		util.NotFound(c, "Notification not found")
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Notification marked as read", nil)
}

// MarkAllAsRead marks all of the caller's notifications as read
// PUT /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	if err := h.notificationService.MarkAllAsRead(c.GetString("userID")); err != nil {
		util.ErrorResponse(c, http.StatusInternalServerError, "Failed to mark notifications as read", nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "All notifications marked as read", nil)
}

// DeleteNotification removes one notification
// DELETE /api/v1/notifications/:id
func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	if err := h.notificationService.DeleteNotification(c.Param("id"), c.GetString("userID")); err != nil {
		util.NotFound(c, "Notification not found")
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Notification deleted successfully", nil)
}
