package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/crewroom/crewroom/pkg/db"
	"github.com/crewroom/crewroom/pkg/models"
	"github.com/crewroom/crewroom/pkg/service"
)

// NotificationHandler provides HTTP handlers for notification operations
type NotificationHandler struct {
	Svc    *service.NotificationService
	Logger *slog.Logger
}

func NewNotificationHandler(svc *service.NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{Svc: svc, Logger: logger}
}

// NotificationListResponse wraps a notification page with counts.
type NotificationListResponse struct {
	Notifications []db.Notification `json:"notifications"`
	Total         int64             `json:"total"`
	Unread        int64             `json:"unread"`
}

func (h *NotificationHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, unread, err := h.Svc.List(c.Request.Context(), CurrentUserID(c), limit, offset)
	if err != nil {
		h.Logger.Error("Failed to list notifications", "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Retrieved successfully", Data: NotificationListResponse{
		Notifications: items,
		Total:         int64(len(items)),
		Unread:        unread,
	}})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid notification id"})
		return
	}
	if err := h.Svc.MarkRead(c.Request.Context(), CurrentUserID(c), uint(id)); err != nil {
		if errors.Is(err, service.ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Marked as read"})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	if err := h.Svc.MarkAllRead(c.Request.Context(), CurrentUserID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "All marked as read"})
}
