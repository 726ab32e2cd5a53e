package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/crewroom/crewroom/pkg/models"
	"github.com/crewroom/crewroom/pkg/service"
)

// RoomHandler provides HTTP handlers for room operations
type RoomHandler struct {
	Svc    *service.RoomService
	Logger *slog.Logger
}

func NewRoomHandler(svc *service.RoomService, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{Svc: svc, Logger: logger}
}

func roomIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid room id"})
		return 0, false
	}
	return uint(id), true
}

// membershipStatus maps the access sentinels onto HTTP codes. Non-members
// and non-owners both get 403 with the sentinel's message.
func membershipStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, service.ErrNotRoomMember), errors.Is(err, service.ErrNotRoomOwner):
		return http.StatusForbidden, true
	case errors.Is(err, service.ErrRoomNotFound):
		return http.StatusNotFound, true
	}
	return 0, false
}

func (h *RoomHandler) Create(c *gin.Context) {
	var req service.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid request parameters: " + err.Error()})
		return
	}
	room, err := h.Svc.Create(c.Request.Context(), CurrentUserID(c), &req)
	if err != nil {
		h.Logger.Error("Failed to create room", "name", req.Name, "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	h.Logger.Info("Room created via API", "roomID", room.ID, "name", room.Name, "clientIP", c.ClientIP())
	c.JSON(http.StatusCreated, models.Response{Code: 200, Message: "Created successfully", Data: room})
}

func (h *RoomHandler) List(c *gin.Context) {
	rooms, err := h.Svc.ListForUser(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		h.Logger.Error("Failed to list rooms", "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Retrieved successfully", Data: rooms})
}

func (h *RoomHandler) Get(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	if _, err := h.Svc.VerifyMember(c.Request.Context(), roomID, CurrentUserID(c)); err != nil {
		if code, ok := membershipStatus(err); ok {
			c.JSON(code, models.Response{Code: code, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	room, err := h.Svc.Get(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Retrieved successfully", Data: room})
}

func (h *RoomHandler) Members(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	if _, err := h.Svc.VerifyMember(c.Request.Context(), roomID, CurrentUserID(c)); err != nil {
		if code, ok := membershipStatus(err); ok {
			c.JSON(code, models.Response{Code: code, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	members, err := h.Svc.Members(c.Request.Context(), roomID)
	if err != nil {
		h.Logger.Error("Failed to list room members", "roomID", roomID, "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Retrieved successfully", Data: members})
}

type addMemberRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

func (h *RoomHandler) AddMember(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid request parameters: " + err.Error()})
		return
	}
	member, err := h.Svc.AddMember(c.Request.Context(), roomID, CurrentUserID(c), req.UserID)
	if err != nil {
		if code, ok := membershipStatus(err); ok {
			c.JSON(code, models.Response{Code: code, Message: err.Error()})
			return
		}
		if errors.Is(err, service.ErrAlreadyMember) {
			c.JSON(http.StatusConflict, models.Response{Code: 409, Message: err.Error()})
			return
		}
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: err.Error()})
			return
		}
		h.Logger.Error("Failed to add room member", "roomID", roomID, "userID", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	h.Logger.Info("Room member added via API", "roomID", roomID, "userID", req.UserID, "clientIP", c.ClientIP())
	c.JSON(http.StatusCreated, models.Response{Code: 200, Message: "Member added successfully", Data: member})
}
