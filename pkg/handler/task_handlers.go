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

// TaskHandler provides HTTP handlers for task operations
type TaskHandler struct {
	Svc    *service.TaskService
	Rooms  *service.RoomService
	Logger *slog.Logger
}

func NewTaskHandler(svc *service.TaskService, rooms *service.RoomService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{Svc: svc, Rooms: rooms, Logger: logger}
}

func taskIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid task id"})
		return 0, false
	}
	return uint(id), true
}

// guardMember aborts with the mapped status unless the caller belongs to the
// room.
func (h *TaskHandler) guardMember(c *gin.Context, roomID uint) bool {
	if _, err := h.Rooms.VerifyMember(c.Request.Context(), roomID, CurrentUserID(c)); err != nil {
		if code, ok := membershipStatus(err); ok {
			c.JSON(code, models.Response{Code: code, Message: err.Error()})
			return false
		}
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return false
	}
	return true
}

// loadTask fetches a task and checks the caller's membership in its room.
func (h *TaskHandler) loadTask(c *gin.Context) (*models.Task, bool) {
	taskID, ok := taskIDParam(c)
	if !ok {
		return nil, false
	}
	task, err := h.Svc.Get(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: err.Error()})
		return nil, false
	}
	if !h.guardMember(c, task.RoomID) {
		return nil, false
	}
	return task, true
}

func (h *TaskHandler) Create(c *gin.Context) {
	var req service.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid request parameters: " + err.Error()})
		return
	}
	if !h.guardMember(c, req.RoomID) {
		return
	}
	task, err := h.Svc.Create(c.Request.Context(), CurrentUserID(c), &req)
	if err != nil {
		h.Logger.Error("Failed to create task", "roomID", req.RoomID, "title", req.Title, "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	h.Logger.Info("Task created via API", "taskID", task.ID, "roomID", task.RoomID, "clientIP", c.ClientIP())
	c.JSON(http.StatusCreated, models.Response{Code: 200, Message: "Created successfully", Data: task})
}

// TaskListResponse wraps a task page with its total count.
type TaskListResponse struct {
	Tasks []models.Task `json:"tasks"`
	Total int64         `json:"total"`
}

func (h *TaskHandler) List(c *gin.Context) {
	roomID, err := strconv.ParseUint(c.Query("room_id"), 10, 64)
	if err != nil || roomID == 0 {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "room_id query parameter is required"})
		return
	}
	if !h.guardMember(c, uint(roomID)) {
		return
	}
	filter := service.TaskListFilter{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	tasks, total, err := h.Svc.List(c.Request.Context(), uint(roomID), filter)
	if err != nil {
		h.Logger.Error("Failed to list tasks", "roomID", roomID, "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Retrieved successfully", Data: TaskListResponse{Tasks: tasks, Total: total}})
}

func (h *TaskHandler) Get(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Retrieved successfully", Data: task})
}

func (h *TaskHandler) Update(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}
	var req service.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid request parameters: " + err.Error()})
		return
	}
	updated, err := h.Svc.Update(c.Request.Context(), task.ID, &req)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: err.Error()})
		return
	}
	h.Logger.Info("Task updated via API", "taskID", task.ID, "clientIP", c.ClientIP())
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Updated successfully", Data: updated})
}

func (h *TaskHandler) Delete(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}
	// Only the task's creator or the room owner may delete.
	callerID := CurrentUserID(c)
	if task.CreatedByID != callerID {
		if _, err := h.Rooms.VerifyOwner(c.Request.Context(), task.RoomID, callerID); err != nil {
			c.JSON(http.StatusForbidden, models.Response{Code: 403, Message: "only the task creator or room owner can delete this task"})
			return
		}
	}
	if err := h.Svc.Delete(c.Request.Context(), task.ID); err != nil {
		h.Logger.Error("Failed to delete task", "taskID", task.ID, "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	h.Logger.Info("Task deleted via API", "taskID", task.ID, "clientIP", c.ClientIP())
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Deleted successfully"})
}

type assignRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

func (h *TaskHandler) Assign(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid request parameters: " + err.Error()})
		return
	}
	if _, err := h.Rooms.VerifyMember(c.Request.Context(), task.RoomID, req.UserID); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "assignee is not a member of this room"})
		return
	}
	assignment, err := h.Svc.Assign(c.Request.Context(), task.ID, req.UserID, CurrentUserID(c))
	if err != nil {
		if errors.Is(err, service.ErrAlreadyAssigned) {
			c.JSON(http.StatusConflict, models.Response{Code: 409, Message: err.Error()})
			return
		}
		h.Logger.Error("Failed to assign task", "taskID", task.ID, "userID", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	h.Logger.Info("Task assigned via API", "taskID", task.ID, "userID", req.UserID, "clientIP", c.ClientIP())
	c.JSON(http.StatusCreated, models.Response{Code: 200, Message: "Assigned successfully", Data: assignment})
}

func (h *TaskHandler) Unassign(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}
	userID, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid user id"})
		return
	}
	if err := h.Svc.Unassign(c.Request.Context(), task.ID, uint(userID)); err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: "assignment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Unassigned successfully"})
}
