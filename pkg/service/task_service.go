package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/crewroom/crewroom/pkg/event"
	"github.com/crewroom/crewroom/pkg/models"
	"github.com/crewroom/crewroom/pkg/utils"
	"gorm.io/gorm"
)

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrAlreadyAssigned = errors.New("user is already assigned to this task")
)

// TaskService handles task and assignment persistence.
type TaskService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewTaskService creates a new TaskService
func NewTaskService(db *gorm.DB) *TaskService {
	return &TaskService{db: db, logger: utils.GetLogger()}
}

// AutoMigrate creates database tables
func (s *TaskService) AutoMigrate() error {
	return s.db.AutoMigrate(&models.Task{}, &models.TaskAssignment{})
}

// CreateTaskRequest represents a request to create a task
type CreateTaskRequest struct {
	Title           string     `json:"title" binding:"required"`
	Description     string     `json:"description,omitempty"`
	RoomID          uint       `json:"room_id" binding:"required"`
	Priority        string     `json:"priority,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	EstimatedHours  *float64   `json:"estimated_hours,omitempty"`
	ComplexityScore *int       `json:"complexity_score,omitempty"`
	AssigneeIDs     []uint     `json:"assignee_ids,omitempty"`
}

// Create persists a task with its initial assignments. When no assignees are
// given the creator becomes responsible.
func (s *TaskService) Create(ctx context.Context, creatorID uint, req *CreateTaskRequest) (*models.Task, error) {
	assignees := make([]uint, 0, len(req.AssigneeIDs))
	for _, id := range req.AssigneeIDs {
		if id > 0 {
			assignees = append(assignees, id)
		}
	}
	if len(assignees) == 0 {
		assignees = append(assignees, creatorID)
	}

	task := &models.Task{
		Title:           req.Title,
		Description:     req.Description,
		RoomID:          req.RoomID,
		Status:          models.TaskStatusTodo,
		Priority:        models.ParseTaskPriority(req.Priority),
		CreatedByID:     creatorID,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
		DueDate:         req.DueDate,
		EstimatedHours:  req.EstimatedHours,
		ComplexityScore: req.ComplexityScore,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(task).Error; err != nil {
			return err
		}
		for _, userID := range assignees {
			assignment := &models.TaskAssignment{
				TaskID:       task.ID,
				UserID:       userID,
				AssignedAt:   time.Now(),
				AssignedByID: &creatorID,
			}
			if err := tx.Create(assignment).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	event.Emit(event.TaskCreatedEvent{RoomID: task.RoomID, TaskID: task.ID})
	return s.Get(ctx, task.ID)
}

// TaskListFilter narrows List results.
type TaskListFilter struct {
	Status   string
	Priority string
	Limit    int
	Offset   int
}

// List returns a room's tasks newest-first, with the total count for
// pagination.
func (s *TaskService) List(ctx context.Context, roomID uint, filter TaskListFilter) ([]models.Task, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Task{}).Where("room_id = ?", roomID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var tasks []models.Task
	err := query.Preload("Assignments").
		Order("created_at DESC").
		Limit(limit).Offset(filter.Offset).
		Find(&tasks).Error
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// Get retrieves a task with its assignments.
func (s *TaskService) Get(ctx context.Context, taskID uint) (*models.Task, error) {
	var task models.Task
	err := s.db.WithContext(ctx).Preload("Assignments").First(&task, "id = ?", taskID).Error
	if err != nil {
		return nil, ErrTaskNotFound
	}
	return &task, nil
}

// UpdateTaskRequest represents a partial task update
type UpdateTaskRequest struct {
	Title           *string    `json:"title,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Status          *string    `json:"status,omitempty"`
	Priority        *string    `json:"priority,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	EstimatedHours  *float64   `json:"estimated_hours,omitempty"`
	ComplexityScore *int       `json:"complexity_score,omitempty"`
}

// Update applies a partial update. Moving to done stamps completed_at;
// moving out of done clears it.
func (s *TaskService) Update(ctx context.Context, taskID uint, req *UpdateTaskRequest) (*models.Task, error) {
	task, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Status != nil {
		status := models.TaskStatus(*req.Status)
		if _, ok := models.SupportedTaskStatuses[status]; !ok {
			return nil, errors.New("unsupported task status: " + *req.Status)
		}
		updates["status"] = status
		if status == models.TaskStatusDone {
			updates["completed_at"] = time.Now()
		} else if task.Status == models.TaskStatusDone {
			updates["completed_at"] = nil
		}
	}
	if req.Priority != nil {
		updates["priority"] = models.ParseTaskPriority(*req.Priority)
	}
	if req.DueDate != nil {
		updates["due_date"] = *req.DueDate
	}
	if req.EstimatedHours != nil {
		updates["estimated_hours"] = *req.EstimatedHours
	}
	if req.ComplexityScore != nil {
		updates["complexity_score"] = *req.ComplexityScore
	}

	if err := s.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", taskID).Updates(updates).Error; err != nil {
		return nil, err
	}

	event.Emit(event.TaskUpdatedEvent{RoomID: task.RoomID, TaskID: task.ID})
	return s.Get(ctx, taskID)
}

// Delete removes a task and its assignments.
func (s *TaskService) Delete(ctx context.Context, taskID uint) error {
	task, err := s.Get(ctx, taskID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.TaskAssignment{}, "task_id = ?", taskID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Task{}, "id = ?", taskID).Error
	})
	if err != nil {
		return err
	}

	event.Emit(event.TaskDeletedEvent{RoomID: task.RoomID, TaskID: taskID})
	return nil
}

// Assign links a user to a task. Idempotence is rejected loudly so the
// caller knows the assignment already existed.
func (s *TaskService) Assign(ctx context.Context, taskID, userID, actorID uint) (*models.TaskAssignment, error) {
	if _, err := s.Get(ctx, taskID); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.TaskAssignment{}).
		Where("task_id = ? AND user_id = ?", taskID, userID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrAlreadyAssigned
	}

	assignment := &models.TaskAssignment{
		TaskID:       taskID,
		UserID:       userID,
		AssignedAt:   time.Now(),
		AssignedByID: &actorID,
	}
	if err := s.db.WithContext(ctx).Create(assignment).Error; err != nil {
		return nil, err
	}
	return assignment, nil
}

// Unassign removes a user from a task.
func (s *TaskService) Unassign(ctx context.Context, taskID, userID uint) error {
	result := s.db.WithContext(ctx).Delete(&models.TaskAssignment{}, "task_id = ? AND user_id = ?", taskID, userID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}
