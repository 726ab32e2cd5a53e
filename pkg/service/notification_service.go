package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crewroom/crewroom/pkg/db"
	"github.com/crewroom/crewroom/pkg/event"
	"github.com/crewroom/crewroom/pkg/utils"
	"gorm.io/gorm"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationService persists per-user notifications and announces them on
// the live channel. Persistence is the source of truth; the push is
// best-effort.
type NotificationService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(database *gorm.DB) *NotificationService {
	return &NotificationService{db: database, logger: utils.GetLogger()}
}

// AutoMigrate creates database tables
func (s *NotificationService) AutoMigrate() error {
	return s.db.AutoMigrate(&db.Notification{})
}

// CreateTaskAssigned records an assignment notification for userID and
// pushes a live event to that user.
func (s *NotificationService) CreateTaskAssigned(ctx context.Context, userID, taskID uint, taskTitle, assignedByName string) (*db.Notification, error) {
	n := &db.Notification{
		UserID:    userID,
		Type:      db.NotificationTypeTaskAssigned,
		Title:     "New task assigned",
		Body:      fmt.Sprintf("%s assigned you the task %q", assignedByName, taskTitle),
		TaskID:    &taskID,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}

	event.Emit(event.NotificationCreatedEvent{UserID: userID, NotificationID: n.ID})
	event.Emit(event.TaskAssignedEvent{UserID: userID, TaskID: taskID, Title: taskTitle, AssignedBy: assignedByName})
	return n, nil
}

// List returns a user's notifications newest-first with the unread count.
func (s *NotificationService) List(ctx context.Context, userID uint, limit, offset int) ([]db.Notification, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var unread int64
	if err := s.db.WithContext(ctx).Model(&db.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).Count(&unread).Error; err != nil {
		return nil, 0, err
	}

	var items []db.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, unread, nil
}

// MarkRead marks one notification read. The user scope prevents marking
// someone else's rows.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID uint) error {
	result := s.db.WithContext(ctx).Model(&db.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of the user read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).Model(&db.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true).Error
}
