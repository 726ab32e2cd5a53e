// Database models for durable user notifications
package db

import "time"

// Notification types
const (
	NotificationTypeTaskAssigned = "task_assigned"
)

// Notification is a durable per-user notification row. Delivery over the
// live channel is best-effort; the row is the source of truth.
type Notification struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"index;not null"`
	Type      string    `json:"type" gorm:"size:32;not null"`
	Title     string    `json:"title" gorm:"size:255;not null"`
	Body      string    `json:"body,omitempty" gorm:"type:text"`
	TaskID    *uint     `json:"task_id,omitempty"`
	Read      bool      `json:"read" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
