package models

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// SupportedTaskStatuses all valid task status values
var SupportedTaskStatuses = map[TaskStatus]struct{}{
	TaskStatusTodo:       {},
	TaskStatusInProgress: {},
	TaskStatusReview:     {},
	TaskStatusDone:       {},
	TaskStatusCancelled:  {},
}

// TaskPriority is the urgency tag of a task.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

// ParseTaskPriority maps a free-form tag to a priority. Unknown or missing
// tags fall back to medium; generated suggestions are not trusted to be clean.
func ParseTaskPriority(tag string) TaskPriority {
	switch TaskPriority(tag) {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return TaskPriority(tag)
	default:
		return TaskPriorityMedium
	}
}

// Task is a unit of work owned by a room.
type Task struct {
	ID              uint         `json:"id" gorm:"primaryKey"`
	Title           string       `json:"title" gorm:"size:255;not null"`
	Description     string       `json:"description,omitempty" gorm:"type:text"`
	RoomID          uint         `json:"room_id" gorm:"index;not null"`
	Status          TaskStatus   `json:"status" gorm:"size:16;not null;default:'todo'"`
	Priority        TaskPriority `json:"priority" gorm:"size:16;not null;default:'medium'"`
	CreatedByID     uint         `json:"created_by_id" gorm:"index;not null"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	DueDate         *time.Time   `json:"due_date,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	EstimatedHours  *float64     `json:"estimated_hours,omitempty"`
	ComplexityScore *int         `json:"complexity_score,omitempty"`

	Assignments []TaskAssignment `json:"assignments,omitempty" gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
}

func (Task) TableName() string {
	return "tasks"
}

// TaskAssignment links a task to a responsible user.
// The (task_id, user_id) pair is the primary key; a user is assigned to a
// given task at most once. Assignments are deleted with their task.
type TaskAssignment struct {
	TaskID       uint      `json:"task_id" gorm:"primaryKey;autoIncrement:false"`
	UserID       uint      `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	AssignedAt   time.Time `json:"assigned_at"`
	AssignedByID *uint     `json:"assigned_by_id,omitempty"`
}

func (TaskAssignment) TableName() string {
	return "task_assignments"
}
