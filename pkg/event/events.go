package event

// ============================================================================
// Event Names (constants)
// ============================================================================

const (
	AIProgress          = "ai.progress"
	AnalysisCreated     = "ai.analysisCreated"
	AnalysisApplied     = "ai.analysisApplied"
	AnalysisDeleted     = "ai.analysisDeleted"
	TaskCreated         = "task.created"
	TaskUpdated         = "task.updated"
	TaskDeleted         = "task.deleted"
	TaskAssigned        = "task.assigned"
	NotificationCreated = "notification.created"
	RoomMemberAdded     = "room.memberAdded"
)

// AI progress stages sent during a breakdown request.
const (
	AIStageAnalyzing    = "analyzing"
	AIStageBreakingDown = "breaking_down"
	AIStageComplete     = "complete"
)

// ============================================================================
// AI Workflow Events
// ============================================================================

// AIProgressEvent is emitted to the requesting owner while a breakdown
// request works through its analysis and generation steps.
type AIProgressEvent struct {
	UserID     uint   `json:"user_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	AnalysisID uint   `json:"analysis_id,omitempty"`
}

func (e AIProgressEvent) EventName() string  { return AIProgress }
func (e AIProgressEvent) TargetUserID() uint { return e.UserID }

// AnalysisCreatedEvent is emitted when a pending breakdown draft is persisted.
type AnalysisCreatedEvent struct {
	RoomID     uint `json:"room_id"`
	AnalysisID uint `json:"analysis_id"`
}

func (e AnalysisCreatedEvent) EventName() string { return AnalysisCreated }

// AnalysisAppliedEvent is emitted after an apply commits.
type AnalysisAppliedEvent struct {
	RoomID     uint   `json:"room_id"`
	AnalysisID uint   `json:"analysis_id"`
	TaskIDs    []uint `json:"task_ids"`
}

func (e AnalysisAppliedEvent) EventName() string { return AnalysisApplied }

// AnalysisDeletedEvent is emitted when an analysis record is deleted.
type AnalysisDeletedEvent struct {
	RoomID     uint `json:"room_id"`
	AnalysisID uint `json:"analysis_id"`
}

func (e AnalysisDeletedEvent) EventName() string { return AnalysisDeleted }

// ============================================================================
// Task Events
// ============================================================================

// TaskCreatedEvent is emitted when a task is created.
type TaskCreatedEvent struct {
	RoomID uint `json:"room_id"`
	TaskID uint `json:"task_id"`
}

func (e TaskCreatedEvent) EventName() string { return TaskCreated }

// TaskUpdatedEvent is emitted when a task is updated.
type TaskUpdatedEvent struct {
	RoomID uint `json:"room_id"`
	TaskID uint `json:"task_id"`
}

func (e TaskUpdatedEvent) EventName() string { return TaskUpdated }

// TaskDeletedEvent is emitted when a task is deleted.
type TaskDeletedEvent struct {
	RoomID uint `json:"room_id"`
	TaskID uint `json:"task_id"`
}

func (e TaskDeletedEvent) EventName() string { return TaskDeleted }

// TaskAssignedEvent is delivered to the user who was just assigned a task.
type TaskAssignedEvent struct {
	UserID     uint   `json:"user_id"`
	TaskID     uint   `json:"task_id"`
	Title      string `json:"title"`
	AssignedBy string `json:"assigned_by"`
}

func (e TaskAssignedEvent) EventName() string  { return TaskAssigned }
func (e TaskAssignedEvent) TargetUserID() uint { return e.UserID }

// ============================================================================
// Notification / Room Events
// ============================================================================

// NotificationCreatedEvent tells a user's clients to refetch notifications.
type NotificationCreatedEvent struct {
	UserID         uint `json:"user_id"`
	NotificationID uint `json:"notification_id"`
}

func (e NotificationCreatedEvent) EventName() string  { return NotificationCreated }
func (e NotificationCreatedEvent) TargetUserID() uint { return e.UserID }

// RoomMemberAddedEvent is emitted when a user joins a room.
type RoomMemberAddedEvent struct {
	RoomID uint `json:"room_id"`
	UserID uint `json:"user_id"`
}

func (e RoomMemberAddedEvent) EventName() string { return RoomMemberAdded }
