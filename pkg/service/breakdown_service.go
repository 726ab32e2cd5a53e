// Breakdown workflow: AI-proposed task breakdowns with owner review and
// selective apply.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crewroom/crewroom/pkg/db"
	"github.com/crewroom/crewroom/pkg/event"
	"github.com/crewroom/crewroom/pkg/models"
	"github.com/crewroom/crewroom/pkg/utils"
	"gorm.io/gorm"
)

var (
	ErrAnalysisNotFound       = errors.New("analysis not found")
	ErrAnalysisAlreadyApplied = errors.New("this analysis has already been applied")
	ErrAnalysisFailed         = errors.New("AI analysis failed")
)

// BreakdownService drives the propose -> review -> apply workflow.
// The analyzer and generator are injected so tests can fake the AI step.
type BreakdownService struct {
	db            *gorm.DB
	rooms         *RoomService
	users         *UserService
	notifications *NotificationService
	analyzer      ProblemAnalyzer
	generator     BreakdownGenerator
	logger        *slog.Logger
}

// NewBreakdownService creates a new BreakdownService
func NewBreakdownService(database *gorm.DB, rooms *RoomService, users *UserService, notifications *NotificationService, analyzer ProblemAnalyzer, generator BreakdownGenerator) *BreakdownService {
	return &BreakdownService{
		db:            database,
		rooms:         rooms,
		users:         users,
		notifications: notifications,
		analyzer:      analyzer,
		generator:     generator,
		logger:        utils.GetLogger(),
	}
}

// AutoMigrate creates database tables
func (s *BreakdownService) AutoMigrate() error {
	return s.db.AutoMigrate(&db.AnalysisRecord{})
}

// CreateBreakdownRequest represents a breakdown creation request
type CreateBreakdownRequest struct {
	RoomID             uint   `json:"room_id" binding:"required"`
	ProblemDescription string `json:"problem_description" binding:"required"`
	Language           string `json:"language,omitempty"`
	UseReasoningModel  bool   `json:"use_reasoning_model,omitempty"`
}

// BreakdownProjection is the full externally visible view of one analysis.
type BreakdownProjection struct {
	AnalysisID      uint                   `json:"analysis_id"`
	OverallStrategy string                 `json:"overall_strategy"`
	Subtasks        []db.SubtaskSuggestion `json:"subtasks"`
	ProblemAnalysis models.JSONMap         `json:"problem_analysis"`
	ModelUsed       string                 `json:"model_used"`
	Warnings        []string               `json:"warnings"`
	Status          string                 `json:"status"`
	CreatedAt       time.Time              `json:"created_at"`
}

// Create runs the AI steps and persists a pending draft. The record is only
// written after generation succeeds, so a failed AI call never leaves an
// orphaned draft behind. Progress events are fire-and-forget.
func (s *BreakdownService) Create(ctx context.Context, callerID uint, req *CreateBreakdownRequest) (*BreakdownProjection, error) {
	if _, err := s.rooms.VerifyOwner(ctx, req.RoomID, callerID); err != nil {
		return nil, err
	}

	event.Emit(event.AIProgressEvent{UserID: callerID, Status: event.AIStageAnalyzing, Message: "Analyzing problem..."})

	analysis, err := s.analyzer.Analyze(ctx, req.ProblemDescription, req.Language)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	event.Emit(event.AIProgressEvent{UserID: callerID, Status: event.AIStageBreakingDown, Message: "Creating task breakdown..."})

	members, err := s.memberProfiles(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}

	breakdown, err := s.generator.Generate(ctx, analysis, req.ProblemDescription, members, req.UseReasoningModel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	record := &db.AnalysisRecord{
		RoomID:             req.RoomID,
		CreatedByID:        callerID,
		ProblemDescription: req.ProblemDescription,
		Language:           req.Language,
		Payload: db.AnalysisPayload{
			Version:           db.PayloadVersion,
			ProblemAnalysis:   analysis,
			SuggestedSubtasks: breakdown.Subtasks,
			OverallStrategy:   breakdown.OverallStrategy,
			ModelUsed:         breakdown.ModelUsed,
		},
		Status:    db.AnalysisStatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}

	event.Emit(event.AIProgressEvent{UserID: callerID, Status: event.AIStageComplete, Message: "Analysis complete!", AnalysisID: record.ID})
	event.Emit(event.AnalysisCreatedEvent{RoomID: record.RoomID, AnalysisID: record.ID})

	proj := projectRecord(record)
	proj.Warnings = breakdown.Warnings
	return proj, nil
}

// ApplyBreakdownRequest represents an apply request. A nil index selection
// means "apply every suggestion"; an empty slice applies none.
type ApplyBreakdownRequest struct {
	AnalysisID             uint   `json:"analysis_id" binding:"required"`
	SelectedSubtaskIndices *[]int `json:"selected_subtask_indices,omitempty"`
}

// CreatedTaskSummary is the per-task line of an apply response.
type CreatedTaskSummary struct {
	TaskID     uint   `json:"task_id"`
	Title      string `json:"title"`
	AssignedTo string `json:"assigned_to,omitempty"`
	Priority   string `json:"priority"`
}

// SideEffectResult reports one notification/live-update attempt. Failures
// here are diagnostics, never errors: the tasks are already committed.
type SideEffectResult struct {
	TaskID uint   `json:"task_id"`
	UserID uint   `json:"user_id"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// ApplyResult is the apply response.
type ApplyResult struct {
	AnalysisID   uint                 `json:"analysis_id"`
	CreatedTasks []CreatedTaskSummary `json:"created_tasks"`
	TotalCreated int                  `json:"total_created"`
	Status       string               `json:"status"`
	AppliedAt    time.Time            `json:"applied_at"`
	SideEffects  []SideEffectResult   `json:"side_effects,omitempty"`
}

// pendingSideEffect is an assignment whose notification is dispatched after
// the transaction commits.
type pendingSideEffect struct {
	userID    uint
	taskID    uint
	taskTitle string
}

// Apply materializes the selected suggestions into tasks and assignments and
// closes the draft. Everything up to and including the status flip happens in
// one transaction; a failure midway leaves no partial state. Notifications
// are dispatched only after the commit and cannot roll it back.
func (s *BreakdownService) Apply(ctx context.Context, callerID uint, req *ApplyBreakdownRequest) (*ApplyResult, error) {
	var record db.AnalysisRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", req.AnalysisID).Error; err != nil {
		return nil, ErrAnalysisNotFound
	}

	if _, err := s.rooms.VerifyOwner(ctx, record.RoomID, callerID); err != nil {
		return nil, err
	}

	if record.Status == db.AnalysisStatusApproved {
		return nil, ErrAnalysisAlreadyApplied
	}

	caller, err := s.users.Get(ctx, callerID)
	if err != nil {
		return nil, err
	}

	// Order-preserving selection by position in the stored list.
	// Out-of-range indices are ignored, not rejected.
	suggestions := record.Payload.SuggestedSubtasks
	selected := suggestions
	if req.SelectedSubtaskIndices != nil {
		wanted := make(map[int]struct{}, len(*req.SelectedSubtaskIndices))
		for _, idx := range *req.SelectedSubtaskIndices {
			wanted[idx] = struct{}{}
		}
		selected = nil
		for i, st := range suggestions {
			if _, ok := wanted[i]; ok {
				selected = append(selected, st)
			}
		}
	}

	now := time.Now()
	var (
		summaries   []CreatedTaskSummary
		taskIDs     []uint
		sideEffects []pendingSideEffect
	)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Guarded transition: a concurrent apply already past the fast-path
		// check loses here and rolls back without creating anything.
		res := tx.Model(&db.AnalysisRecord{}).
			Where("id = ? AND status = ?", record.ID, db.AnalysisStatusPending).
			Updates(map[string]interface{}{"status": db.AnalysisStatusApproved, "applied_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAnalysisAlreadyApplied
		}

		for _, st := range selected {
			// A bad due-date offset never blocks task creation.
			var dueDate *time.Time
			if days, ok := st.DueDateDays.Int(); ok {
				d := now.AddDate(0, 0, days)
				dueDate = &d
			}

			task := &models.Task{
				Title:           st.Title,
				Description:     st.Description,
				RoomID:          record.RoomID,
				Status:          models.TaskStatusTodo,
				Priority:        models.ParseTaskPriority(st.Priority),
				CreatedByID:     callerID,
				CreatedAt:       now,
				UpdatedAt:       now,
				DueDate:         dueDate,
				EstimatedHours:  st.EstimatedHours,
				ComplexityScore: st.ComplexityScore,
			}
			if err := tx.Create(task).Error; err != nil {
				return err
			}

			assigneeID, assigneeName := s.resolveAssignee(tx, record.RoomID, st)
			if assigneeID != 0 {
				assignment := &models.TaskAssignment{
					TaskID:       task.ID,
					UserID:       assigneeID,
					AssignedAt:   now,
					AssignedByID: &callerID,
				}
				if err := tx.Create(assignment).Error; err != nil {
					return err
				}
				sideEffects = append(sideEffects, pendingSideEffect{
					userID:    assigneeID,
					taskID:    task.ID,
					taskTitle: task.Title,
				})
			}

			taskIDs = append(taskIDs, task.ID)
			summaries = append(summaries, CreatedTaskSummary{
				TaskID:     task.ID,
				Title:      task.Title,
				AssignedTo: assigneeName,
				Priority:   string(task.Priority),
			})
		}

		return tx.Model(&db.AnalysisRecord{}).
			Where("id = ?", record.ID).
			Update("created_task_ids", db.UintSlice(taskIDs)).Error
	})
	if err != nil {
		return nil, err
	}

	// Side effects run after the commit; a failed notification is logged
	// and reported, never propagated.
	results := make([]SideEffectResult, 0, len(sideEffects))
	for _, se := range sideEffects {
		result := SideEffectResult{TaskID: se.taskID, UserID: se.userID, OK: true}
		if _, err := s.notifications.CreateTaskAssigned(ctx, se.userID, se.taskID, se.taskTitle, caller.Username); err != nil {
			s.logger.Warn("Failed to create assignment notification",
				"taskID", se.taskID,
				"userID", se.userID,
				"error", err)
			result.OK = false
			result.Reason = err.Error()
		}
		results = append(results, result)
	}

	event.Emit(event.AnalysisAppliedEvent{RoomID: record.RoomID, AnalysisID: record.ID, TaskIDs: taskIDs})

	return &ApplyResult{
		AnalysisID:   record.ID,
		CreatedTasks: summaries,
		TotalCreated: len(summaries),
		Status:       string(db.AnalysisStatusApproved),
		AppliedAt:    now,
		SideEffects:  results,
	}, nil
}

// resolveAssignee picks the suggestion's assignee: an explicit user id wins,
// otherwise the username is matched against the room's members. No match
// means the task stays unassigned; that is not an error.
func (s *BreakdownService) resolveAssignee(tx *gorm.DB, roomID uint, st db.SubtaskSuggestion) (uint, string) {
	if st.AssignedToUserID != nil && *st.AssignedToUserID > 0 {
		return *st.AssignedToUserID, st.AssignedToUsername
	}
	if st.AssignedToUsername == "" {
		return 0, ""
	}

	var user models.User
	err := tx.
		Joins("JOIN room_members ON room_members.user_id = users.id").
		Where("room_members.room_id = ? AND users.username = ?", roomID, st.AssignedToUsername).
		First(&user).Error
	if err != nil {
		return 0, st.AssignedToUsername
	}
	return user.ID, user.Username
}

// HistoryItem is the truncated per-record view of the history listing.
type HistoryItem struct {
	ID                 uint       `json:"id"`
	ProblemDescription string     `json:"problem_description"`
	Status             string     `json:"status"`
	OverallStrategy    string     `json:"overall_strategy"`
	SubtasksCount      int        `json:"subtasks_count"`
	CreatedTasksCount  int        `json:"created_tasks_count"`
	CreatedAt          time.Time  `json:"created_at"`
	AppliedAt          *time.Time `json:"applied_at,omitempty"`
	ModelUsed          string     `json:"model_used"`
}

// History lists a room's analysis records newest-first. The total counts
// every record in the room regardless of the pagination window.
func (s *BreakdownService) History(ctx context.Context, callerID, roomID uint, limit, offset int) ([]HistoryItem, int64, error) {
	if _, err := s.rooms.VerifyOwner(ctx, roomID, callerID); err != nil {
		return nil, 0, err
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&db.AnalysisRecord{}).
		Where("room_id = ?", roomID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []db.AnalysisRecord
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}

	items := make([]HistoryItem, 0, len(records))
	for _, rec := range records {
		items = append(items, HistoryItem{
			ID:                 rec.ID,
			ProblemDescription: truncateDescription(rec.ProblemDescription, 200),
			Status:             string(rec.Status),
			OverallStrategy:    rec.Payload.OverallStrategy,
			SubtasksCount:      len(rec.Payload.SuggestedSubtasks),
			CreatedTasksCount:  len(rec.CreatedTaskIDs),
			CreatedAt:          rec.CreatedAt,
			AppliedAt:          rec.AppliedAt,
			ModelUsed:          rec.Payload.ModelUsed,
		})
	}
	return items, total, nil
}

// Get returns the full projection of one record, any status.
func (s *BreakdownService) Get(ctx context.Context, callerID, analysisID uint) (*BreakdownProjection, error) {
	var record db.AnalysisRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", analysisID).Error; err != nil {
		return nil, ErrAnalysisNotFound
	}
	if _, err := s.rooms.VerifyOwner(ctx, record.RoomID, callerID); err != nil {
		return nil, err
	}
	return projectRecord(&record), nil
}

// Delete removes the analysis record only. Tasks it produced are independent
// entities by then and are never touched.
func (s *BreakdownService) Delete(ctx context.Context, callerID, analysisID uint) error {
	var record db.AnalysisRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", analysisID).Error; err != nil {
		return ErrAnalysisNotFound
	}
	if _, err := s.rooms.VerifyOwner(ctx, record.RoomID, callerID); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&db.AnalysisRecord{}, "id = ?", analysisID).Error; err != nil {
		return err
	}

	event.Emit(event.AnalysisDeletedEvent{RoomID: record.RoomID, AnalysisID: analysisID})
	return nil
}

// memberProfiles collects the assignee context handed to the generator.
func (s *BreakdownService) memberProfiles(ctx context.Context, roomID uint) ([]MemberProfile, error) {
	members, err := s.rooms.Members(ctx, roomID)
	if err != nil {
		return nil, err
	}
	profiles := make([]MemberProfile, 0, len(members))
	for _, m := range members {
		profiles = append(profiles, MemberProfile{UserID: m.User.ID, Username: m.User.Username})
	}
	return profiles, nil
}

func projectRecord(rec *db.AnalysisRecord) *BreakdownProjection {
	subtasks := rec.Payload.SuggestedSubtasks
	if subtasks == nil {
		subtasks = []db.SubtaskSuggestion{}
	}
	return &BreakdownProjection{
		AnalysisID:      rec.ID,
		OverallStrategy: rec.Payload.OverallStrategy,
		Subtasks:        subtasks,
		ProblemAnalysis: rec.Payload.ProblemAnalysis,
		ModelUsed:       rec.Payload.ModelUsed,
		Warnings:        []string{},
		Status:          string(rec.Status),
		CreatedAt:       rec.CreatedAt,
	}
}

// truncateDescription caps a description at max runes with an ellipsis
// marker, matching the history listing contract.
func truncateDescription(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
