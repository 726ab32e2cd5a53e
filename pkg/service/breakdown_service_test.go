package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/crewroom/crewroom/pkg/db"
	"github.com/crewroom/crewroom/pkg/models"
	"gorm.io/gorm"
)

type fakeAnalyzer struct {
	analysis models.JSONMap
	err      error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, description, language string) (models.JSONMap, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.analysis != nil {
		return f.analysis, nil
	}
	return models.JSONMap{"summary": "analyzed: " + description}, nil
}

type fakeGenerator struct {
	result *BreakdownResult
	err    error
}

func (f *fakeGenerator) Generate(ctx context.Context, analysis models.JSONMap, description string, members []MemberProfile, useReasoning bool) (*BreakdownResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type breakdownEnv struct {
	db     *gorm.DB
	users  *UserService
	rooms  *RoomService
	tasks  *TaskService
	notifs *NotificationService
	svc    *BreakdownService
	owner  *models.User
	member *models.User
	room   *models.Room
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return database
}

func newBreakdownEnv(t *testing.T, gen *fakeGenerator) *breakdownEnv {
	t.Helper()
	database := newTestDB(t)

	users := NewUserService(database)
	rooms := NewRoomService(database)
	tasks := NewTaskService(database)
	notifs := NewNotificationService(database)
	svc := NewBreakdownService(database, rooms, users, notifs, &fakeAnalyzer{}, gen)

	for _, migrate := range []func() error{
		users.AutoMigrate, rooms.AutoMigrate, tasks.AutoMigrate,
		notifs.AutoMigrate, svc.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			t.Fatalf("migration failed: %v", err)
		}
	}

	ctx := context.Background()
	owner, err := users.Register(ctx, &RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("failed to register owner: %v", err)
	}
	member, err := users.Register(ctx, &RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("failed to register member: %v", err)
	}
	room, err := rooms.Create(ctx, owner.ID, &CreateRoomRequest{Name: "backend"})
	if err != nil {
		t.Fatalf("failed to create room: %v", err)
	}
	if _, err := rooms.AddMember(ctx, room.ID, owner.ID, member.ID); err != nil {
		t.Fatalf("failed to add member: %v", err)
	}

	return &breakdownEnv{
		db: database, users: users, rooms: rooms, tasks: tasks,
		notifs: notifs, svc: svc, owner: owner, member: member, room: room,
	}
}

func threeSubtasks() *BreakdownResult {
	hours := 2.5
	return &BreakdownResult{
		Subtasks: []db.SubtaskSuggestion{
			{Title: "Design schema", Description: "Tables and indexes", Priority: "high", DueDateDays: "3", AssignedToUsername: "bob", EstimatedHours: &hours},
			{Title: "Write migrations", Description: "Up and down scripts", Priority: "medium"},
			{Title: "Wire API", Description: "Handlers and routes", Priority: "low", DueDateDays: "7"},
		},
		OverallStrategy: "Schema first, then plumbing",
		ModelUsed:       "test-model",
	}
}

func (e *breakdownEnv) createDraft(t *testing.T) *BreakdownProjection {
	t.Helper()
	proj, err := e.svc.Create(context.Background(), e.owner.ID, &CreateBreakdownRequest{
		RoomID:             e.room.ID,
		ProblemDescription: "Build the reporting backend",
	})
	if err != nil {
		t.Fatalf("failed to create breakdown: %v", err)
	}
	return proj
}

func TestBreakdownCreate_PersistsPendingDraft(t *testing.T) {
	env := newBreakdownEnv(t, &fakeGenerator{result: threeSubtasks()})

	proj := env.createDraft(t)
	if proj.Status != string(db.AnalysisStatusPending) {
		t.Errorf("status = %q, want pending", proj.Status)
	}
	if len(proj.Subtasks) != 3 {
		t.Fatalf("got %d subtasks, want 3", len(proj.Subtasks))
	}
	if proj.OverallStrategy != "Schema first, then plumbing" {
		t.Errorf("unexpected strategy %q", proj.OverallStrategy)
	}

	var record db.AnalysisRecord
	if err := env.db.First(&record, "id = ?", proj.AnalysisID).Error; err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if record.Status != db.AnalysisStatusPending {
		t.Errorf("persisted status = %q, want pending", record.Status)
	}
	if record.Payload.Version != db.PayloadVersion {
		t.Errorf("payload version = %d, want %d", record.Payload.Version, db.PayloadVersion)
	}
	if record.Payload.SuggestedSubtasks[0].Title != "Design schema" {
		t.Errorf("stored subtask order lost: %q", record.Payload.SuggestedSubtasks[0].Title)
	}
}

func TestBreakdownCreate_AccessControl(t *testing.T) {
	env := newBreakdownEnv(t, &fakeGenerator{result: threeSubtasks()})
	ctx := context.Background()

	outsider, err := env.users.Register(ctx, &RegisterRequest{Username: "carol", Email: "carol@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("failed to register outsider: %v", err)
	}

	req := &CreateBreakdownRequest{RoomID: env.room.ID, ProblemDescription: "anything"}
	if _, err := env.svc.Create(ctx, env.member.ID, req); !errors.Is(err, ErrNotRoomOwner) {
		t.Errorf("member create error = %v, want ErrNotRoomOwner", err)
	}
	if _, err := env.svc.Create(ctx, outsider.ID, req); !errors.Is(err, ErrNotRoomMember) {
		t.Errorf("outsider create error = %v, want ErrNotRoomMember", err)
	}
}

func TestBreakdownCreate_GeneratorFailureLeavesNoDraft(t *testing.T) {
	env := newBreakdownEnv(t, &fakeGenerator{err: errors.New("model unavailable")})

	_, err := env.svc.Create(context.Background(), env.owner.ID, &CreateBreakdownRequest{
		RoomID:             env.room.ID,
		ProblemDescription: "doomed request",
	})
	if !errors.Is(err, ErrAnalysisFailed) {
		t.Fatalf("error = %v, want ErrAnalysisFailed", err)
	}

	var count int64
	env.db.Model(&db.AnalysisRecord{}).Count(&count)
	if count != 0 {
		t.Errorf("found %d records after failed generation, want 0", count)
	}
}

func TestApply_AllSuggestions(t *testing.T) {
	env := newBreakdownEnv(t, &fakeGenerator{result: threeSubtasks()})
	ctx := context.Background()
	proj := env.createDraft(t)

	result, err := env.svc.Apply(ctx, env.owner.ID, &ApplyBreakdownRequest{AnalysisID: proj.AnalysisID})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if result.TotalCreated != 3 {
		t.Fatalf("created %d tasks, want 3", result.TotalCreated)
	}
	if result.Status != "approved" {
		t.Errorf("status = %q, want approved", result.Status)
	}
	if result.CreatedTasks[0].Title != "Design schema" || result.CreatedTasks[2].Title != "Wire API" {
		t.Errorf("task order not preserved: %+v", result.CreatedTasks)
	}
	if result.CreatedTasks[0].Priority != "high" {
		t.Errorf("priority = %q, want high", result.CreatedTasks[0].Priority)
	}

	// First suggestion was assigned to bob by username.
	task, err := env.tasks.Get(ctx, result.CreatedTasks[0].TaskID)
	if err != nil {
		t.Fatalf("failed to load created task: %v", err)
	}
	if len(task.Assignments) != 1 || task.Assignments[0].UserID != env.member.ID {
		t.Errorf("expected assignment to bob, got %+v", task.Assignments)
	}
	if task.DueDate == nil {
		t.Errorf("expected due date from due_date_days=3")
	}

	// Bob got a notification; its side effect is reported as ok.
	items, unread, err := env.notifs.List(ctx, env.member.ID, 10, 0)
	if err != nil {
		t.Fatalf("failed to list notifications: %v", err)
	}
	if len(items) != 1 || unread != 1 {
		t.Fatalf("got %d notifications (%d unread), want 1", len(items), unread)
	}
	if len(result.SideEffects) != 1 || !result.SideEffects[0].OK {
		t.Errorf("side effects = %+v, want one ok entry", result.SideEffects)
	}

	// Record closed with the created ids in order.
	var record db.AnalysisRecord
	if err := env.db.First(&record, "id = ?", proj.AnalysisID).Error; err != nil {
		t.Fatalf("failed to reload record: %v", err)
	}
	if record.Status != db.AnalysisStatusApproved || record.AppliedAt == nil {
		t.Errorf("record not closed: status=%q appliedAt=%v", record.Status, record.AppliedAt)
	}
	if len(record.CreatedTaskIDs) != 3 || record.CreatedTaskIDs[0] != result.CreatedTasks[0].TaskID {
		t.Errorf("created_task_ids = %v", record.CreatedTaskIDs)
	}
}

func TestApply_SelectedIndices(t *testing.T) {
	env := newBreakdownEnv(t, &fakeGenerator{result: threeSubtasks()})
	ctx := context.Background()
	proj := env.createDraft(t)

	indices := []int{2, 0, 99}
	result, err := env.svc.Apply(ctx, env.owner.ID, &ApplyBreakdownRequest{AnalysisID: proj.AnalysisID, SelectedSubtaskIndices: &indices})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if result.TotalCreated != 2 {
		t.Fatalf("created %d tasks, want 2", result.TotalCreated)
	}
	// Selection keeps stored order regardless of index order in the request.
	if result.CreatedTasks[0].Title != "Design schema" || result.CreatedTasks[1].Title != "Wire API" {
		t.Errorf("unexpected selection: %+v", result.CreatedTasks)
	}
}

func TestApply_EmptySelectionCreatesNothing(t *testing.T) {
	env := newBreakdownEnv(t, &fakeGenerator{result: threeSubtasks()})
	ctx := context.Background()
	proj := env.createDraft(t)

	indices := []int{}
	result, err := env.svc.Apply(ctx, env.owner.ID, &ApplyBreakdownRequest{AnalysisID: proj.AnalysisID, SelectedSubtaskIndices: &indices})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if result.TotalCreated != 0 {
		t.Errorf("created %d tasks, want 0", result.TotalCreated)
	}

	var record db.AnalysisRecord
	env.db.First(&record, "id = ?", proj.AnalysisID)
	if record.Status != db.AnalysisStatusApproved {
		t.Errorf("empty selection should still close the record, got %q", record.Status)
	}
}

func TestApply_SecondAttemptRejected(t *testing.T) {
	env := newBreakdownEnv(t, &fakeGenerator{result: threeSubtasks()})
	ctx := context.Background()
	proj := env.createDraft(t)

	if _, err := env.svc.Apply(ctx, env.owner.ID, &ApplyBreakdownRequest{AnalysisID: proj.AnalysisID}); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	_, err := env.svc.Apply(ctx, env.owner.ID, &ApplyBreakdownRequest{AnalysisID: proj.AnalysisID})
	if !errors.Is(err, ErrAnalysisAlreadyApplied) {
		t.Fatalf("second apply error = %v, want ErrAnalysisAlreadyApplied", err)
	}

	var count int64
	env.db.Model(&models.Task{}).Count(&count)
	if count != 3 {
		t.Errorf("task count after double apply = %d, want 3", count)
	}
}

func TestApply_BadDueDateOffsetIgnored(t *testing.T) {
	gen := &fakeGenerator{result: &BreakdownResult{
		Subtasks: []db.SubtaskSuggestion{
			{Title: "Fuzzy deadline", Description: "due_date_days is garbage", DueDateDays: "abc"},
		},
		ModelUsed: "test-model",
	}}
	env := newBreakdownEnv(t, gen)
	ctx := context.Background()
	proj := env.createDraft(t)

	result, err := env.svc.Apply(ctx, env.owner.ID, &ApplyBreakdownRequest{AnalysisID: proj.AnalysisID})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	task, err := env.tasks.Get(ctx, result.CreatedTasks[0].TaskID)
	if err != nil {
		t.Fatalf("failed to load task: %v", err)
	}
	if task.DueDate != nil {
		t.Errorf("due date = %v, want nil for unparseable offset", task.DueDate)
	}
}

func TestApply_UnknownAssigneeStaysUnassigned(t *testing.T) {
	gen := &fakeGenerator{result: &BreakdownResult{
		Subtasks: []db.SubtaskSuggestion{
			{Title: "Orphan task", Description: "assignee not in room", Priority: "CRITICAL", AssignedToUsername: "nobody"},
		},
		ModelUsed: "test-model",
	}}
	env := newBreakdownEnv(t, gen)
	ctx := context.Background()
	proj := env.createDraft(t)

	result, err := env.svc.Apply(ctx, env.owner.ID, &ApplyBreakdownRequest{AnalysisID: proj.AnalysisID})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	// Unknown priority falls back to medium, unknown assignee to unassigned.
	if result.CreatedTasks[0].Priority != "medium" {
		t.Errorf("priority = %q, want medium fallback", result.CreatedTasks[0].Priority)
	}
	task, err := env.tasks.Get(ctx, result.CreatedTasks[0].TaskID)
	if err != nil {
		t.Fatalf("failed to load task: %v", err)
	}
	if len(task.Assignments) != 0 {
		t.Errorf("expected no assignments, got %+v", task.Assignments)
	}
	if len(result.SideEffects) != 0 {
		t.Errorf("expected no side effects, got %+v", result.SideEffects)
	}
}

func TestApply_NotFoundAndAccess(t *testing.T) {
	env := newBreakdownEnv(t, &fakeGenerator{result: threeSubtasks()})
	ctx := context.Background()

	if _, err := env.svc.Apply(ctx, env.owner.ID, &ApplyBreakdownRequest{AnalysisID: 9999}); !errors.Is(err, ErrAnalysisNotFound) {
		t.Errorf("error = %v, want ErrAnalysisNotFound", err)
	}

	proj := env.createDraft(t)
	if _, err := env.svc.Apply(ctx, env.member.ID, &ApplyBreakdownRequest{AnalysisID: proj.AnalysisID}); !errors.Is(err, ErrNotRoomOwner) {
		t.Errorf("member apply error = %v, want ErrNotRoomOwner", err)
	}
}

func TestDelete_KeepsCreatedTasks(t *testing.T) {
	env := newBreakdownEnv(t, &fakeGenerator{result: threeSubtasks()})
	ctx := context.Background()
	proj := env.createDraft(t)

	result, err := env.svc.Apply(ctx, env.owner.ID, &ApplyBreakdownRequest{AnalysisID: proj.AnalysisID})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if err := env.svc.Delete(ctx, env.owner.ID, proj.AnalysisID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := env.svc.Get(ctx, env.owner.ID, proj.AnalysisID); !errors.Is(err, ErrAnalysisNotFound) {
		t.Errorf("get after delete = %v, want ErrAnalysisNotFound", err)
	}
	for _, created := range result.CreatedTasks {
		if _, err := env.tasks.Get(ctx, created.TaskID); err != nil {
			t.Errorf("task %d gone after record deletion: %v", created.TaskID, err)
		}
	}
}

func TestHistory_PaginationAndTruncation(t *testing.T) {
	env := newBreakdownEnv(t, &fakeGenerator{result: threeSubtasks()})
	ctx := context.Background()

	longDescription := strings.Repeat("x", 250)
	for i := 0; i < 3; i++ {
		description := fmt.Sprintf("problem %d", i)
		if i == 2 {
			description = longDescription
		}
		record := &db.AnalysisRecord{
			RoomID:             env.room.ID,
			CreatedByID:        env.owner.ID,
			ProblemDescription: description,
			Payload: db.AnalysisPayload{
				Version:           db.PayloadVersion,
				SuggestedSubtasks: threeSubtasks().Subtasks,
				ModelUsed:         "test-model",
			},
			Status:    db.AnalysisStatusPending,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := env.db.Create(record).Error; err != nil {
			t.Fatalf("failed to seed record: %v", err)
		}
	}

	items, total, err := env.svc.History(ctx, env.owner.ID, env.room.ID, 2, 0)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	// Newest first: the long description was seeded last.
	if got := items[0].ProblemDescription; len([]rune(got)) != 203 || !strings.HasSuffix(got, "...") {
		t.Errorf("description not truncated to 200 runes + ellipsis, len=%d", len([]rune(got)))
	}
	if items[0].SubtasksCount != 3 {
		t.Errorf("subtasks_count = %d, want 3", items[0].SubtasksCount)
	}

	if _, _, err := env.svc.History(ctx, env.member.ID, env.room.ID, 10, 0); !errors.Is(err, ErrNotRoomOwner) {
		t.Errorf("member history error = %v, want ErrNotRoomOwner", err)
	}
}
