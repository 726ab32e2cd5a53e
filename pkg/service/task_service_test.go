package service

import (
	"context"
	"errors"
	"testing"

	"github.com/crewroom/crewroom/pkg/models"
)

func newTaskEnv(t *testing.T) (*TaskService, *models.User, *models.Room) {
	t.Helper()
	database := newTestDB(t)
	users := NewUserService(database)
	rooms := NewRoomService(database)
	tasks := NewTaskService(database)
	for _, migrate := range []func() error{users.AutoMigrate, rooms.AutoMigrate, tasks.AutoMigrate} {
		if err := migrate(); err != nil {
			t.Fatalf("migration failed: %v", err)
		}
	}
	ctx := context.Background()
	owner, err := users.Register(ctx, &RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	room, err := rooms.Create(ctx, owner.ID, &CreateRoomRequest{Name: "backend"})
	if err != nil {
		t.Fatalf("failed to create room: %v", err)
	}
	return tasks, owner, room
}

func TestTaskCreate_DefaultsToCreatorAssignment(t *testing.T) {
	tasks, owner, room := newTaskEnv(t)
	ctx := context.Background()

	task, err := tasks.Create(ctx, owner.ID, &CreateTaskRequest{Title: "Set up CI", RoomID: room.ID})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if task.Status != models.TaskStatusTodo {
		t.Errorf("status = %q, want todo", task.Status)
	}
	if task.Priority != models.TaskPriorityMedium {
		t.Errorf("priority = %q, want medium default", task.Priority)
	}
	if len(task.Assignments) != 1 || task.Assignments[0].UserID != owner.ID {
		t.Errorf("assignments = %+v, want creator self-assignment", task.Assignments)
	}
}

func TestTaskUpdate_DoneStampsCompletedAt(t *testing.T) {
	tasks, owner, room := newTaskEnv(t)
	ctx := context.Background()

	task, err := tasks.Create(ctx, owner.ID, &CreateTaskRequest{Title: "Ship it", RoomID: room.ID})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	done := "done"
	updated, err := tasks.Update(ctx, task.ID, &UpdateTaskRequest{Status: &done})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.CompletedAt == nil {
		t.Fatalf("completed_at not stamped on done")
	}

	todo := "todo"
	updated, err = tasks.Update(ctx, task.ID, &UpdateTaskRequest{Status: &todo})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.CompletedAt != nil {
		t.Errorf("completed_at = %v, want cleared when leaving done", updated.CompletedAt)
	}

	bogus := "archived"
	if _, err := tasks.Update(ctx, task.ID, &UpdateTaskRequest{Status: &bogus}); err == nil {
		t.Errorf("expected error for unsupported status")
	}
}

func TestTaskList_FilterAndTotal(t *testing.T) {
	tasks, owner, room := newTaskEnv(t)
	ctx := context.Background()

	for _, spec := range []struct{ title, priority string }{
		{"one", "high"}, {"two", "high"}, {"three", "low"},
	} {
		if _, err := tasks.Create(ctx, owner.ID, &CreateTaskRequest{Title: spec.title, RoomID: room.ID, Priority: spec.priority}); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	highs, total, err := tasks.List(ctx, room.ID, TaskListFilter{Priority: "high"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 || len(highs) != 2 {
		t.Errorf("high filter: total=%d len=%d, want 2/2", total, len(highs))
	}

	page, total, err := tasks.List(ctx, room.ID, TaskListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 3 || len(page) != 2 {
		t.Errorf("pagination: total=%d len=%d, want 3/2", total, len(page))
	}
}

func TestTaskAssign_RejectsDuplicates(t *testing.T) {
	tasks, owner, room := newTaskEnv(t)
	ctx := context.Background()

	task, err := tasks.Create(ctx, owner.ID, &CreateTaskRequest{Title: "Review PR", RoomID: room.ID})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Creator is already self-assigned.
	if _, err := tasks.Assign(ctx, task.ID, owner.ID, owner.ID); !errors.Is(err, ErrAlreadyAssigned) {
		t.Errorf("error = %v, want ErrAlreadyAssigned", err)
	}

	if err := tasks.Unassign(ctx, task.ID, owner.ID); err != nil {
		t.Fatalf("unassign failed: %v", err)
	}
	if err := tasks.Unassign(ctx, task.ID, owner.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("second unassign error = %v, want ErrTaskNotFound", err)
	}
}

func TestTaskDelete_RemovesAssignments(t *testing.T) {
	tasks, owner, room := newTaskEnv(t)
	ctx := context.Background()

	task, err := tasks.Create(ctx, owner.ID, &CreateTaskRequest{Title: "Temporary", RoomID: room.ID})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := tasks.Delete(ctx, task.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := tasks.Get(ctx, task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("get after delete = %v, want ErrTaskNotFound", err)
	}
}
