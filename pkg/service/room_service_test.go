package service

import (
	"context"
	"errors"
	"testing"

	"github.com/crewroom/crewroom/pkg/models"
)

func newRoomEnv(t *testing.T) (*UserService, *RoomService, *models.User) {
	t.Helper()
	database := newTestDB(t)
	users := NewUserService(database)
	rooms := NewRoomService(database)
	if err := users.AutoMigrate(); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	if err := rooms.AutoMigrate(); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	owner, err := users.Register(context.Background(), &RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("failed to register owner: %v", err)
	}
	return users, rooms, owner
}

func TestRoomCreate_EnrollsCreatorAsOwner(t *testing.T) {
	_, rooms, owner := newRoomEnv(t)
	ctx := context.Background()

	room, err := rooms.Create(ctx, owner.ID, &CreateRoomRequest{Name: "backend", Description: "server work"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	member, err := rooms.VerifyOwner(ctx, room.ID, owner.ID)
	if err != nil {
		t.Fatalf("creator should be owner: %v", err)
	}
	if member.Role != models.RoomRoleOwner {
		t.Errorf("role = %q, want owner", member.Role)
	}

	listed, err := rooms.ListForUser(ctx, owner.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != room.ID {
		t.Errorf("listed rooms = %+v, want the created room", listed)
	}
}

func TestVerifyOwner_DistinguishesMemberAndStranger(t *testing.T) {
	users, rooms, owner := newRoomEnv(t)
	ctx := context.Background()

	member, err := users.Register(ctx, &RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("failed to register member: %v", err)
	}
	stranger, err := users.Register(ctx, &RegisterRequest{Username: "carol", Email: "carol@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("failed to register stranger: %v", err)
	}
	room, err := rooms.Create(ctx, owner.ID, &CreateRoomRequest{Name: "backend"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := rooms.AddMember(ctx, room.ID, owner.ID, member.ID); err != nil {
		t.Fatalf("add member failed: %v", err)
	}

	if _, err := rooms.VerifyOwner(ctx, room.ID, member.ID); !errors.Is(err, ErrNotRoomOwner) {
		t.Errorf("member error = %v, want ErrNotRoomOwner", err)
	}
	if _, err := rooms.VerifyOwner(ctx, room.ID, stranger.ID); !errors.Is(err, ErrNotRoomMember) {
		t.Errorf("stranger error = %v, want ErrNotRoomMember", err)
	}
	if _, err := rooms.VerifyMember(ctx, room.ID, member.ID); err != nil {
		t.Errorf("member should pass VerifyMember: %v", err)
	}
}

func TestAddMember_OnlyOwnerAndNoDuplicates(t *testing.T) {
	users, rooms, owner := newRoomEnv(t)
	ctx := context.Background()

	member, _ := users.Register(ctx, &RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "secret123"})
	other, _ := users.Register(ctx, &RegisterRequest{Username: "carol", Email: "carol@example.com", Password: "secret123"})
	room, _ := rooms.Create(ctx, owner.ID, &CreateRoomRequest{Name: "backend"})

	if _, err := rooms.AddMember(ctx, room.ID, member.ID, other.ID); !errors.Is(err, ErrNotRoomMember) {
		t.Errorf("non-member actor error = %v, want ErrNotRoomMember", err)
	}
	if _, err := rooms.AddMember(ctx, room.ID, owner.ID, member.ID); err != nil {
		t.Fatalf("owner add failed: %v", err)
	}
	if _, err := rooms.AddMember(ctx, room.ID, owner.ID, member.ID); !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("duplicate add error = %v, want ErrAlreadyMember", err)
	}
	if _, err := rooms.AddMember(ctx, room.ID, owner.ID, 9999); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user error = %v, want ErrUserNotFound", err)
	}
}

func TestFindMemberByUsername_ScopedToRoom(t *testing.T) {
	users, rooms, owner := newRoomEnv(t)
	ctx := context.Background()

	member, _ := users.Register(ctx, &RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "secret123"})
	outsider, _ := users.Register(ctx, &RegisterRequest{Username: "carol", Email: "carol@example.com", Password: "secret123"})
	room, _ := rooms.Create(ctx, owner.ID, &CreateRoomRequest{Name: "backend"})
	if _, err := rooms.AddMember(ctx, room.ID, owner.ID, member.ID); err != nil {
		t.Fatalf("add member failed: %v", err)
	}

	found, err := rooms.FindMemberByUsername(ctx, room.ID, "bob")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if found == nil || found.ID != member.ID {
		t.Errorf("found = %+v, want bob", found)
	}

	// carol exists but is not in the room.
	found, err = rooms.FindMemberByUsername(ctx, room.ID, outsider.Username)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if found != nil {
		t.Errorf("found = %+v, want nil for non-member", found)
	}
}
