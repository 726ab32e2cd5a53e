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
	ErrRoomNotFound  = errors.New("room not found")
	ErrNotRoomMember = errors.New("you don't have access to this room")
	ErrNotRoomOwner  = errors.New("only the room owner can do this")
	ErrAlreadyMember = errors.New("user is already a room member")
)

// RoomService handles rooms and room membership, including the owner gate
// consulted by every AI workflow entry point.
type RoomService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewRoomService creates a new RoomService
func NewRoomService(db *gorm.DB) *RoomService {
	return &RoomService{db: db, logger: utils.GetLogger()}
}

// AutoMigrate creates database tables
func (s *RoomService) AutoMigrate() error {
	return s.db.AutoMigrate(&models.Room{}, &models.RoomMember{})
}

// CreateRoomRequest represents a request to create a room
type CreateRoomRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description,omitempty"`
}

// Create creates a room and enrolls the creator as its owner.
func (s *RoomService) Create(ctx context.Context, creatorID uint, req *CreateRoomRequest) (*models.Room, error) {
	room := &models.Room{
		Name:        req.Name,
		Description: req.Description,
		CreatedByID: creatorID,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		member := &models.RoomMember{
			RoomID:   room.ID,
			UserID:   creatorID,
			Role:     models.RoomRoleOwner,
			JoinedAt: time.Now(),
		}
		return tx.Create(member).Error
	})
	if err != nil {
		return nil, err
	}

	return room, nil
}

// Get retrieves a room by ID
func (s *RoomService) Get(ctx context.Context, roomID uint) (*models.Room, error) {
	var room models.Room
	if err := s.db.WithContext(ctx).First(&room, "id = ?", roomID).Error; err != nil {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

// ListForUser lists rooms the user is a member of, newest first.
func (s *RoomService) ListForUser(ctx context.Context, userID uint) ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ?", userID).
		Order("rooms.created_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

// FindMembership returns the membership row for (roomID, userID), or nil
// when the user is not a member. Read-only.
func (s *RoomService) FindMembership(ctx context.Context, roomID, userID uint) (*models.RoomMember, error) {
	var member models.RoomMember
	err := s.db.WithContext(ctx).
		First(&member, "room_id = ? AND user_id = ?", roomID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

// VerifyOwner checks that the user holds the owner role for the room.
// Returns ErrNotRoomMember when there is no membership row at all and
// ErrNotRoomOwner when the membership exists with a different role.
func (s *RoomService) VerifyOwner(ctx context.Context, roomID, userID uint) (*models.RoomMember, error) {
	member, err := s.FindMembership(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrNotRoomMember
	}
	if member.Role != models.RoomRoleOwner {
		return nil, ErrNotRoomOwner
	}
	return member, nil
}

// VerifyMember checks that the user is a member of the room with any role.
func (s *RoomService) VerifyMember(ctx context.Context, roomID, userID uint) (*models.RoomMember, error) {
	member, err := s.FindMembership(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrNotRoomMember
	}
	return member, nil
}

// RoomMemberInfo is the member listing projection.
type RoomMemberInfo struct {
	User     models.UserBrief `json:"user"`
	Role     models.RoomRole  `json:"role"`
	JoinedAt time.Time        `json:"joined_at"`
}

// Members lists the room's members with user details.
func (s *RoomService) Members(ctx context.Context, roomID uint) ([]RoomMemberInfo, error) {
	var rows []struct {
		models.RoomMember
		Username string
		Email    string
	}
	err := s.db.WithContext(ctx).
		Table("room_members").
		Select("room_members.*, users.username, users.email").
		Joins("JOIN users ON users.id = room_members.user_id").
		Where("room_members.room_id = ?", roomID).
		Order("room_members.joined_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	infos := make([]RoomMemberInfo, 0, len(rows))
	for _, r := range rows {
		infos = append(infos, RoomMemberInfo{
			User:     models.UserBrief{ID: r.UserID, Username: r.Username, Email: r.Email},
			Role:     r.Role,
			JoinedAt: r.JoinedAt,
		})
	}
	return infos, nil
}

// AddMember enrolls a user into a room. The actor must be the room owner.
func (s *RoomService) AddMember(ctx context.Context, roomID, actorID, userID uint) (*models.RoomMember, error) {
	if _, err := s.VerifyOwner(ctx, roomID, actorID); err != nil {
		return nil, err
	}

	existing, err := s.FindMembership(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyMember
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, ErrUserNotFound
	}

	member := &models.RoomMember{
		RoomID:   roomID,
		UserID:   userID,
		Role:     models.RoomRoleMember,
		JoinedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		return nil, err
	}

	event.Emit(event.RoomMemberAddedEvent{RoomID: roomID, UserID: userID})
	return member, nil
}

// FindMemberByUsername resolves a username to a user, scoped to the room's
// membership. Returns nil without error when no member matches.
func (s *RoomService) FindMemberByUsername(ctx context.Context, roomID uint, username string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.user_id = users.id").
		Where("room_members.room_id = ? AND users.username = ?", roomID, username).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}
