package models

import "time"

// RoomRole is a member's role within a room.
type RoomRole string

const (
	RoomRoleOwner  RoomRole = "owner"
	RoomRoleMember RoomRole = "member"
)

// Room groups users and owns the tasks created inside it.
type Room struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	Description string    `json:"description,omitempty" gorm:"type:text"`
	CreatedByID uint      `json:"created_by_id" gorm:"index;not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Room) TableName() string {
	return "rooms"
}

// RoomMember links a user to a room with a role.
// The (room_id, user_id) pair is the primary key; a user joins a room once.
type RoomMember struct {
	RoomID   uint      `json:"room_id" gorm:"primaryKey;autoIncrement:false"`
	UserID   uint      `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	Role     RoomRole  `json:"role" gorm:"size:16;not null;default:'member'"`
	JoinedAt time.Time `json:"joined_at"`
}

func (RoomMember) TableName() string {
	return "room_members"
}
