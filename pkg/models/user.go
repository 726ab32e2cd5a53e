package models

import "time"

// User is an account that can join rooms and be assigned tasks.
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"uniqueIndex;size:64;not null"`
	Email        string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"`
	CreatedAt    time.Time `json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// UserBrief is the projection embedded in task and room responses.
type UserBrief struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Brief returns the embeddable projection of a user.
func (u *User) Brief() UserBrief {
	return UserBrief{ID: u.ID, Username: u.Username, Email: u.Email}
}
