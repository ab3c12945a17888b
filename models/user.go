package models

import (
	"strings"
	"time"
)

// User is a tenant account (the owner of devices, templates and jobs).
// Broadcast dispatch uses it only as the sender identity for placeholder
// substitution; the login flow checks its password hash.
type User struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	FirstName     string     `gorm:"size:64;not null" json:"first_name"`
	LastName      string     `gorm:"size:64" json:"last_name"`
	Email         string     `gorm:"size:128;not null;uniqueIndex:uk_users_email" json:"email"`
	PasswordHash  string     `gorm:"size:128;not null" json:"-"`
	ContactNumber *string    `gorm:"size:32" json:"contact_number,omitempty"`
	IsActive      *bool      `gorm:"default:true" json:"is_active,omitempty"`
	CreatedAt     time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (User) TableName() string {
	return "users"
}

// FullName joins first and last name, tolerating a missing last name
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserFilter represents filter criteria for users
type UserFilter struct {
	ID    *uint   `json:"id,omitempty"`
	Email *string `json:"email,omitempty"`
}
