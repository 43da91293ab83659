package models

import (
	"time"

	"gorm.io/gorm"
)

// Role is the sole authorization discriminant for a profile.
type Role string

const (
	RoleClient   Role = "client"
	RoleDesigner Role = "designer"
	RoleAdmin    Role = "admin"
)

// IsStaff reports whether the role belongs to a designer or an admin.
func (r Role) IsStaff() bool {
	return r == RoleDesigner || r == RoleAdmin
}

// Valid reports whether r is one of the roles a profile can hold.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleDesigner, RoleAdmin:
		return true
	}
	return false
}

// Profile represents an authenticated principal (client, designer or admin)
type Profile struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Auth0ID   string         `gorm:"uniqueIndex;not null" json:"auth0_id"` // Auth0 user ID (from 'sub' claim)
	Name      string         `gorm:"not null" json:"name"`
	Email     string         `gorm:"index" json:"email"`
	Phone     string         `json:"phone"`
	Role      Role           `gorm:"type:varchar(16);not null;default:'client'" json:"role"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Profile model
func (Profile) TableName() string {
	return "profiles"
}
