package models

import "time"

const (
	RoleAdministrator = "administrator"
	RoleUser          = "user"
)

// Role represents user roles with numeric primary key
type Role struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Name        string `gorm:"size:32;uniqueIndex;not null"`
	Description string `gorm:"size:255"`
}

// DefaultRoles are seeded on migrate.
func DefaultRoles() []Role {
	return []Role{
		{Name: RoleAdministrator, Description: "full access, may delete bills"},
		{Name: RoleUser, Description: "upload and read bills"},
	}
}
