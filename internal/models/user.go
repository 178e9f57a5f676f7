package models

import (
	"time"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// User is a dashboard operator.
type User struct {
	BaseModel
	Username     string     `gorm:"uniqueIndex;not null" json:"username"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Role         string     `gorm:"not null;default:staff;index" json:"role"`
	IsActive     bool       `gorm:"not null" json:"is_active"`
	LastLogin    *time.Time `json:"last_login"`
}
