package models

import (
	"time"
)

const (
	RoleAdmin   = "admin"
	RoleStaff   = "staff"
	RoleStudent = "student"
)

// ValidRole reports whether role belongs to the closed role set.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleStaff, RoleStudent:
		return true
	}
	return false
}

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null"                 json:"role"`
}

// RevokedToken is a jti that must be rejected until the token it belonged
// to would have expired anyway. Rows past ExpiresAt get purged.
type RevokedToken struct {
	ID        uint   `gorm:"primaryKey"           json:"id"`
	JTI       string `gorm:"uniqueIndex;not null" json:"jti"`
	ExpiresAt int64  `gorm:"not null;index"       json:"expires_at"`
}

type Student struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FirstName string    `gorm:"size:100;not null"        json:"first_name"`
	LastName  string    `gorm:"size:100;not null"        json:"last_name"`
	Email     string    `gorm:"size:100;unique;not null" json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Course struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"size:100;not null"        json:"name"`
	Description string `gorm:"size:200"                 json:"description"`
}

type Enrollment struct {
	ID        uint `gorm:"primaryKey;autoIncrement"                   json:"id"`
	StudentID uint `gorm:"not null;index;uniqueIndex:idx_enroll_pair" json:"student_id"`
	CourseID  uint `gorm:"not null;uniqueIndex:idx_enroll_pair"       json:"course_id"`
}
