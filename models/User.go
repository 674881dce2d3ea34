package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User roles.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Account statuses.
const (
	UserStatusActive   = "ACTIVE"
	UserStatusInactive = "INACTIVE"
	UserStatusDisabled = "DISABLED"
	UserStatusDeleted  = "DELETED"
)

var UserStatuses = []string{UserStatusActive, UserStatusInactive, UserStatusDisabled, UserStatusDeleted}

type User struct {
	gorm.Model
	Username             string         `json:"username" gorm:"size:64;uniqueIndex;not null"`
	Email                string         `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Password             string         `json:"-" gorm:"not null"`
	FirstName            string         `json:"first_name"`
	LastName             string         `json:"last_name"`
	MiddleName           string         `json:"middle_name"`
	PhoneNumber          string         `json:"phone_number" gorm:"size:32"`
	Role                 string         `json:"role" gorm:"size:20;default:'USER';index"`     // USER, ADMIN
	Status               string         `json:"status" gorm:"size:20;default:'ACTIVE';index"` // ACTIVE, INACTIVE, DISABLED, DELETED
	Permissions          datatypes.JSON `json:"permissions"`
	LastLoginAt          *time.Time     `json:"last_login_timestamp"`
	LastPasswordUpdateAt *time.Time     `json:"last_password_update_timestamp"`
	Verifications        []Verification `json:"verifications,omitempty" gorm:"foreignKey:UserID"`
}

// DisplayName is what outbound email templates address the user by.
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return "User"
}
