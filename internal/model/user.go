package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is a coarse authorization level.
type Role string

const (
	RoleAdmin   Role = "admin"
	RolePlanner Role = "planner"
	RoleUser    Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePlanner, RoleUser:
		return true
	}
	return false
}

// User represents an authenticated user in the system.
// Secrets and one-time codes never leave the server.
type User struct {
	ID           uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Username     string    `json:"username" gorm:"size:64;uniqueIndex;not null"`
	Fullname     string    `json:"fullname" gorm:"size:255;not null"`
	Email        string    `json:"email" gorm:"size:255;uniqueIndex;not null"`
	PhoneNo      string    `json:"phoneNo,omitempty" gorm:"size:32"`
	PasswordHash string    `json:"-" gorm:"size:255"`
	GoogleID     *string   `json:"-" gorm:"size:255;uniqueIndex"`
	Role         Role      `json:"role" gorm:"type:varchar(20);not null;default:user;index"`
	IsVerified   bool      `json:"isVerified" gorm:"not null;default:false"`
	IsActive     bool      `json:"isActive" gorm:"not null;default:true"`

	// RefreshTokenHash is the digest of the single live refresh token.
	RefreshTokenHash string `json:"-" gorm:"size:64"`

	OTP          string     `json:"-" gorm:"size:6"`
	OTPExpiresAt *time.Time `json:"-" gorm:"index"`

	ResetPasswordHash    string     `json:"-" gorm:"size:64"`
	ResetPasswordExpires *time.Time `json:"-" gorm:"index"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasPassword reports whether the user can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IsFederated reports whether the account is linked to Google.
func (u *User) IsFederated() bool {
	return u.GoogleID != nil && *u.GoogleID != ""
}

// BeforeCreate sets UUID before creating the record.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}
