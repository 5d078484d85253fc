package models

import "time"

// Role values carried in JWT claims and stored on users.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// User represents a registered teacher or student.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         string    `gorm:"size:32;not null" json:"role"`
	Verified     bool      `gorm:"not null;default:false" json:"verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// VerificationToken stores a pending email-verification or password-reset token.
type VerificationToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Token     string    `gorm:"size:128;uniqueIndex;not null" json:"-"`
	Purpose   string    `gorm:"size:32;not null" json:"purpose"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Token purposes.
const (
	TokenPurposeVerifyEmail   = "verify_email"
	TokenPurposeResetPassword = "reset_password"
)

// IsExpired reports whether the token is past its expiry.
func (t VerificationToken) IsExpired(reference time.Time) bool {
	return reference.After(t.ExpiresAt)
}
