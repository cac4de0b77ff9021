package models

import (
	"time"

	"github.com/Skotchmaster/imageiq/internal/domain"
)

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"      json:"id"`
	Username     string    `gorm:"size:50;not null"              json:"username"`
	Email        string    `gorm:"size:150;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null"                      json:"-"`
	Avatar       string    `gorm:"size:255"                      json:"avatar"`
	Role         string    `gorm:"size:16;not null"              json:"role"`
	Confirmed    bool      `gorm:"not null"                      json:"confirmed"`
	Active       bool      `gorm:"not null"                      json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity drops everything the auth layer must not hand out.
func (u *User) Identity() *domain.Identity {
	return &domain.Identity{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      domain.Role(u.Role),
		Confirmed: u.Confirmed,
		Active:    u.Active,
	}
}

// RefreshSession is the single live refresh token of a subject.
// ExpiresAt is unix milliseconds.
type RefreshSession struct {
	Subject   string    `gorm:"primaryKey;size:64"  json:"subject"`
	TokenHash string    `gorm:"size:128;not null"   json:"-"`
	ExpiresAt int64     `gorm:"index;not null"      json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
