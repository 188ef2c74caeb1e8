package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	ROLE_USER    = "user"
	ROLE_CREATOR = "creator"
	ROLE_ADMIN   = "admin"
)

// User is the local profile of an identity-provider account. Email is the
// join key to the verified bearer token.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	Email     string    `gorm:"uniqueIndex;type:varchar(200);not null" json:"email" validate:"required,email,max=200"`
	PhotoURL  string    `gorm:"type:varchar(500);default:''" json:"photoURL" validate:"omitempty,url,max=500"`
	Role      string    `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user creator admin"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// NewUser builds a validated user with the default role.
func NewUser(name, email, photoURL string) (*User, error) {
	u := &User{
		Name:     strings.TrimSpace(name),
		Email:    NormalizeEmail(email),
		PhotoURL: strings.TrimSpace(photoURL),
		Role:     ROLE_USER,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) IsAdmin() bool {
	return u.Role == ROLE_ADMIN
}

// IsValidRole reports whether role is one of the known roles.
func IsValidRole(role string) bool {
	switch role {
	case ROLE_USER, ROLE_CREATOR, ROLE_ADMIN:
		return true
	default:
		return false
	}
}

// NormalizeEmail lowercases and trims an address so lookups are stable.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
