package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Contest moderation states. An empty status predates moderation and is
// treated as approved.
const (
	ContestStatusApproved = "approved"
	ContestStatusPending  = "pending"
	ContestStatusRejected = "rejected"
)

type Contest struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Name              string          `gorm:"type:varchar(200);not null" json:"name" validate:"required,min=3,max=200"`
	Description       string          `gorm:"type:text" json:"description" validate:"max=5000"`
	Image             string          `gorm:"type:varchar(500);default:''" json:"image" validate:"omitempty,url,max=500"`
	ContestType       string          `gorm:"type:varchar(100);not null;index" json:"contestType" validate:"required,max=100"`
	Price             decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"price"`
	PrizeMoney        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"prizeMoney"`
	TaskInstruction   string          `gorm:"type:text" json:"taskInstruction" validate:"max=5000"`
	Deadline          *time.Time      `gorm:"type:timestamp;default:null" json:"deadline,omitempty"`
	CreatorEmail      string          `gorm:"type:varchar(200);not null;index" json:"creatorEmail" validate:"required,email,max=200"`
	CreatorName       string          `gorm:"type:varchar(150);default:''" json:"creatorName" validate:"max=150"`
	ParticipantsCount int64           `gorm:"not null;default:0;index" json:"participantsCount"`
	IsPaid            bool            `gorm:"not null;default:false" json:"isPaid"`
	Status            string          `gorm:"type:varchar(20);default:'pending';index" json:"status" validate:"omitempty,oneof=approved pending rejected"`
	CreatedAt         time.Time       `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (c *Contest) Validate() error {
	v := validator.New()

	return v.Struct(c)
}

// IsApproved reports whether the contest is visible in public listings.
func (c *Contest) IsApproved() bool {
	return c.Status == "" || c.Status == ContestStatusApproved
}

// DeadlinePassed reports whether submissions are closed at now.
func (c *Contest) DeadlinePassed(now time.Time) bool {
	return c.Deadline != nil && now.After(*c.Deadline)
}

// IsOwnedBy compares the creator email case-insensitively.
func (c *Contest) IsOwnedBy(email string) bool {
	return email != "" && strings.EqualFold(c.CreatorEmail, email)
}

// IsValidContestStatus reports whether s is a moderation state an admin may set.
func IsValidContestStatus(s string) bool {
	switch s {
	case ContestStatusApproved, ContestStatusPending, ContestStatusRejected:
		return true
	default:
		return false
	}
}
