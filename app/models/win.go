package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Win records the declared winner of a contest. One per contest.
type Win struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	ContestID   uint            `gorm:"not null;uniqueIndex" json:"contestId"`
	ContestName string          `gorm:"type:varchar(200);default:''" json:"contestName"`
	WinnerEmail string          `gorm:"type:varchar(200);not null;index" json:"winnerEmail"`
	WinnerName  string          `gorm:"type:varchar(150);default:''" json:"winnerName"`
	PrizeMoney  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"prizeMoney"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"createdAt"`
}
