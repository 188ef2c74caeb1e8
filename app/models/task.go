package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Task is a participant's submission for a contest. A user submits at most
// once per contest; the composite unique index enforces it.
type Task struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ContestID  uint      `gorm:"not null;index:ux_tasks_contest_user,unique,priority:1" json:"contestId" validate:"required"`
	UserEmail  string    `gorm:"type:varchar(200);not null;index:ux_tasks_contest_user,unique,priority:2;index" json:"userEmail" validate:"required,email,max=200"`
	UserName   string    `gorm:"type:varchar(150);default:''" json:"userName" validate:"max=150"`
	Submission string    `gorm:"type:text;not null" json:"submission" validate:"required,max=2000"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (t *Task) Validate() error {
	v := validator.New()

	return v.Struct(t)
}
