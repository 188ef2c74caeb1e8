package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/ContestHub/app/models"
)

type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new task repository instance
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

// Create inserts a submission. A second submission for the same contest and
// user returns ErrDuplicate.
func (r *taskRepository) Create(task *models.Task) error {
	return translateDuplicate(r.db.Create(task).Error)
}

func (r *taskRepository) ListByContest(contestID uint) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.Where("contest_id = ?", contestID).Order("created_at ASC").Find(&tasks).Error
	return tasks, err
}

func (r *taskRepository) GetByContestAndUser(contestID uint, email string) (*models.Task, error) {
	var task models.Task
	err := r.db.Where("contest_id = ? AND user_email = ?", contestID, models.NormalizeEmail(email)).
		First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}
