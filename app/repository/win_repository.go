package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/ContestHub/app/models"
)

type winRepository struct {
	db *gorm.DB
}

// NewWinRepository creates a new win repository instance
func NewWinRepository(db *gorm.DB) WinRepository {
	return &winRepository{db: db}
}

// Create records a winner. The unique contest_id index makes a second
// declaration for the same contest fail with ErrDuplicate.
func (r *winRepository) Create(win *models.Win) error {
	return translateDuplicate(r.db.Create(win).Error)
}

func (r *winRepository) GetByContest(contestID uint) (*models.Win, error) {
	var win models.Win
	if err := r.db.Where("contest_id = ?", contestID).First(&win).Error; err != nil {
		return nil, err
	}
	return &win, nil
}

func (r *winRepository) ListByWinner(email string) ([]models.Win, error) {
	var wins []models.Win
	err := r.db.Where("winner_email = ?", models.NormalizeEmail(email)).
		Order("created_at DESC").Find(&wins).Error
	return wins, err
}

func (r *winRepository) Leaderboard(limit int) ([]LeaderboardRow, error) {
	var rows []LeaderboardRow
	err := r.db.Model(&models.Win{}).
		Select("winner_email, MAX(winner_name) AS winner_name, COUNT(*) AS wins, COALESCE(SUM(prize_money), 0) AS total_prize").
		Group("winner_email").
		Order("wins DESC, total_prize DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
