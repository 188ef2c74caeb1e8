package repository

import (
	"strings"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ContestHub/app/models"
)

// contestRepository implements the ContestRepository interface
type contestRepository struct {
	db *gorm.DB
}

// NewContestRepository creates a new contest repository instance
func NewContestRepository(db *gorm.DB) ContestRepository {
	return &contestRepository{db: db}
}

func (r *contestRepository) Create(contest *models.Contest) error {
	return r.db.Create(contest).Error
}

func (r *contestRepository) GetByID(id uint) (*models.Contest, error) {
	var contest models.Contest
	if err := r.db.First(&contest, id).Error; err != nil {
		return nil, err
	}
	return &contest, nil
}

func (r *contestRepository) approved() *gorm.DB {
	return r.db.Model(&models.Contest{}).
		Where("status = ? OR status = '' OR status IS NULL", models.ContestStatusApproved)
}

// ListApproved returns one page of publicly visible contests and the total
// number of matches.
func (r *contestRepository) ListApproved(filter ContestFilter) ([]models.Contest, int64, error) {
	query := r.approved()
	if s := strings.TrimSpace(filter.Search); s != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	if t := strings.TrimSpace(filter.Type); t != "" {
		query = query.Where("contest_type = ?", t)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var contests []models.Contest
	err := query.Order("created_at DESC").Offset(filter.Offset).Limit(filter.Limit).Find(&contests).Error
	return contests, total, err
}

func (r *contestRepository) ListTopApproved(limit int) ([]models.Contest, error) {
	var contests []models.Contest
	err := r.approved().Order("participants_count DESC, id ASC").Limit(limit).Find(&contests).Error
	return contests, err
}

func (r *contestRepository) ListByCreator(email string) ([]models.Contest, error) {
	var contests []models.Contest
	err := r.db.Where("creator_email = ?", models.NormalizeEmail(email)).
		Order("created_at DESC").Find(&contests).Error
	return contests, err
}

// List returns all contests regardless of moderation state.
func (r *contestRepository) List(offset, limit int) ([]models.Contest, int64, error) {
	var total int64
	if err := r.db.Model(&models.Contest{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var contests []models.Contest
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&contests).Error
	return contests, total, err
}

// Update writes the editable fields. participants_count and is_paid belong to
// settlement and are never written here.
func (r *contestRepository) Update(contest *models.Contest) error {
	return r.db.Model(&models.Contest{}).Where("id = ?", contest.ID).Updates(map[string]interface{}{
		"name":             contest.Name,
		"description":      contest.Description,
		"image":            contest.Image,
		"contest_type":     contest.ContestType,
		"price":            contest.Price,
		"prize_money":      contest.PrizeMoney,
		"task_instruction": contest.TaskInstruction,
		"deadline":         contest.Deadline,
	}).Error
}

func (r *contestRepository) UpdateStatus(id uint, status string) error {
	res := r.db.Model(&models.Contest{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *contestRepository) Delete(id uint) error {
	res := r.db.Delete(&models.Contest{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
