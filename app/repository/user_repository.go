package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ContestHub/app/models"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// CreateIfNotExists relies on the unique email index, so concurrent first
// logins of the same account produce one row.
func (r *userRepository) CreateIfNotExists(user *models.User) (bool, *models.User, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(user)
	if res.Error != nil {
		return false, nil, res.Error
	}

	stored, err := r.GetByEmail(user.Email)
	if err != nil {
		return false, nil, err
	}
	return res.RowsAffected > 0, stored, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", models.NormalizeEmail(email)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateRole sets the role of the user with email.
func (r *userRepository) UpdateRole(email, role string) (*models.User, error) {
	res := r.db.Model(&models.User{}).
		Where("email = ?", models.NormalizeEmail(email)).
		Update("role", role)
	if res.Error != nil {
		return nil, res.Error
	}
	return r.GetByEmail(email)
}

// List retrieves a paginated list of users
func (r *userRepository) List(offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

// Count returns the total number of users
func (r *userRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return count, err
}
