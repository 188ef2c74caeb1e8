package repository

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ContestHub/app/models"
)

// ErrDuplicate is returned when a unique index rejects an insert.
var ErrDuplicate = errors.New("duplicate record")

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	// CreateIfNotExists inserts user unless the email is already known and
	// returns the stored record either way.
	CreateIfNotExists(user *models.User) (bool, *models.User, error)
	GetByEmail(email string) (*models.User, error)
	UpdateRole(email, role string) (*models.User, error)
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// ContestFilter narrows the public contest listing.
type ContestFilter struct {
	Search string
	Type   string
	Offset int
	Limit  int
}

// ContestRepository defines the interface for contest-related database operations
type ContestRepository interface {
	Create(contest *models.Contest) error
	GetByID(id uint) (*models.Contest, error)
	ListApproved(filter ContestFilter) ([]models.Contest, int64, error)
	ListTopApproved(limit int) ([]models.Contest, error)
	ListByCreator(email string) ([]models.Contest, error)
	List(offset, limit int) ([]models.Contest, int64, error)
	Update(contest *models.Contest) error
	UpdateStatus(id uint, status string) error
	Delete(id uint) error
}

// TaskRepository defines the interface for task submissions
type TaskRepository interface {
	Create(task *models.Task) error
	ListByContest(contestID uint) ([]models.Task, error)
	GetByContestAndUser(contestID uint, email string) (*models.Task, error)
}

// LeaderboardRow aggregates the wins of one user.
type LeaderboardRow struct {
	WinnerEmail string          `json:"email"`
	WinnerName  string          `json:"name"`
	Wins        int64           `json:"wins"`
	TotalPrize  decimal.Decimal `json:"totalPrize"`
}

// WinRepository defines the interface for declared winners
type WinRepository interface {
	Create(win *models.Win) error
	GetByContest(contestID uint) (*models.Win, error)
	ListByWinner(email string) ([]models.Win, error)
	Leaderboard(limit int) ([]LeaderboardRow, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User    UserRepository
	Contest ContestRepository
	Task    TaskRepository
	Win     WinRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Contest: NewContestRepository(db),
		Task:    NewTaskRepository(db),
		Win:     NewWinRepository(db),
	}
}

func translateDuplicate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}
