package settlement

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ContestHub/app/models"
)

// Repository provides the storage operations settlement depends on. The
// insert-if-absent methods must be atomic with respect to concurrent
// writers in other processes; the GORM implementation relies on unique
// indexes for that.
type Repository interface {
	CreateLedgerEntryIfNotExists(ctx context.Context, entry *models.LedgerEntry) (bool, *models.LedgerEntry, error)
	ApplyParticipation(ctx context.Context, entry *models.LedgerEntry) (bool, string, error)
	GetLedgerEntryByTransactionID(ctx context.Context, transactionID string) (*models.LedgerEntry, error)
	GetLedgerEntryByTrackingToken(ctx context.Context, token string) (*models.LedgerEntry, error)
	ListLedgerEntriesByPayer(ctx context.Context, email string) ([]models.LedgerEntry, error)
	ListLedgerEntriesPaidBetween(ctx context.Context, from, to time.Time) ([]models.LedgerEntry, error)
	ListUnappliedLedgerEntries(ctx context.Context, createdBefore time.Time, limit int) ([]models.LedgerEntry, error)
	HasLedgerEntry(ctx context.Context, contestID uint, payerEmail string) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a settlement repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateLedgerEntryIfNotExists(ctx context.Context, entry *models.LedgerEntry) (bool, *models.LedgerEntry, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoNothing: true,
	}).Create(entry)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", entry.TransactionID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// ApplyParticipation consumes entry exactly once. The application row and
// the counter increment commit together, so a crash in between leaves
// neither and the entry stays eligible for the sweep.
func (r *gormRepository) ApplyParticipation(ctx context.Context, entry *models.LedgerEntry) (bool, string, error) {
	applied := false
	outcome := models.ParticipationOutcomeApplied

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var contest models.Contest
		err := tx.Select("id").First(&contest, entry.ContestID).Error
		missing := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !missing {
			return err
		}
		if missing {
			outcome = models.ParticipationOutcomeContestMissing
		}

		application := &models.ParticipationApplication{
			TransactionID: entry.TransactionID,
			ContestID:     entry.ContestID,
			Outcome:       outcome,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).Create(application)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// A plain read would use the snapshot taken by the contest lookup
			// and miss a concurrent winner's commit.
			var existing models.ParticipationApplication
			if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
				Where("transaction_id = ?", entry.TransactionID).
				First(&existing).Error; err != nil {
				return err
			}
			outcome = existing.Outcome
			return nil
		}

		applied = true
		if missing {
			return nil
		}
		return tx.Model(&models.Contest{}).
			Where("id = ?", entry.ContestID).
			Updates(map[string]interface{}{
				"participants_count": gorm.Expr("participants_count + ?", 1),
				"is_paid":            true,
			}).Error
	})
	if err != nil {
		return false, "", err
	}
	return applied, outcome, nil
}

func (r *gormRepository) GetLedgerEntryByTransactionID(ctx context.Context, transactionID string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *gormRepository) GetLedgerEntryByTrackingToken(ctx context.Context, token string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("tracking_token = ?", token).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *gormRepository) ListLedgerEntriesByPayer(ctx context.Context, email string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).Where("payer_email = ?", email).Order("paid_at DESC").Find(&entries).Error
	return entries, err
}

func (r *gormRepository) ListLedgerEntriesPaidBetween(ctx context.Context, from, to time.Time) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("paid_at >= ? AND paid_at < ?", from, to).
		Order("paid_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

func (r *gormRepository) ListUnappliedLedgerEntries(ctx context.Context, createdBefore time.Time, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("payments.*").
		Joins("LEFT JOIN participation_applications pa ON pa.transaction_id = payments.transaction_id").
		Where("pa.id IS NULL AND payments.created_at < ?", createdBefore).
		Order("payments.id ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *gormRepository) HasLedgerEntry(ctx context.Context, contestID uint, payerEmail string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("contest_id = ? AND payer_email = ?", contestID, payerEmail).
		Count(&count).Error
	return count > 0, err
}
