package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/ContestHub/app/models"
	"github.com/ManuelReschke/ContestHub/internal/pkg/database"
)

// newSQLiteDB opens a private in-memory database with the service schema.
// One connection keeps every goroutine on the same in-memory database.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func seedContest(t *testing.T, db *gorm.DB, id uint) {
	t.Helper()
	require.NoError(t, db.Create(&models.Contest{
		ID:           id,
		Name:         "Poster",
		ContestType:  "design",
		CreatorEmail: "creator@example.com",
		Status:       models.ContestStatusApproved,
	}).Error)
}

func loadContest(t *testing.T, db *gorm.DB, id uint) models.Contest {
	t.Helper()
	var c models.Contest
	require.NoError(t, db.First(&c, id).Error)
	return c
}

func TestGormRepository_ConcurrentRecordPaymentCreatesOneRow(t *testing.T) {
	db := newSQLiteDB(t)
	seedContest(t, db, 1)
	svc := NewService(NewRepository(db), nil)

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	created := make([]bool, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, ok, err := svc.RecordPayment(context.Background(), PaymentRecord{
				TransactionID: "pi_1",
				SessionID:     "cs_1",
				ContestID:     1,
				PayerEmail:    "Payer@Example.com",
				Amount:        1000,
				Currency:      "USD",
			})
			errs[i] = err
			created[i] = ok
			if entry != nil {
				tokens[i] = entry.TrackingToken
			}
		}(i)
	}
	wg.Wait()

	creators := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, tokens[0], tokens[i])
		if created[i] {
			creators++
		}
	}
	assert.Equal(t, 1, creators)
	assert.True(t, IsTrackingToken(tokens[0]))

	var rows int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Where("transaction_id = ?", "pi_1").Count(&rows).Error)
	assert.Equal(t, int64(1), rows)

	stored, err := NewRepository(db).GetLedgerEntryByTrackingToken(context.Background(), tokens[0])
	require.NoError(t, err)
	assert.Equal(t, "payer@example.com", stored.PayerEmail)
	assert.Equal(t, "usd", stored.Currency)
}

func TestGormRepository_ApplyParticipationOnce(t *testing.T) {
	db := newSQLiteDB(t)
	seedContest(t, db, 4)
	repo := NewRepository(db)
	ctx := context.Background()

	_, entry, err := repo.CreateLedgerEntryIfNotExists(ctx, &models.LedgerEntry{
		TransactionID: "pi_4", ContestID: 4, PayerEmail: "a@example.com",
		Amount: 500, Currency: "usd", TrackingToken: "trk_00000000000000000000000000000004", PaidAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	applied, outcome, err := repo.ApplyParticipation(ctx, entry)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.ParticipationOutcomeApplied, outcome)

	// The replay takes the conflict branch and re-reads the stored outcome.
	applied, outcome, err = repo.ApplyParticipation(ctx, entry)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, models.ParticipationOutcomeApplied, outcome)

	c := loadContest(t, db, 4)
	assert.Equal(t, int64(1), c.ParticipantsCount)
	assert.True(t, c.IsPaid)
}

func TestGormRepository_MissingContestKeepsLedgerRow(t *testing.T) {
	db := newSQLiteDB(t)
	seedContest(t, db, 1)
	repo := NewRepository(db)
	ctx := context.Background()

	_, entry, err := repo.CreateLedgerEntryIfNotExists(ctx, &models.LedgerEntry{
		TransactionID: "pi_orphan", ContestID: 99, PayerEmail: "a@example.com",
		Amount: 500, Currency: "usd", TrackingToken: "trk_00000000000000000000000000000099", PaidAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	applied, outcome, err := repo.ApplyParticipation(ctx, entry)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.ParticipationOutcomeContestMissing, outcome)

	applied, outcome, err = repo.ApplyParticipation(ctx, entry)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, models.ParticipationOutcomeContestMissing, outcome)

	kept, err := repo.GetLedgerEntryByTransactionID(ctx, "pi_orphan")
	require.NoError(t, err)
	assert.Equal(t, uint(99), kept.ContestID)

	var contests int64
	require.NoError(t, db.Model(&models.Contest{}).Count(&contests).Error)
	assert.Equal(t, int64(1), contests)
	assert.Zero(t, loadContest(t, db, 1).ParticipantsCount)
}

func TestGormRepository_ListUnappliedLedgerEntries(t *testing.T) {
	db := newSQLiteDB(t)
	seedContest(t, db, 2)
	repo := NewRepository(db)
	ctx := context.Background()

	cutoff := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	old := cutoff.Add(-10 * time.Minute)
	add := func(txID, token string, createdAt time.Time) *models.LedgerEntry {
		_, e, err := repo.CreateLedgerEntryIfNotExists(ctx, &models.LedgerEntry{
			TransactionID: txID, ContestID: 2, PayerEmail: "a@example.com", Amount: 100, Currency: "usd",
			TrackingToken: token, PaidAt: createdAt, CreatedAt: createdAt,
		})
		require.NoError(t, err)
		return e
	}
	applied := add("pi_applied", "trk_0000000000000000000000000000000a", old)
	add("pi_pending_1", "trk_0000000000000000000000000000000b", old)
	add("pi_pending_2", "trk_0000000000000000000000000000000c", old.Add(time.Minute))
	add("pi_fresh", "trk_0000000000000000000000000000000d", cutoff.Add(time.Minute))

	_, _, err := repo.ApplyParticipation(ctx, applied)
	require.NoError(t, err)

	pending, err := repo.ListUnappliedLedgerEntries(ctx, cutoff, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(pending))
	for _, e := range pending {
		ids = append(ids, e.TransactionID)
	}
	assert.Equal(t, []string{"pi_pending_1", "pi_pending_2"}, ids)

	limited, err := repo.ListUnappliedLedgerEntries(ctx, cutoff, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "pi_pending_1", limited[0].TransactionID)
}

func TestGormRepository_PayerQueries(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, txID := range []string{"pi_x", "pi_y"} {
		_, _, err := repo.CreateLedgerEntryIfNotExists(ctx, &models.LedgerEntry{
			TransactionID: txID, ContestID: uint(5 + i), PayerEmail: "payer@example.com", Amount: 100, Currency: "usd",
			TrackingToken: "trk_000000000000000000000000000000f" + string(rune('0'+i)), PaidAt: day.Add(time.Duration(i) * 24 * time.Hour),
		})
		require.NoError(t, err)
	}

	ok, err := repo.HasLedgerEntry(ctx, 5, "payer@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.HasLedgerEntry(ctx, 7, "payer@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	mine, err := repo.ListLedgerEntriesByPayer(ctx, "payer@example.com")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "pi_y", mine[0].TransactionID, "newest first")

	between, err := repo.ListLedgerEntriesPaidBetween(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, between, 1)
	assert.Equal(t, "pi_x", between[0].TransactionID)
}
