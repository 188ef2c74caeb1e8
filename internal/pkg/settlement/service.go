package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ContestHub/app/models"
	"github.com/ManuelReschke/ContestHub/internal/pkg/apperror"
	"github.com/ManuelReschke/ContestHub/internal/pkg/payment"
)

// PaymentRecord is the input of RecordPayment.
type PaymentRecord struct {
	TransactionID string
	SessionID     string
	ContestID     uint
	PayerEmail    string
	Amount        int64
	Currency      string
	PaidAt        time.Time
}

// Confirmation is the result of settling a payment session.
type Confirmation struct {
	Entry *models.LedgerEntry
	// Created is true only for the call that inserted the ledger entry.
	Created bool
	// ParticipationPending is set when the counter update failed after the
	// entry was created and has been handed to the reconciliation path.
	ParticipationPending bool
}

// TrackingToken returns the token stored on the ledger entry.
func (c *Confirmation) TrackingToken() string {
	if c == nil || c.Entry == nil {
		return ""
	}
	return c.Entry.TrackingToken
}

// Service settles payment sessions into ledger entries and contest
// participation.
type Service struct {
	repo     Repository
	verifier Verifier
	issue    TokenIssuer
	now      func() time.Time

	// deferParticipation receives entries whose participation could not be
	// applied on the request path.
	deferParticipation func(ctx context.Context, entry *models.LedgerEntry) error
	// onParticipation is notified after a contest counter changed.
	onParticipation func(contestID uint)
}

type Option func(*Service)

func WithTokenIssuer(issue TokenIssuer) Option {
	return func(s *Service) { s.issue = issue }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithParticipationFallback registers where failed participation updates go,
// typically a job queue.
func WithParticipationFallback(fn func(ctx context.Context, entry *models.LedgerEntry) error) Option {
	return func(s *Service) { s.deferParticipation = fn }
}

// WithParticipationListener registers a callback run after a counter change.
func WithParticipationListener(fn func(contestID uint)) Option {
	return func(s *Service) { s.onParticipation = fn }
}

// NewService creates a settlement service from an injected repository and
// verifier.
func NewService(repo Repository, verifier Verifier, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		verifier: verifier,
		issue:    NewTrackingToken,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB wires the GORM repository and a processor-backed verifier.
func NewServiceFromDB(db *gorm.DB, processor payment.Processor, opts ...Option) *Service {
	return NewService(NewRepository(db), NewSessionVerifier(processor), opts...)
}

// ConfirmPayment settles sessionRef. Repeated calls for the same charge
// return the same ledger entry and tracking token; only the first one
// touches the contest counter.
func (s *Service) ConfirmPayment(ctx context.Context, sessionRef string) (*Confirmation, error) {
	verified, err := s.verifier.Verify(ctx, sessionRef)
	if err != nil {
		return nil, err
	}
	if !verified.Paid {
		return nil, apperror.New(apperror.KindVerification, "payment_not_completed", "payment has not been completed")
	}

	entry, created, err := s.RecordPayment(ctx, PaymentRecord{
		TransactionID: verified.TransactionID,
		SessionID:     verified.SessionID,
		ContestID:     verified.ContestID,
		PayerEmail:    verified.PayerEmail,
		Amount:        verified.Amount,
		Currency:      verified.Currency,
		PaidAt:        s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	conf := &Confirmation{Entry: entry, Created: created}
	if !created {
		log.Infof("[Settlement] Replay for transaction %s, returning existing entry", entry.TransactionID)
		return conf, nil
	}

	if err := s.ApplyParticipation(ctx, entry); err != nil {
		log.Errorf("[Settlement] Participation for transaction %s failed: %v", entry.TransactionID, err)
		conf.ParticipationPending = true
		if s.deferParticipation != nil {
			if derr := s.deferParticipation(ctx, entry); derr != nil {
				log.Errorf("[Settlement] Could not defer participation for %s, sweep will pick it up: %v", entry.TransactionID, derr)
			}
		}
	}
	return conf, nil
}

// RecordPayment inserts a ledger entry unless one already exists for the
// transaction id. It reports whether this call created the entry; the
// returned entry is always the stored one.
func (s *Service) RecordPayment(ctx context.Context, in PaymentRecord) (*models.LedgerEntry, bool, error) {
	txID := strings.TrimSpace(in.TransactionID)
	if txID == "" {
		return nil, false, apperror.New(apperror.KindValidation, "transaction_id_required", "transaction id is required")
	}
	if in.ContestID == 0 {
		return nil, false, apperror.New(apperror.KindValidation, "contest_id_required", "contest id is required")
	}

	token, err := s.issue()
	if err != nil {
		return nil, false, apperror.Wrap(apperror.KindStorage, "token_generation_failed", "could not generate tracking token", err)
	}
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now().UTC()
	}

	entry := &models.LedgerEntry{
		TransactionID: txID,
		SessionID:     strings.TrimSpace(in.SessionID),
		ContestID:     in.ContestID,
		PayerEmail:    models.NormalizeEmail(in.PayerEmail),
		Amount:        in.Amount,
		Currency:      strings.ToLower(strings.TrimSpace(in.Currency)),
		TrackingToken: token,
		PaidAt:        paidAt,
	}

	created, stored, err := s.repo.CreateLedgerEntryIfNotExists(ctx, entry)
	if err != nil {
		return nil, false, apperror.Wrap(apperror.KindStorage, "ledger_unavailable", "could not record payment", err)
	}
	if created {
		log.Infof("[Settlement] Recorded transaction %s for contest %d (%d %s)", stored.TransactionID, stored.ContestID, stored.Amount, stored.Currency)
	}
	return stored, created, nil
}

// ApplyParticipation increments the contest counter for entry at most once.
// Calling it again for the same entry is a no-op.
func (s *Service) ApplyParticipation(ctx context.Context, entry *models.LedgerEntry) error {
	if entry == nil || entry.TransactionID == "" {
		return apperror.New(apperror.KindValidation, "ledger_entry_required", "ledger entry is required")
	}

	applied, outcome, err := s.repo.ApplyParticipation(ctx, entry)
	if err != nil {
		return apperror.Wrap(apperror.KindStorage, "participation_unavailable", "could not update contest participation", err)
	}
	if !applied {
		log.Debugf("[Settlement] Participation for %s already applied (%s)", entry.TransactionID, outcome)
		return nil
	}
	if outcome == models.ParticipationOutcomeContestMissing {
		log.Warnf("[Settlement] Contest %d missing for transaction %s, counter not changed", entry.ContestID, entry.TransactionID)
		return nil
	}
	if s.onParticipation != nil {
		s.onParticipation(entry.ContestID)
	}
	return nil
}

// ApplyParticipationByTransactionID is the entry point for deferred jobs.
func (s *Service) ApplyParticipationByTransactionID(ctx context.Context, transactionID string) error {
	entry, err := s.repo.GetLedgerEntryByTransactionID(ctx, strings.TrimSpace(transactionID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Wrap(apperror.KindNotFound, "ledger_entry_not_found", "ledger entry not found", err)
		}
		return apperror.Wrap(apperror.KindStorage, "ledger_unavailable", "could not load ledger entry", err)
	}
	return s.ApplyParticipation(ctx, entry)
}

// PendingParticipations lists ledger entries older than grace that have not
// been consumed by the participation updater.
func (s *Service) PendingParticipations(ctx context.Context, grace time.Duration, limit int) ([]models.LedgerEntry, error) {
	entries, err := s.repo.ListUnappliedLedgerEntries(ctx, s.now().Add(-grace), limit)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStorage, "ledger_unavailable", "could not list pending participations", err)
	}
	return entries, nil
}

// FindByTrackingToken resolves a client-visible tracking token.
func (s *Service) FindByTrackingToken(ctx context.Context, token string) (*models.LedgerEntry, error) {
	t := strings.TrimSpace(token)
	if !IsTrackingToken(t) {
		return nil, apperror.New(apperror.KindNotFound, "payment_not_found", "payment not found")
	}
	entry, err := s.repo.GetLedgerEntryByTrackingToken(ctx, t)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Wrap(apperror.KindNotFound, "payment_not_found", "payment not found", err)
		}
		return nil, apperror.Wrap(apperror.KindStorage, "ledger_unavailable", "could not load payment", err)
	}
	return entry, nil
}

// PaymentsByPayer lists the ledger entries paid by email, newest first.
func (s *Service) PaymentsByPayer(ctx context.Context, email string) ([]models.LedgerEntry, error) {
	entries, err := s.repo.ListLedgerEntriesByPayer(ctx, models.NormalizeEmail(email))
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStorage, "ledger_unavailable", "could not load payments", err)
	}
	return entries, nil
}

// HasPaid reports whether email has a ledger entry for contestID.
func (s *Service) HasPaid(ctx context.Context, contestID uint, email string) (bool, error) {
	ok, err := s.repo.HasLedgerEntry(ctx, contestID, models.NormalizeEmail(email))
	if err != nil {
		return false, apperror.Wrap(apperror.KindStorage, "ledger_unavailable", "could not check payment", err)
	}
	return ok, nil
}

// EntriesPaidBetween returns entries with from <= paid_at < to.
func (s *Service) EntriesPaidBetween(ctx context.Context, from, to time.Time) ([]models.LedgerEntry, error) {
	entries, err := s.repo.ListLedgerEntriesPaidBetween(ctx, from, to)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStorage, "ledger_unavailable", "could not list payments", err)
	}
	return entries, nil
}
