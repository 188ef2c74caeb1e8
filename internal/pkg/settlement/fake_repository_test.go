package settlement

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ContestHub/app/models"
	"github.com/ManuelReschke/ContestHub/internal/pkg/payment"
)

// memoryRepository mirrors the unique-index semantics of the GORM repository.
type memoryRepository struct {
	mu           sync.Mutex
	entries      map[string]*models.LedgerEntry
	applications map[string]string
	contests     map[uint]*models.Contest
	nextID       uint

	failApply error
	failWrite error
}

func newMemoryRepository(contests ...*models.Contest) *memoryRepository {
	r := &memoryRepository{
		entries:      map[string]*models.LedgerEntry{},
		applications: map[string]string{},
		contests:     map[uint]*models.Contest{},
	}
	for _, c := range contests {
		r.contests[c.ID] = c
	}
	return r
}

func (r *memoryRepository) CreateLedgerEntryIfNotExists(_ context.Context, entry *models.LedgerEntry) (bool, *models.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrite != nil {
		return false, nil, r.failWrite
	}
	if existing, ok := r.entries[entry.TransactionID]; ok {
		cp := *existing
		return false, &cp, nil
	}
	r.nextID++
	stored := *entry
	stored.ID = r.nextID
	stored.CreatedAt = time.Now()
	r.entries[entry.TransactionID] = &stored
	cp := stored
	return true, &cp, nil
}

func (r *memoryRepository) ApplyParticipation(_ context.Context, entry *models.LedgerEntry) (bool, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failApply != nil {
		return false, "", r.failApply
	}
	if outcome, ok := r.applications[entry.TransactionID]; ok {
		return false, outcome, nil
	}
	contest, ok := r.contests[entry.ContestID]
	if !ok {
		r.applications[entry.TransactionID] = models.ParticipationOutcomeContestMissing
		return true, models.ParticipationOutcomeContestMissing, nil
	}
	contest.ParticipantsCount++
	contest.IsPaid = true
	r.applications[entry.TransactionID] = models.ParticipationOutcomeApplied
	return true, models.ParticipationOutcomeApplied, nil
}

func (r *memoryRepository) GetLedgerEntryByTransactionID(_ context.Context, transactionID string) (*models.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[transactionID]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryRepository) GetLedgerEntryByTrackingToken(_ context.Context, token string) (*models.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.TrackingToken == token {
			cp := *e
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryRepository) ListLedgerEntriesByPayer(_ context.Context, email string) ([]models.LedgerEntry, error) {
	return r.filter(func(e *models.LedgerEntry) bool { return e.PayerEmail == email }), nil
}

func (r *memoryRepository) ListLedgerEntriesPaidBetween(_ context.Context, from, to time.Time) ([]models.LedgerEntry, error) {
	return r.filter(func(e *models.LedgerEntry) bool {
		return !e.PaidAt.Before(from) && e.PaidAt.Before(to)
	}), nil
}

func (r *memoryRepository) ListUnappliedLedgerEntries(_ context.Context, createdBefore time.Time, limit int) ([]models.LedgerEntry, error) {
	r.mu.Lock()
	applied := make(map[string]bool, len(r.applications))
	for k := range r.applications {
		applied[k] = true
	}
	r.mu.Unlock()
	out := r.filter(func(e *models.LedgerEntry) bool {
		return !applied[e.TransactionID] && e.CreatedAt.Before(createdBefore)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepository) HasLedgerEntry(_ context.Context, contestID uint, payerEmail string) (bool, error) {
	return len(r.filter(func(e *models.LedgerEntry) bool {
		return e.ContestID == contestID && e.PayerEmail == payerEmail
	})) > 0, nil
}

func (r *memoryRepository) filter(keep func(*models.LedgerEntry) bool) []models.LedgerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepository) count(contestID uint) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contests[contestID]; ok {
		return c.ParticipantsCount
	}
	return -1
}

func (r *memoryRepository) ledgerSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// fakeProcessor serves canned sessions.
type fakeProcessor struct {
	mu       sync.Mutex
	sessions map[string]*payment.Session
	err      error
	calls    int
}

func newFakeProcessor(sessions ...*payment.Session) *fakeProcessor {
	p := &fakeProcessor{sessions: map[string]*payment.Session{}}
	for _, s := range sessions {
		p.sessions[s.ID] = s
	}
	return p
}

func (p *fakeProcessor) CreateSession(_ context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	return nil, errors.New("not used")
}

func (p *fakeProcessor) RetrieveSession(_ context.Context, id string) (*payment.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	s, ok := p.sessions[id]
	if !ok {
		return nil, payment.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func paidSession(id, intent string, contestID string) *payment.Session {
	return &payment.Session{
		ID:              id,
		PaymentStatus:   payment.PaymentStatusPaid,
		PaymentIntentID: intent,
		AmountTotal:     1500,
		Currency:        "usd",
		CustomerEmail:   "Payer@Example.com",
		Metadata:        map[string]string{payment.MetadataContestID: contestID},
	}
}
