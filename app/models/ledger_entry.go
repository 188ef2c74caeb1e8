package models

import "time"

// LedgerEntry records one settled payment. Rows are keyed by the processor's
// transaction identifier, written once and never updated or deleted.
type LedgerEntry struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TransactionID string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_payments_transaction_id" json:"transactionId"`
	SessionID     string    `gorm:"type:varchar(191);not null;default:'';index" json:"sessionId"`
	ContestID     uint      `gorm:"not null;index" json:"contestId"`
	PayerEmail    string    `gorm:"type:varchar(200);not null;index" json:"payerEmail"`
	Amount        int64     `gorm:"not null" json:"amount"`
	Currency      string    `gorm:"type:varchar(10);not null" json:"currency"`
	TrackingToken string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_payments_tracking_token" json:"trackingId"`
	PaidAt        time.Time `gorm:"type:timestamp;not null;index" json:"paidAt"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (LedgerEntry) TableName() string {
	return "payments"
}

// Participation outcomes recorded when a ledger entry is consumed.
const (
	ParticipationOutcomeApplied        = "applied"
	ParticipationOutcomeContestMissing = "contest_missing"
)

// ParticipationApplication marks that the contest counter has consumed the
// ledger entry with the same transaction id.
type ParticipationApplication struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TransactionID string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_participation_applications_transaction_id" json:"transactionId"`
	ContestID     uint      `gorm:"not null;index" json:"contestId"`
	Outcome       string    `gorm:"type:varchar(20);not null" json:"outcome"`
	AppliedAt     time.Time `gorm:"autoCreateTime" json:"appliedAt"`
}
