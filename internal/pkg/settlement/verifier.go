package settlement

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/ManuelReschke/ContestHub/internal/pkg/apperror"
	"github.com/ManuelReschke/ContestHub/internal/pkg/payment"
)

// VerifiedSession is the outcome of a session verification. When Paid is
// false the remaining fields are informational only.
type VerifiedSession struct {
	Paid          bool
	SessionID     string
	TransactionID string
	Amount        int64
	Currency      string
	PayerEmail    string
	ContestID     uint
}

// Verifier confirms that a payment session reached the paid state.
type Verifier interface {
	Verify(ctx context.Context, sessionRef string) (*VerifiedSession, error)
}

// SessionVerifier verifies sessions against the payment processor.
type SessionVerifier struct {
	processor payment.Processor
}

func NewSessionVerifier(processor payment.Processor) *SessionVerifier {
	return &SessionVerifier{processor: processor}
}

// Verify fetches the current state of sessionRef. Any failure to obtain a
// trustworthy paid state is a verification error; callers must not mutate.
func (v *SessionVerifier) Verify(ctx context.Context, sessionRef string) (*VerifiedSession, error) {
	ref := strings.TrimSpace(sessionRef)
	if ref == "" {
		return nil, apperror.New(apperror.KindVerification, "session_id_required", "session_id is required")
	}

	s, err := v.processor.RetrieveSession(ctx, ref)
	if err != nil {
		if errors.Is(err, payment.ErrSessionNotFound) {
			return nil, apperror.Wrap(apperror.KindVerification, "session_not_found", "payment session not found", err)
		}
		return nil, apperror.Wrap(apperror.KindVerification, "session_unverifiable", "payment session could not be verified", err)
	}

	out := &VerifiedSession{
		Paid:          s.IsPaid(),
		SessionID:     s.ID,
		TransactionID: strings.TrimSpace(s.PaymentIntentID),
		Amount:        s.AmountTotal,
		Currency:      s.Currency,
		PayerEmail:    strings.ToLower(strings.TrimSpace(s.CustomerEmail)),
	}
	if out.SessionID == "" {
		out.SessionID = ref
	}
	if !out.Paid {
		return out, nil
	}

	if out.TransactionID == "" {
		return nil, apperror.New(apperror.KindVerification, "transaction_missing", "paid session carries no transaction id")
	}
	contestID, err := strconv.ParseUint(strings.TrimSpace(s.Metadata[payment.MetadataContestID]), 10, 64)
	if err != nil || contestID == 0 {
		return nil, apperror.New(apperror.KindVerification, "contest_reference_missing", "paid session carries no contest reference")
	}
	out.ContestID = uint(contestID)
	return out, nil
}
