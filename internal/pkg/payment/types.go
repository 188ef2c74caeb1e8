package payment

import (
	"context"
	"errors"
)

// PaymentStatusPaid is the processor's terminal paid state for a session.
const PaymentStatusPaid = "paid"

// MetadataContestID is the session metadata key carrying the contest reference.
const MetadataContestID = "contestId"

// ErrSessionNotFound is returned when the processor does not know a session id.
var ErrSessionNotFound = errors.New("checkout session not found")

// Processor is the subset of the payment provider the service depends on.
type Processor interface {
	CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*Session, error)
}

// CheckoutRequest describes a single-item checkout for a contest entry fee.
type CheckoutRequest struct {
	ContestID     uint
	ContestName   string
	CustomerEmail string
	UnitAmount    int64 // minor units
	Currency      string
}

// CheckoutSession is the hosted checkout created for a request.
type CheckoutSession struct {
	ID  string
	URL string
}

// Session is the processor's view of a checkout session.
type Session struct {
	ID              string
	PaymentStatus   string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	CustomerEmail   string
	Metadata        map[string]string
}

// IsPaid reports whether the session reached the paid terminal state.
func (s *Session) IsPaid() bool {
	return s != nil && s.PaymentStatus == PaymentStatusPaid
}
