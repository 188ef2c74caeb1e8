package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeProcessor implements Processor with Stripe Checkout Sessions.
type StripeProcessor struct {
	api    *client.API
	config *Config
}

// NewStripeProcessor creates a Stripe-backed processor from cfg.
func NewStripeProcessor(cfg *Config) (*StripeProcessor, error) {
	if cfg == nil || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is not configured")
	}

	var backends *stripe.Backends
	if cfg.APIBaseURL != "" {
		backends = &stripe.Backends{
			API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
				URL:               stripe.String(cfg.APIBaseURL),
				MaxNetworkRetries: stripe.Int64(0),
			}),
		}
	}

	return &StripeProcessor{
		api:    client.New(cfg.SecretKey, backends),
		config: cfg,
	}, nil
}

func (p *StripeProcessor) CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.ContestID == 0 || strings.TrimSpace(req.CustomerEmail) == "" {
		return nil, errors.New("contest id and customer email are required")
	}
	if req.UnitAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = p.config.Currency
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(req.CustomerEmail),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(req.UnitAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ContestName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.config.SuccessURL(req.ContestID)),
		CancelURL:  stripe.String(p.config.CancelURL(req.ContestID)),
	}
	params.Context = ctx
	params.AddMetadata(MetadataContestID, strconv.FormatUint(uint64(req.ContestID), 10))

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}

	log.Infof("[Payment] Stripe session created: %s (contest %d)", s.ID, req.ContestID)
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProcessor) RetrieveSession(ctx context.Context, sessionID string) (*Session, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, ErrSessionNotFound
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("stripe retrieve checkout session: %w", err)
	}

	return sessionFromStripe(s), nil
}

func sessionFromStripe(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:            s.ID,
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      strings.ToLower(string(s.Currency)),
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if out.CustomerEmail == "" && s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	return out
}
