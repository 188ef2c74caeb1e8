package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

var ErrInvalidWebhook = errors.New("invalid webhook delivery")

// CompletedSessionFromWebhook verifies a signed processor event and returns
// the checkout session id for events that can settle a payment. Other event
// types yield an empty id and no error.
func CompletedSessionFromWebhook(payload []byte, signature, secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("%w: webhook secret is not configured", ErrInvalidWebhook)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		// Deliveries are pinned to the account's API version, not the SDK's.
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		return "", nil
	}

	var session stripe.CheckoutSession
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &session) != nil || session.ID == "" {
		return "", fmt.Errorf("%w: event %s carries no checkout session", ErrInvalidWebhook, event.ID)
	}
	return session.ID, nil
}
