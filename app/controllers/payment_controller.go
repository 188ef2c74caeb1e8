package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ContestHub/app/models"
	"github.com/ManuelReschke/ContestHub/app/repository"
	"github.com/ManuelReschke/ContestHub/internal/pkg/apperror"
	"github.com/ManuelReschke/ContestHub/internal/pkg/payment"
	"github.com/ManuelReschke/ContestHub/internal/pkg/settlement"
	"github.com/ManuelReschke/ContestHub/internal/pkg/usercontext"
)

// Settler is the settlement surface the payment endpoints use.
type Settler interface {
	ConfirmPayment(ctx context.Context, sessionRef string) (*settlement.Confirmation, error)
	FindByTrackingToken(ctx context.Context, token string) (*models.LedgerEntry, error)
	PaymentsByPayer(ctx context.Context, email string) ([]models.LedgerEntry, error)
}

// PaymentController handles checkout and payment confirmation.
type PaymentController struct {
	contestRepo   repository.ContestRepository
	processor     payment.Processor
	settler       Settler
	webhookSecret string
}

func NewPaymentController(contestRepo repository.ContestRepository, processor payment.Processor, settler Settler) *PaymentController {
	return &PaymentController{
		contestRepo: contestRepo,
		processor:   processor,
		settler:     settler,
	}
}

// WithWebhookSecret enables HandleWebhook.
func (pc *PaymentController) WithWebhookSecret(secret string) *PaymentController {
	pc.webhookSecret = secret
	return pc
}

// contestRef accepts a contest id sent either as a JSON number or a string.
type contestRef uint

func (r *contestRef) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*r = 0
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return err
	}
	*r = contestRef(v)
	return nil
}

type checkoutRequest struct {
	Cost  decimal.Decimal `json:"cost"`
	Email string          `json:"email"`
	ID    contestRef      `json:"id"`
	Name  string          `json:"name"`
}

func invalidPaymentInfo(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "invalid_payment_information",
		"message": "Invalid payment information.",
	})
}

// HandleCreateCheckoutSession starts a hosted checkout for a contest entry fee.
func (pc *PaymentController) HandleCreateCheckoutSession(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPaymentInfo(c)
	}

	email := models.NormalizeEmail(req.Email)
	if caller := usercontext.GetUserContext(c); caller.IsLoggedIn {
		email = caller.Email
	}
	amount, err := payment.ToMinorUnits(req.Cost)
	if err != nil || email == "" || req.ID == 0 {
		return invalidPaymentInfo(c)
	}

	contest, err := pc.contestRepo.GetByID(uint(req.ID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, apperror.New(apperror.KindNotFound, "contest_not_found", "Contest not found"))
		}
		return respondError(c, err)
	}
	if !contest.IsApproved() {
		return respondError(c, apperror.New(apperror.KindNotFound, "contest_not_found", "Contest not found"))
	}

	// The stored entry fee wins over the submitted cost.
	if contest.Price.IsPositive() {
		stored, err := payment.ToMinorUnits(contest.Price)
		if err == nil && stored != amount {
			log.Warnf("[Payment] Checkout for contest %d sent cost %s, charging stored price %s", contest.ID, req.Cost, contest.Price)
			amount = stored
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = contest.Name
	}

	session, err := pc.processor.CreateSession(c.UserContext(), payment.CheckoutRequest{
		ContestID:     contest.ID,
		ContestName:   name,
		CustomerEmail: email,
		UnitAmount:    amount,
	})
	if err != nil {
		log.Errorf("[Payment] Could not create checkout session for contest %d: %v", contest.ID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "payment_provider_unavailable",
			"message": "Could not create checkout session",
		})
	}
	return c.JSON(fiber.Map{"url": session.URL, "id": session.ID})
}

// HandlePaymentSuccess settles ?session_id=. It is safe to call any number
// of times; every successful call returns the same tracking id.
func (pc *PaymentController) HandlePaymentSuccess(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Query("session_id"))

	conf, err := pc.settler.ConfirmPayment(c.UserContext(), sessionID)
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) && appErr.Kind != apperror.KindStorage {
			return c.Status(apperror.HTTPStatus(appErr.Kind)).JSON(fiber.Map{
				"success": false,
				"error":   appErr.Code,
				"message": appErr.Message,
			})
		}
		log.Errorf("[Payment] Settlement of %s failed: %v", sessionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":   false,
			"error":     "settlement_unavailable",
			"message":   "Payment could not be recorded, please retry",
			"retryable": true,
		})
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"trackingid":    conf.TrackingToken(),
		"transactionId": conf.Entry.TransactionID,
		"contestId":     conf.Entry.ContestID,
	})
}

// HandleWebhook settles checkout sessions reported by the processor. It
// shares ConfirmPayment with the redirect path, so whichever arrives second
// is a replay.
func (pc *PaymentController) HandleWebhook(c *fiber.Ctx) error {
	sessionID, err := payment.CompletedSessionFromWebhook(c.Body(), c.Get("Stripe-Signature"), pc.webhookSecret)
	if err != nil {
		log.Warnf("[Payment] Rejected webhook: %v", err)
		return badRequest(c, "invalid_webhook", "Invalid webhook delivery")
	}
	if sessionID == "" {
		return c.JSON(fiber.Map{"received": true})
	}

	conf, err := pc.settler.ConfirmPayment(c.UserContext(), sessionID)
	if err != nil {
		if apperror.KindOf(err) == "" || apperror.Retryable(err) {
			// A non-2xx answer makes the processor redeliver later.
			log.Errorf("[Payment] Webhook settlement of %s failed: %v", sessionID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":     "settlement_unavailable",
				"message":   "Payment could not be recorded, please retry",
				"retryable": true,
			})
		}
		log.Warnf("[Payment] Webhook for %s not settled: %v", sessionID, err)
		return c.JSON(fiber.Map{"received": true, "settled": false})
	}

	log.Infof("[Payment] Webhook settled %s (new=%t)", sessionID, conf.Created)
	return c.JSON(fiber.Map{"received": true, "settled": true, "trackingid": conf.TrackingToken()})
}

// HandleMine lists the caller's payments.
func (pc *PaymentController) HandleMine(c *fiber.Ctx) error {
	entries, err := pc.settler.PaymentsByPayer(c.UserContext(), usercontext.GetEmail(c))
	if err != nil {
		return respondError(c, err)
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return c.JSON(entries)
}

// HandleGetByTrackingID resolves a tracking token. Payers see their own
// entries; admins see all.
func (pc *PaymentController) HandleGetByTrackingID(c *fiber.Ctx) error {
	entry, err := pc.settler.FindByTrackingToken(c.UserContext(), c.Params("trackingid"))
	if err != nil {
		return respondError(c, err)
	}
	caller := usercontext.GetUserContext(c)
	if !caller.IsAdmin && entry.PayerEmail != caller.Email {
		return respondError(c, apperror.New(apperror.KindNotFound, "payment_not_found", "payment not found"))
	}
	return c.JSON(entry)
}
