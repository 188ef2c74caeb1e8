package controllers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/ContestHub/app/models"
	"github.com/ManuelReschke/ContestHub/app/repository"
	"github.com/ManuelReschke/ContestHub/internal/pkg/apperror"
	"github.com/ManuelReschke/ContestHub/internal/pkg/cache"
	"github.com/ManuelReschke/ContestHub/internal/pkg/usercontext"
)

const (
	topContestsLimit = 5
	topContestsTTL   = 60 * time.Second
)

// ContestController handles contest listing, authoring and moderation.
type ContestController struct {
	contestRepo repository.ContestRepository
	store       cache.Store
	now         func() time.Time
}

// NewContestController creates a new contest controller. store may be nil,
// in which case the top listing is always read from the database.
func NewContestController(contestRepo repository.ContestRepository, store cache.Store) *ContestController {
	return &ContestController{
		contestRepo: contestRepo,
		store:       store,
		now:         time.Now,
	}
}

type contestRequest struct {
	Name            string          `json:"name" validate:"required,min=3,max=200"`
	Description     string          `json:"description" validate:"max=5000"`
	Image           string          `json:"image" validate:"omitempty,url,max=500"`
	ContestType     string          `json:"contestType" validate:"required,max=100"`
	Price           decimal.Decimal `json:"price"`
	PrizeMoney      decimal.Decimal `json:"prizeMoney"`
	TaskInstruction string          `json:"taskInstruction" validate:"max=5000"`
	Deadline        *time.Time      `json:"deadline"`
}

func (r *contestRequest) validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.ContestType = strings.TrimSpace(r.ContestType)
	if err := validate.Struct(r); err != nil {
		return validationError(err)
	}
	if r.Price.IsNegative() || r.PrizeMoney.IsNegative() {
		return apperror.New(apperror.KindValidation, "invalid_amount", "Price and prize money must not be negative")
	}
	return nil
}

func (r *contestRequest) applyTo(contest *models.Contest) {
	contest.Name = r.Name
	contest.Description = strings.TrimSpace(r.Description)
	contest.Image = strings.TrimSpace(r.Image)
	contest.ContestType = r.ContestType
	contest.Price = r.Price
	contest.PrizeMoney = r.PrizeMoney
	contest.TaskInstruction = strings.TrimSpace(r.TaskInstruction)
	contest.Deadline = r.Deadline
}

// HandleList returns approved contests filtered by ?search= and ?type=.
func (cc *ContestController) HandleList(c *fiber.Ctx) error {
	page, limit, offset := pagination(c)
	contests, total, err := cc.contestRepo.ListApproved(repository.ContestFilter{
		Search: c.Query("search"),
		Type:   c.Query("type"),
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		return respondError(c, err)
	}
	if contests == nil {
		contests = []models.Contest{}
	}
	return c.JSON(fiber.Map{
		"contests": contests,
		"page":     page,
		"limit":    limit,
		"total":    total,
	})
}

// HandleTop returns the most joined approved contests.
func (cc *ContestController) HandleTop(c *fiber.Ctx) error {
	var contests []models.Contest
	if cc.store != nil {
		if err := cc.store.GetJSON(cache.TopContestsKey, &contests); err == nil {
			return c.JSON(contests)
		}
	}

	contests, err := cc.contestRepo.ListTopApproved(topContestsLimit)
	if err != nil {
		return respondError(c, err)
	}
	if contests == nil {
		contests = []models.Contest{}
	}
	if cc.store != nil {
		if err := cc.store.SetJSON(cache.TopContestsKey, contests, topContestsTTL); err != nil {
			log.Warnf("[Contest] Could not cache top contests: %v", err)
		}
	}
	return c.JSON(contests)
}

// InvalidateTop drops the cached top listing after participation changed.
func (cc *ContestController) InvalidateTop(contestID uint) {
	if cc.store == nil {
		return
	}
	if err := cc.store.Delete(cache.TopContestsKey); err != nil {
		log.Warnf("[Contest] Could not invalidate top contests after contest %d changed: %v", contestID, err)
	}
}

// HandleGet returns one contest. Unmoderated contests are visible to their
// creator and admins only.
func (cc *ContestController) HandleGet(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	contest, err := cc.contestRepo.GetByID(id)
	if err != nil {
		return respondError(c, err)
	}
	if !contest.IsApproved() {
		uc := usercontext.GetUserContext(c)
		if !uc.IsAdmin && !contest.IsOwnedBy(uc.Email) {
			return respondError(c, apperror.New(apperror.KindNotFound, "not_found", "Contest not found"))
		}
	}
	return c.JSON(contest)
}

// HandleCreate stores a new contest awaiting moderation.
func (cc *ContestController) HandleCreate(c *fiber.Ctx) error {
	var req contestRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "Invalid request body")
	}
	if err := req.validate(); err != nil {
		return respondError(c, err)
	}
	if req.Deadline != nil && !req.Deadline.After(cc.now()) {
		return badRequest(c, "invalid_deadline", "Deadline must be in the future")
	}

	uc := usercontext.GetUserContext(c)
	contest := &models.Contest{
		CreatorEmail: uc.Email,
		CreatorName:  uc.Name,
		Status:       models.ContestStatusPending,
	}
	req.applyTo(contest)
	if err := contest.Validate(); err != nil {
		return respondError(c, validationError(err))
	}

	if err := cc.contestRepo.Create(contest); err != nil {
		return respondError(c, err)
	}
	log.Infof("[Contest] %s created contest %d", uc.Email, contest.ID)
	return c.Status(fiber.StatusCreated).JSON(contest)
}

// HandleMine lists the contests created by the caller.
func (cc *ContestController) HandleMine(c *fiber.Ctx) error {
	contests, err := cc.contestRepo.ListByCreator(usercontext.GetEmail(c))
	if err != nil {
		return respondError(c, err)
	}
	if contests == nil {
		contests = []models.Contest{}
	}
	return c.JSON(contests)
}

// HandleUpdate lets the creator edit a contest until it is moderated.
func (cc *ContestController) HandleUpdate(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	contest, err := cc.contestRepo.GetByID(id)
	if err != nil {
		return respondError(c, err)
	}
	if !contest.IsOwnedBy(usercontext.GetEmail(c)) {
		return respondError(c, apperror.New(apperror.KindForbidden, "forbidden", "Only the creator can edit this contest"))
	}
	if contest.Status != models.ContestStatusPending {
		return badRequest(c, "contest_locked", "Only pending contests can be edited")
	}

	var req contestRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "Invalid request body")
	}
	if err := req.validate(); err != nil {
		return respondError(c, err)
	}
	req.applyTo(contest)
	if err := cc.contestRepo.Update(contest); err != nil {
		return respondError(c, err)
	}
	return c.JSON(contest)
}

// HandleDelete removes a contest. Creators may delete their own pending
// contests; admins may delete any.
func (cc *ContestController) HandleDelete(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	contest, err := cc.contestRepo.GetByID(id)
	if err != nil {
		return respondError(c, err)
	}

	uc := usercontext.GetUserContext(c)
	if !uc.IsAdmin {
		if !contest.IsOwnedBy(uc.Email) {
			return respondError(c, apperror.New(apperror.KindForbidden, "forbidden", "Only the creator can delete this contest"))
		}
		if contest.Status != models.ContestStatusPending {
			return badRequest(c, "contest_locked", "Only pending contests can be deleted")
		}
	}

	if err := cc.contestRepo.Delete(id); err != nil {
		return respondError(c, err)
	}
	cc.InvalidateTop(id)
	log.Infof("[Contest] %s deleted contest %d", uc.Email, id)
	return c.JSON(fiber.Map{"deleted": true, "id": id})
}

// HandleAdminList returns all contests including pending and rejected ones.
func (cc *ContestController) HandleAdminList(c *fiber.Ctx) error {
	page, limit, offset := pagination(c)
	contests, total, err := cc.contestRepo.List(offset, limit)
	if err != nil {
		return respondError(c, err)
	}
	if contests == nil {
		contests = []models.Contest{}
	}
	return c.JSON(fiber.Map{
		"contests": contests,
		"page":     page,
		"limit":    limit,
		"total":    total,
	})
}

type contestStatusRequest struct {
	Status string `json:"status"`
}

// HandleAdminSetStatus moderates a contest.
func (cc *ContestController) HandleAdminSetStatus(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req contestStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "Invalid request body")
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if !models.IsValidContestStatus(status) {
		return badRequest(c, "invalid_status", "Status must be approved, pending or rejected")
	}

	if err := cc.contestRepo.UpdateStatus(id, status); err != nil {
		return respondError(c, err)
	}
	cc.InvalidateTop(id)

	contest, err := cc.contestRepo.GetByID(id)
	if err != nil {
		return respondError(c, err)
	}
	log.Infof("[Contest] Contest %d set to %s by %s", id, status, usercontext.GetEmail(c))
	return c.JSON(contest)
}
