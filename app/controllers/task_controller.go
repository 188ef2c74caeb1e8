package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ContestHub/app/models"
	"github.com/ManuelReschke/ContestHub/app/repository"
	"github.com/ManuelReschke/ContestHub/internal/pkg/apperror"
	"github.com/ManuelReschke/ContestHub/internal/pkg/usercontext"
)

// PaymentChecker answers whether a user has paid the entry fee of a contest.
type PaymentChecker interface {
	HasPaid(ctx context.Context, contestID uint, email string) (bool, error)
}

// TaskController handles task submissions.
type TaskController struct {
	contestRepo repository.ContestRepository
	taskRepo    repository.TaskRepository
	payments    PaymentChecker
	now         func() time.Time
}

// NewTaskController creates a new task controller
func NewTaskController(contestRepo repository.ContestRepository, taskRepo repository.TaskRepository, payments PaymentChecker) *TaskController {
	return &TaskController{
		contestRepo: contestRepo,
		taskRepo:    taskRepo,
		payments:    payments,
		now:         time.Now,
	}
}

type submitTaskRequest struct {
	ContestID  uint   `json:"contestId" validate:"required"`
	Submission string `json:"submission" validate:"required,max=2000"`
}

// HandleSubmit stores the caller's submission for a contest they paid for.
func (tc *TaskController) HandleSubmit(c *fiber.Ctx) error {
	var req submitTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "Invalid request body")
	}
	req.Submission = strings.TrimSpace(req.Submission)
	if err := validate.Struct(&req); err != nil {
		return respondError(c, validationError(err))
	}

	contest, err := tc.contestRepo.GetByID(req.ContestID)
	if err != nil {
		return respondError(c, err)
	}
	if !contest.IsApproved() {
		return respondError(c, apperror.New(apperror.KindNotFound, "not_found", "Contest not found"))
	}
	if contest.DeadlinePassed(tc.now()) {
		return badRequest(c, "deadline_passed", "The contest deadline has passed")
	}

	caller := usercontext.GetUserContext(c)
	paid, err := tc.payments.HasPaid(c.UserContext(), contest.ID, caller.Email)
	if err != nil {
		return respondError(c, err)
	}
	if !paid {
		return respondError(c, apperror.New(apperror.KindForbidden, "payment_required", "Entry fee has not been paid"))
	}

	task := &models.Task{
		ContestID:  contest.ID,
		UserEmail:  caller.Email,
		UserName:   caller.Name,
		Submission: req.Submission,
	}
	if err := task.Validate(); err != nil {
		return respondError(c, validationError(err))
	}
	if err := tc.taskRepo.Create(task); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return respondError(c, apperror.Wrap(apperror.KindDuplicate, "duplicate_submission", "You already submitted a task for this contest", err))
		}
		return respondError(c, err)
	}

	log.Infof("[Task] %s submitted task %d for contest %d", caller.Email, task.ID, contest.ID)
	return c.Status(fiber.StatusCreated).JSON(task)
}

// HandleListForContest lists submissions; visible to the contest creator and admins.
func (tc *TaskController) HandleListForContest(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	contest, err := tc.contestRepo.GetByID(id)
	if err != nil {
		return respondError(c, err)
	}
	caller := usercontext.GetUserContext(c)
	if !caller.IsAdmin && !contest.IsOwnedBy(caller.Email) {
		return respondError(c, apperror.New(apperror.KindForbidden, "forbidden", "Only the creator can view submissions"))
	}

	tasks, err := tc.taskRepo.ListByContest(id)
	if err != nil {
		return respondError(c, err)
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return c.JSON(tasks)
}
